package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"conforma.org/internal/workflow"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx, so the
// same sub-store code serves both transactional and plain access.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the durable workflow.Store backed by Postgres.
type Store struct {
	db *sql.DB
}

var _ workflow.Store = (*Store)(nil)
var _ workflow.Store = (*txStore)(nil)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing pool; used by tests with sqlmock.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Ping verifies connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// InTx runs fn against a store bound to one transaction. Any error rolls the
// whole transaction back.
func (s *Store) InTx(ctx context.Context, fn func(workflow.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&txStore{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Organizations(ctx context.Context) workflow.OrganizationStore {
	return orgStore{q: s.db}
}
func (s *Store) Users(ctx context.Context) workflow.UserStore { return userStore{q: s.db} }
func (s *Store) Assessments(ctx context.Context) workflow.AssessmentStore {
	return assessmentStore{q: s.db}
}
func (s *Store) Responses(ctx context.Context) workflow.ResponseStore {
	return responseStore{q: s.db}
}
func (s *Store) NonConformities(ctx context.Context) workflow.NonConformityStore {
	return ncrStore{q: s.db}
}
func (s *Store) Actions(ctx context.Context) workflow.ActionStore { return actionStore{q: s.db} }
func (s *Store) Standard(ctx context.Context) workflow.StandardStore {
	return standardStore{q: s.db}
}

// txStore is the view handed to InTx callbacks.
type txStore struct {
	q *sql.Tx
}

// Nested InTx joins the surrounding transaction.
func (t *txStore) InTx(ctx context.Context, fn func(workflow.Store) error) error { return fn(t) }

func (t *txStore) Organizations(ctx context.Context) workflow.OrganizationStore {
	return orgStore{q: t.q}
}
func (t *txStore) Users(ctx context.Context) workflow.UserStore { return userStore{q: t.q} }
func (t *txStore) Assessments(ctx context.Context) workflow.AssessmentStore {
	return assessmentStore{q: t.q}
}
func (t *txStore) Responses(ctx context.Context) workflow.ResponseStore {
	return responseStore{q: t.q}
}
func (t *txStore) NonConformities(ctx context.Context) workflow.NonConformityStore {
	return ncrStore{q: t.q}
}
func (t *txStore) Actions(ctx context.Context) workflow.ActionStore { return actionStore{q: t.q} }
func (t *txStore) Standard(ctx context.Context) workflow.StandardStore {
	return standardStore{q: t.q}
}

// --- helpers ---

func notFoundErr(entity, id string) error {
	return fmt.Errorf("%w: %s %s", workflow.ErrNotFound, entity, id)
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
