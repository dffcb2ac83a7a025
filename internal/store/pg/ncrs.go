package pg

import (
	"context"
	"database/sql"
	"errors"

	"conforma.org/internal/workflow"
)

type ncrStore struct {
	q querier
}

const ncrColumns = `
	id, assessment_id, response_id, title, description, severity, status,
	root_cause, root_cause_method, created_at, updated_at`

func (s ncrStore) Create(ctx context.Context, n *workflow.NonConformity) error {
	_, err := s.q.ExecContext(ctx, `
		insert into non_conformities(
			id, assessment_id, response_id, title, description, severity, status,
			root_cause, root_cause_method, created_at, updated_at)
		values ($1,$2,nullif($3,''),$4,$5,$6,$7,$8,$9,$10,$11)
	`, n.ID, n.AssessmentID, n.ResponseID, n.Title, n.Description, n.Severity, n.Status,
		n.RootCause, n.RootCauseMethod, n.CreatedAt, n.UpdatedAt)
	return err
}

// CreateBatch inserts all rows within the surrounding transaction; the caller
// runs it through InTx so it is all-or-nothing.
func (s ncrStore) CreateBatch(ctx context.Context, batch []*workflow.NonConformity) error {
	for _, n := range batch {
		if err := s.Create(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (s ncrStore) Find(ctx context.Context, id string) (*workflow.NonConformity, error) {
	row := s.q.QueryRowContext(ctx,
		`select `+ncrColumns+` from non_conformities where id=$1`, id)
	n, err := scanNCR(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundErr("non-conformity", id)
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (s ncrStore) ListByAssessment(ctx context.Context, assessmentID string) ([]workflow.NonConformity, error) {
	rows, err := s.q.QueryContext(ctx,
		`select `+ncrColumns+` from non_conformities where assessment_id=$1 order by created_at`, assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []workflow.NonConformity
	for rows.Next() {
		n, err := scanNCR(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (s ncrStore) Update(ctx context.Context, n *workflow.NonConformity) error {
	res, err := s.q.ExecContext(ctx, `
		update non_conformities set
			title=$2, description=$3, severity=$4, status=$5,
			root_cause=$6, root_cause_method=$7, updated_at=$8
		where id=$1
	`, n.ID, n.Title, n.Description, n.Severity, n.Status,
		n.RootCause, n.RootCauseMethod, n.UpdatedAt)
	if err != nil {
		return err
	}
	return requireRow(res, "non-conformity", n.ID)
}

func (s ncrStore) Delete(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `delete from non_conformities where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res, "non-conformity", id)
}

func (s ncrStore) ResponseRefs(ctx context.Context, assessmentID string) (map[string]struct{}, error) {
	rows, err := s.q.QueryContext(ctx, `
		select response_id from non_conformities
		where assessment_id=$1 and response_id is not null
	`, assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		refs[id] = struct{}{}
	}
	return refs, rows.Err()
}

func (s ncrStore) CountByStatus(ctx context.Context, assessmentID string) (map[workflow.NCRStatus]int, error) {
	rows, err := s.q.QueryContext(ctx, `
		select status, count(*) from non_conformities
		where assessment_id=$1 group by status
	`, assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[workflow.NCRStatus]int)
	for rows.Next() {
		var status workflow.NCRStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func scanNCR(row rowScanner) (*workflow.NonConformity, error) {
	var (
		n          workflow.NonConformity
		responseID sql.NullString
	)
	err := row.Scan(&n.ID, &n.AssessmentID, &responseID, &n.Title, &n.Description, &n.Severity, &n.Status,
		&n.RootCause, &n.RootCauseMethod, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	n.ResponseID = responseID.String
	return &n, nil
}
