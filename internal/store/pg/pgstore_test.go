package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"conforma.org/internal/workflow"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func TestFindAssessmentNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("from assessments where id=").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := store.Assessments(context.Background()).Find(context.Background(), "missing")
	if !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("expected not-found classification, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindAssessmentDecodesSnapshot(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	scores := `[{"section_id":"sec-4","section_number":"4","section_title":"Context","percentage":88.9,"actual_score":8,"max_possible_score":9,"answered_questions":3,"total_questions":5}]`

	rows := sqlmock.NewRows([]string{
		"id", "organization_id", "title", "status", "audit_type", "lead_auditor_id",
		"template_id", "previous_assessment_id", "overall_score", "section_scores",
		"scheduled_at", "due_at", "completed_at", "created_at", "updated_at",
	}).AddRow("as-1", "org-1", "Annual audit", "IN_PROGRESS", "internal", "u-lead",
		nil, nil, 88.9, []byte(scores), nil, nil, nil, now, now)
	mock.ExpectQuery("from assessments where id=").WithArgs("as-1").WillReturnRows(rows)

	a, err := store.Assessments(context.Background()).Find(context.Background(), "as-1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if a.Status != workflow.AssessmentInProgress {
		t.Fatalf("status = %s", a.Status)
	}
	if a.OverallScore == nil || *a.OverallScore != 88.9 {
		t.Fatalf("overall = %v", a.OverallScore)
	}
	if len(a.SectionScores) != 1 || a.SectionScores[0].SectionNumber != "4" || a.SectionScores[0].MaxScore != 9 {
		t.Fatalf("section snapshot = %+v", a.SectionScores)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpsertResponseKeepsOriginalIdentity(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Now().UTC().Add(-time.Hour)
	mock.ExpectQuery("insert into responses").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("r-original", created))

	score := 2
	r := &workflow.Response{
		ID:           "r-new",
		AssessmentID: "as-1",
		QuestionID:   "q-1",
		SectionID:    "sec-4",
		Score:        &score,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := store.Responses(context.Background()).Upsert(context.Background(), r); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if r.ID != "r-original" || !r.CreatedAt.Equal(created) {
		t.Fatalf("conflict must keep the original identity: %+v", r)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInTxCommitsAndRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("delete from corrective_actions").WithArgs("act-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.InTx(context.Background(), func(st workflow.Store) error {
		return st.Actions(context.Background()).Delete(context.Background(), "act-1")
	})
	if err != nil {
		t.Fatalf("InTx commit path: %v", err)
	}

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()
	err = store.InTx(context.Background(), func(st workflow.Store) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("InTx rollback path: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSaveScoresWritesSnapshot(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("update assessments set overall_score").
		WithArgs("as-1", 88.9, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Assessments(context.Background()).SaveScores(context.Background(), "as-1", 88.9, []workflow.SectionScore{
		{SectionID: "sec-4", SectionNumber: "4", Percentage: 88.9, ActualScore: 8, MaxScore: 9},
	})
	if err != nil {
		t.Fatalf("SaveScores: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSaveScoresMissingAssessment(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("update assessments set overall_score").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Assessments(context.Background()).SaveScores(context.Background(), "missing", 0, nil)
	if !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("expected not-found classification, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCountByStatusGroups(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("from non_conformities").WithArgs("as-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("OPEN", 2).AddRow("CLOSED", 1))

	counts, err := store.NonConformities(context.Background()).CountByStatus(context.Background(), "as-1")
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[workflow.NCROpen] != 2 || counts[workflow.NCRClosed] != 1 {
		t.Fatalf("counts = %v", counts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
