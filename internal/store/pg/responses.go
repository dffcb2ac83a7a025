package pg

import (
	"context"
	"database/sql"
	"errors"

	"conforma.org/internal/workflow"
)

type responseStore struct {
	q querier
}

const responseColumns = `
	id, assessment_id, question_id, section_id, score, justification,
	draft, updated_by_id, created_at, updated_at`

// Upsert keys on (assessment_id, question_id); a conflict keeps the original
// id and created_at so external references stay stable.
func (s responseStore) Upsert(ctx context.Context, r *workflow.Response) error {
	row := s.q.QueryRowContext(ctx, `
		insert into responses(
			id, assessment_id, question_id, section_id, score, justification,
			draft, updated_by_id, created_at, updated_at)
		values ($1,$2,$3,nullif($4,''),$5,$6,$7,nullif($8,''),$9,$10)
		on conflict (assessment_id, question_id) do update set
			section_id = excluded.section_id,
			score = excluded.score,
			justification = excluded.justification,
			draft = excluded.draft,
			updated_by_id = excluded.updated_by_id,
			updated_at = excluded.updated_at
		returning id, created_at
	`, r.ID, r.AssessmentID, r.QuestionID, r.SectionID, scoreArg(r.Score), r.Justification,
		r.Draft, r.UpdatedByID, r.CreatedAt, r.UpdatedAt)
	return row.Scan(&r.ID, &r.CreatedAt)
}

func (s responseStore) Find(ctx context.Context, id string) (*workflow.Response, error) {
	row := s.q.QueryRowContext(ctx,
		`select `+responseColumns+` from responses where id=$1`, id)
	r, err := scanResponse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundErr("response", id)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s responseStore) ListByAssessment(ctx context.Context, assessmentID string) ([]workflow.Response, error) {
	rows, err := s.q.QueryContext(ctx,
		`select `+responseColumns+` from responses where assessment_id=$1 order by created_at`, assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []workflow.Response
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanResponse(row rowScanner) (*workflow.Response, error) {
	var (
		r         workflow.Response
		sectionID sql.NullString
		score     sql.NullInt64
		updatedBy sql.NullString
	)
	err := row.Scan(&r.ID, &r.AssessmentID, &r.QuestionID, &sectionID, &score, &r.Justification,
		&r.Draft, &updatedBy, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.SectionID = sectionID.String
	if score.Valid {
		v := int(score.Int64)
		r.Score = &v
	}
	r.UpdatedByID = updatedBy.String
	return &r, nil
}

func scoreArg(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
