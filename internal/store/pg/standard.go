package pg

import (
	"context"
	"database/sql"
	"errors"

	"conforma.org/internal/workflow"
)

type standardStore struct {
	q querier
}

func (s standardStore) Sections(ctx context.Context) ([]workflow.StandardSection, error) {
	rows, err := s.q.QueryContext(ctx, `
		select id, coalesce(parent_id,''), number, title, sort_order
		from standard_sections order by sort_order
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []workflow.StandardSection
	for rows.Next() {
		var sec workflow.StandardSection
		if err := rows.Scan(&sec.ID, &sec.ParentID, &sec.Number, &sec.Title, &sec.Order); err != nil {
			return nil, err
		}
		out = append(out, sec)
	}
	return out, rows.Err()
}

func (s standardStore) Questions(ctx context.Context, activeOnly bool) ([]workflow.AuditQuestion, error) {
	query := `
		select id, section_id, number, text, criteria_score_1, criteria_score_2, criteria_score_3, active
		from audit_questions`
	if activeOnly {
		query += ` where active`
	}
	query += ` order by number`

	rows, err := s.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []workflow.AuditQuestion
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

func (s standardStore) Question(ctx context.Context, id string) (*workflow.AuditQuestion, error) {
	row := s.q.QueryRowContext(ctx, `
		select id, section_id, number, text, criteria_score_1, criteria_score_2, criteria_score_3, active
		from audit_questions where id=$1
	`, id)
	q, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundErr("audit question", id)
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

func scanQuestion(row rowScanner) (*workflow.AuditQuestion, error) {
	var q workflow.AuditQuestion
	err := row.Scan(&q.ID, &q.SectionID, &q.Number, &q.Text, &q.Criteria1, &q.Criteria2, &q.Criteria3, &q.Active)
	if err != nil {
		return nil, err
	}
	return &q, nil
}
