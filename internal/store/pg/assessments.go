package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"conforma.org/internal/workflow"
)

type assessmentStore struct {
	q querier
}

const assessmentColumns = `
	id, organization_id, title, status, audit_type, lead_auditor_id,
	template_id, previous_assessment_id, overall_score, section_scores,
	scheduled_at, due_at, completed_at, created_at, updated_at`

func (s assessmentStore) Create(ctx context.Context, a *workflow.Assessment) error {
	scores, err := marshalSectionScores(a.SectionScores)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx, `
		insert into assessments(
			id, organization_id, title, status, audit_type, lead_auditor_id,
			template_id, previous_assessment_id, overall_score, section_scores,
			scheduled_at, due_at, completed_at, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,nullif($7,''),nullif($8,''),$9,$10,$11,$12,$13,$14,$15)
	`, a.ID, a.OrganizationID, a.Title, a.Status, a.AuditType, a.LeadAuditorID,
		a.TemplateID, a.PreviousAssessmentID, overallArg(a.OverallScore), scores,
		nullTime(a.ScheduledAt), nullTime(a.DueAt), nullTime(a.CompletedAt), a.CreatedAt, a.UpdatedAt)
	return err
}

func (s assessmentStore) Find(ctx context.Context, id string) (*workflow.Assessment, error) {
	row := s.q.QueryRowContext(ctx,
		`select `+assessmentColumns+` from assessments where id=$1`, id)
	a, err := scanAssessment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundErr("assessment", id)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s assessmentStore) ListByOrg(ctx context.Context, orgID string) ([]*workflow.Assessment, error) {
	rows, err := s.q.QueryContext(ctx,
		`select `+assessmentColumns+` from assessments where organization_id=$1 order by created_at desc`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*workflow.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s assessmentStore) Update(ctx context.Context, a *workflow.Assessment) error {
	scores, err := marshalSectionScores(a.SectionScores)
	if err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx, `
		update assessments set
			title=$2, status=$3, audit_type=$4, lead_auditor_id=$5,
			overall_score=$6, section_scores=$7,
			scheduled_at=$8, due_at=$9, completed_at=$10, updated_at=$11
		where id=$1
	`, a.ID, a.Title, a.Status, a.AuditType, a.LeadAuditorID,
		overallArg(a.OverallScore), scores,
		nullTime(a.ScheduledAt), nullTime(a.DueAt), nullTime(a.CompletedAt), a.UpdatedAt)
	if err != nil {
		return err
	}
	return requireRow(res, "assessment", a.ID)
}

func (s assessmentStore) Delete(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `delete from assessments where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res, "assessment", id)
}

func (s assessmentStore) Team(ctx context.Context, assessmentID string) ([]workflow.TeamMember, error) {
	rows, err := s.q.QueryContext(ctx, `
		select assessment_id, user_id, team_role, created_at
		from assessment_team where assessment_id=$1 order by created_at
	`, assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []workflow.TeamMember
	for rows.Next() {
		var m workflow.TeamMember
		if err := rows.Scan(&m.AssessmentID, &m.UserID, &m.TeamRole, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s assessmentStore) UpsertTeamMember(ctx context.Context, m workflow.TeamMember) error {
	_, err := s.q.ExecContext(ctx, `
		insert into assessment_team(assessment_id, user_id, team_role, created_at)
		values ($1,$2,$3,$4)
		on conflict (assessment_id, user_id) do update set team_role = excluded.team_role
	`, m.AssessmentID, m.UserID, m.TeamRole, m.CreatedAt)
	return err
}

func (s assessmentStore) SaveScores(ctx context.Context, assessmentID string, overall float64, sections []workflow.SectionScore) error {
	scores, err := marshalSectionScores(sections)
	if err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx, `
		update assessments set overall_score=$2, section_scores=$3, updated_at=now()
		where id=$1
	`, assessmentID, overall, scores)
	if err != nil {
		return err
	}
	return requireRow(res, "assessment", assessmentID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssessment(row rowScanner) (*workflow.Assessment, error) {
	var (
		a          workflow.Assessment
		templateID sql.NullString
		previousID sql.NullString
		overall    sql.NullFloat64
		scores     []byte
		scheduled  sql.NullTime
		due        sql.NullTime
		completed  sql.NullTime
	)
	err := row.Scan(&a.ID, &a.OrganizationID, &a.Title, &a.Status, &a.AuditType, &a.LeadAuditorID,
		&templateID, &previousID, &overall, &scores,
		&scheduled, &due, &completed, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.TemplateID = templateID.String
	a.PreviousAssessmentID = previousID.String
	if overall.Valid {
		v := overall.Float64
		a.OverallScore = &v
	}
	if len(scores) > 0 {
		if err := json.Unmarshal(scores, &a.SectionScores); err != nil {
			return nil, fmt.Errorf("decode section scores for %s: %w", a.ID, err)
		}
	}
	a.ScheduledAt = timePtr(scheduled)
	a.DueAt = timePtr(due)
	a.CompletedAt = timePtr(completed)
	return &a, nil
}

func marshalSectionScores(sections []workflow.SectionScore) ([]byte, error) {
	if len(sections) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(sections)
}

func overallArg(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func requireRow(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFoundErr(entity, id)
	}
	return nil
}
