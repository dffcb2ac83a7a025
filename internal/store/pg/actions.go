package pg

import (
	"context"
	"database/sql"
	"errors"

	"conforma.org/internal/workflow"
)

type actionStore struct {
	q querier
}

const actionColumns = `
	id, non_conformity_id, description, priority, status, assignee_id,
	target_date, completed_at, verified_by_id, verified_at, effectiveness_notes,
	created_at, updated_at`

func (s actionStore) Create(ctx context.Context, a *workflow.CorrectiveAction) error {
	_, err := s.q.ExecContext(ctx, `
		insert into corrective_actions(
			id, non_conformity_id, description, priority, status, assignee_id,
			target_date, completed_at, verified_by_id, verified_at, effectiveness_notes,
			created_at, updated_at)
		values ($1,$2,$3,$4,$5,nullif($6,''),$7,$8,nullif($9,''),$10,$11,$12,$13)
	`, a.ID, a.NonConformityID, a.Description, a.Priority, a.Status, a.AssigneeID,
		nullTime(a.TargetDate), nullTime(a.CompletedAt), a.VerifiedByID, nullTime(a.VerifiedAt),
		a.EffectivenessNotes, a.CreatedAt, a.UpdatedAt)
	return err
}

func (s actionStore) Find(ctx context.Context, id string) (*workflow.CorrectiveAction, error) {
	row := s.q.QueryRowContext(ctx,
		`select `+actionColumns+` from corrective_actions where id=$1`, id)
	a, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundErr("corrective action", id)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s actionStore) ListByNCR(ctx context.Context, ncrID string) ([]workflow.CorrectiveAction, error) {
	rows, err := s.q.QueryContext(ctx,
		`select `+actionColumns+` from corrective_actions where non_conformity_id=$1 order by created_at`, ncrID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []workflow.CorrectiveAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s actionStore) Update(ctx context.Context, a *workflow.CorrectiveAction) error {
	res, err := s.q.ExecContext(ctx, `
		update corrective_actions set
			description=$2, priority=$3, status=$4, assignee_id=nullif($5,''),
			target_date=$6, completed_at=$7, verified_by_id=nullif($8,''),
			verified_at=$9, effectiveness_notes=$10, updated_at=$11
		where id=$1
	`, a.ID, a.Description, a.Priority, a.Status, a.AssigneeID,
		nullTime(a.TargetDate), nullTime(a.CompletedAt), a.VerifiedByID,
		nullTime(a.VerifiedAt), a.EffectivenessNotes, a.UpdatedAt)
	if err != nil {
		return err
	}
	return requireRow(res, "corrective action", a.ID)
}

func (s actionStore) Delete(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `delete from corrective_actions where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res, "corrective action", id)
}

func (s actionStore) CountByStatus(ctx context.Context, ncrID string) (map[workflow.ActionStatus]int, error) {
	rows, err := s.q.QueryContext(ctx, `
		select status, count(*) from corrective_actions
		where non_conformity_id=$1 group by status
	`, ncrID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[workflow.ActionStatus]int)
	for rows.Next() {
		var status workflow.ActionStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func scanAction(row rowScanner) (*workflow.CorrectiveAction, error) {
	var (
		a          workflow.CorrectiveAction
		assignee   sql.NullString
		target     sql.NullTime
		completed  sql.NullTime
		verifiedBy sql.NullString
		verifiedAt sql.NullTime
	)
	err := row.Scan(&a.ID, &a.NonConformityID, &a.Description, &a.Priority, &a.Status, &assignee,
		&target, &completed, &verifiedBy, &verifiedAt, &a.EffectivenessNotes,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.AssigneeID = assignee.String
	a.TargetDate = timePtr(target)
	a.CompletedAt = timePtr(completed)
	a.VerifiedByID = verifiedBy.String
	a.VerifiedAt = timePtr(verifiedAt)
	return &a, nil
}
