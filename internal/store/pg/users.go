package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"conforma.org/internal/workflow"
)

type orgStore struct {
	q querier
}

func (s orgStore) Create(ctx context.Context, org *workflow.Organization) error {
	_, err := s.q.ExecContext(ctx, `
		insert into organizations(id, name, created_at, updated_at)
		values ($1,$2,$3,$4)
	`, org.ID, org.Name, org.CreatedAt, org.UpdatedAt)
	return err
}

func (s orgStore) Find(ctx context.Context, id string) (*workflow.Organization, error) {
	var org workflow.Organization
	err := s.q.QueryRowContext(ctx, `
		select id, name, created_at, updated_at from organizations where id=$1
	`, id).Scan(&org.ID, &org.Name, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundErr("organization", id)
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (s orgStore) List(ctx context.Context) ([]*workflow.Organization, error) {
	rows, err := s.q.QueryContext(ctx, `
		select id, name, created_at, updated_at from organizations order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*workflow.Organization
	for rows.Next() {
		var org workflow.Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &org)
	}
	return out, rows.Err()
}

type userStore struct {
	q querier
}

const userColumns = `
	id, organization_id, email, password_hash, name, role, active, created_at, updated_at`

func (s userStore) Create(ctx context.Context, u *workflow.User) error {
	_, err := s.q.ExecContext(ctx, `
		insert into users(id, organization_id, email, password_hash, name, role, active, created_at, updated_at)
		values ($1,$2,lower($3),$4,$5,$6,$7,$8,$9)
	`, u.ID, u.OrganizationID, u.Email, u.PasswordHash, u.Name, u.Role, u.Active, u.CreatedAt, u.UpdatedAt)
	return err
}

func (s userStore) Find(ctx context.Context, id string) (*workflow.User, error) {
	row := s.q.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundErr("user", id)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s userStore) FindByEmail(ctx context.Context, email string) (*workflow.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := s.q.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1`, email)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundErr("user", email)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s userStore) Update(ctx context.Context, u *workflow.User) error {
	res, err := s.q.ExecContext(ctx, `
		update users set email=lower($2), password_hash=$3, name=$4, role=$5, active=$6, updated_at=$7
		where id=$1
	`, u.ID, u.Email, u.PasswordHash, u.Name, u.Role, u.Active, u.UpdatedAt)
	if err != nil {
		return err
	}
	return requireRow(res, "user", u.ID)
}

func scanUser(row rowScanner) (*workflow.User, error) {
	var u workflow.User
	err := row.Scan(&u.ID, &u.OrganizationID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.Active,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
