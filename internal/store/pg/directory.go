package pg

import (
	"context"
	"database/sql"
	"errors"

	"medgrid.org/internal/access"
)

const userColumns = `id, username, coalesce(email, ''), coalesce(first_name, ''), coalesce(last_name, ''), coalesce(phone, ''), active, deleted, created_at`

func scanUser(row interface{ Scan(...any) error }) (access.User, error) {
	var u access.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.Phone, &u.Active, &u.Deleted, &u.CreatedAt)
	return u, err
}

func (s *Store) FindUser(ctx context.Context, id string) (access.User, error) {
	if s.db == nil {
		return access.User{}, errors.New("database connection unavailable")
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where id = $1 and not deleted
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return access.User{}, access.ErrNotFound
	}
	if err != nil {
		return access.User{}, err
	}
	return u, nil
}

// FindUserByUsername matches either the username or the contact email, since
// bulk rows may identify users by both.
func (s *Store) FindUserByUsername(ctx context.Context, username string) (access.User, error) {
	if s.db == nil {
		return access.User{}, errors.New("database connection unavailable")
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where (username = $1 or email = $1) and not deleted
	`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return access.User{}, access.ErrNotFound
	}
	if err != nil {
		return access.User{}, err
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *access.User) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	err := s.db.QueryRowContext(ctx, `
		insert into users (id, username, email, first_name, last_name, phone, active, deleted, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning created_at
	`, u.ID, u.Username, nullIfEmpty(u.Email), nullIfEmpty(u.FirstName), nullIfEmpty(u.LastName), nullIfEmpty(u.Phone), u.Active, u.Deleted, u.CreatedAt).Scan(&u.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return access.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) FindRole(ctx context.Context, id string) (access.Role, error) {
	if s.db == nil {
		return access.Role{}, errors.New("database connection unavailable")
	}
	var r access.Role
	err := s.db.QueryRowContext(ctx, `
		select id, code, name, created_at
		from roles
		where id = $1
	`, id).Scan(&r.ID, &r.Code, &r.Name, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return access.Role{}, access.ErrNotFound
	}
	if err != nil {
		return access.Role{}, err
	}
	return r, nil
}

func (s *Store) FindRoleByCode(ctx context.Context, code string) (access.Role, error) {
	if s.db == nil {
		return access.Role{}, errors.New("database connection unavailable")
	}
	var r access.Role
	err := s.db.QueryRowContext(ctx, `
		select id, code, name, created_at
		from roles
		where code = $1
	`, code).Scan(&r.ID, &r.Code, &r.Name, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return access.Role{}, access.ErrNotFound
	}
	if err != nil {
		return access.Role{}, err
	}
	return r, nil
}

func (s *Store) CreateRole(ctx context.Context, r *access.Role) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	err := s.db.QueryRowContext(ctx, `
		insert into roles (id, code, name, created_at)
		values ($1, $2, $3, $4)
		returning created_at
	`, r.ID, r.Code, r.Name, r.CreatedAt).Scan(&r.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return access.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) FindFacility(ctx context.Context, id string) (access.Facility, error) {
	if s.db == nil {
		return access.Facility{}, errors.New("database connection unavailable")
	}
	var f access.Facility
	err := s.db.QueryRowContext(ctx, `
		select id, organization_id, code, name, active, created_at
		from facilities
		where id = $1
	`, id).Scan(&f.ID, &f.OrganizationID, &f.Code, &f.Name, &f.Active, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return access.Facility{}, access.ErrNotFound
	}
	if err != nil {
		return access.Facility{}, err
	}
	return f, nil
}

func (s *Store) ListFacilities(ctx context.Context) ([]access.Facility, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, organization_id, code, name, active, created_at
		from facilities
		where active
		order by code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facilities []access.Facility
	for rows.Next() {
		var f access.Facility
		if err := rows.Scan(&f.ID, &f.OrganizationID, &f.Code, &f.Name, &f.Active, &f.CreatedAt); err != nil {
			return nil, err
		}
		facilities = append(facilities, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return facilities, nil
}

func (s *Store) ListOrganizations(ctx context.Context) ([]access.Organization, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, created_at
		from organizations
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []access.Organization
	for rows.Next() {
		var org access.Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.CreatedAt); err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orgs, nil
}
