package pg

import (
	"context"
	"database/sql"
	"errors"

	"medgrid.org/internal/access"
)

// Create inserts the grant. The partial unique index on the active
// (user, role, facility) triple turns a concurrent duplicate into a unique
// violation here, surfaced as ErrConflict.
func (s *Store) Create(ctx context.Context, g *access.Grant) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	err := s.db.QueryRowContext(ctx, `
		insert into grants (id, user_id, role_id, facility_id, code, active, confirmation_verified, created_by, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning created_at
	`, g.ID, g.UserID, g.RoleID, nullIfEmpty(g.FacilityID), g.Code, g.Active, g.ConfirmationVerified, nullIfEmpty(g.CreatedBy), g.CreatedAt).Scan(&g.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return access.ErrConflict
			case pgErrForeignKeyViolation:
				return access.ErrNotFound
			}
		}
		return err
	}
	return nil
}

const grantColumns = `id, user_id, role_id, coalesce(facility_id, ''), code, active, confirmation_verified, coalesce(created_by, ''), created_at`

func scanGrant(row interface{ Scan(...any) error }) (access.Grant, error) {
	var g access.Grant
	err := row.Scan(&g.ID, &g.UserID, &g.RoleID, &g.FacilityID, &g.Code, &g.Active, &g.ConfirmationVerified, &g.CreatedBy, &g.CreatedAt)
	return g, err
}

func (s *Store) Get(ctx context.Context, id string) (access.Grant, error) {
	if s.db == nil {
		return access.Grant{}, errors.New("database connection unavailable")
	}
	g, err := scanGrant(s.db.QueryRowContext(ctx, `
		select `+grantColumns+`
		from grants
		where id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return access.Grant{}, access.ErrNotFound
	}
	if err != nil {
		return access.Grant{}, err
	}
	return g, nil
}

func (s *Store) FindActive(ctx context.Context, userID, roleID, facilityID string) (access.Grant, error) {
	if s.db == nil {
		return access.Grant{}, errors.New("database connection unavailable")
	}
	g, err := scanGrant(s.db.QueryRowContext(ctx, `
		select `+grantColumns+`
		from grants
		where user_id = $1 and role_id = $2 and coalesce(facility_id, '') = $3 and active
	`, userID, roleID, facilityID))
	if errors.Is(err, sql.ErrNoRows) {
		return access.Grant{}, access.ErrNotFound
	}
	if err != nil {
		return access.Grant{}, err
	}
	return g, nil
}

func (s *Store) ListActiveForUser(ctx context.Context, userID string) ([]access.Grant, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+grantColumns+`
		from grants
		where user_id = $1 and active
		order by created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []access.Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}

func (s *Store) Deactivate(ctx context.Context, id string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `update grants set active = false where id = $1 and active`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return access.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateCode(ctx context.Context, id, code string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `update grants set code = $2 where id = $1`, id, code)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return access.ErrConflict
		}
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return access.ErrNotFound
	}
	return nil
}

func (s *Store) ListActiveWithoutPermissions(ctx context.Context) ([]access.Grant, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select g.id, g.user_id, g.role_id, coalesce(g.facility_id, ''), g.code, g.active, g.confirmation_verified, coalesce(g.created_by, ''), g.created_at
		from grants g
		left join grant_permissions gp on gp.grant_id = g.id
		where g.active and gp.id is null
		order by g.created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []access.Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}

func (s *Store) ListCodes(ctx context.Context) ([]string, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `select code from grants`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return codes, nil
}
