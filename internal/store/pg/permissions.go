package pg

import (
	"context"
	"errors"

	"medgrid.org/internal/access"
)

// CreateIfAbsent relies on the (grant_id, name) uniqueness constraint:
// "on conflict do nothing" makes a duplicate insert — including one racing a
// concurrent materialization — report zero affected rows instead of failing.
func (s *Store) CreateIfAbsent(ctx context.Context, p *access.GrantPermission) (bool, error) {
	if s.db == nil {
		return false, errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		insert into grant_permissions (id, grant_id, name)
		values ($1, $2, $3)
		on conflict (grant_id, name) do nothing
	`, p.ID, p.GrantID, p.Name)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return false, access.ErrNotFound
		}
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff > 0, nil
}

func (s *Store) ListForGrant(ctx context.Context, grantID string) ([]access.GrantPermission, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, grant_id, name, created_at
		from grant_permissions
		where grant_id = $1
		order by created_at, id
	`, grantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []access.GrantPermission
	for rows.Next() {
		var p access.GrantPermission
		if err := rows.Scan(&p.ID, &p.GrantID, &p.Name, &p.CreatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}
