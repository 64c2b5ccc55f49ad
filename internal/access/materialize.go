package access

import (
	"context"
	"errors"
	"fmt"

	"medgrid.org/internal/ids"
)

// Materializer turns a role's catalog permissions into concrete permission
// records attached to a grant. It is idempotent: re-running it creates
// nothing new, and a concurrent duplicate insert resolves to "already
// present" at the storage layer.
type Materializer struct {
	perms   PermissionStore
	catalog *Catalog
}

func NewMaterializer(perms PermissionStore, catalog *Catalog) (*Materializer, error) {
	if perms == nil {
		return nil, fmt.Errorf("%w: permission store is required", ErrInvalidInput)
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Materializer{perms: perms, catalog: catalog}, nil
}

// Materialize ensures every catalog permission for the role exists on the
// grant and returns the count actually created; a fully idempotent re-run
// returns 0.
func (m *Materializer) Materialize(ctx context.Context, grant Grant, role Role) (int, error) {
	created := 0
	for _, name := range m.catalog.PermissionsForRole(role.Code) {
		ok, err := m.perms.CreateIfAbsent(ctx, &GrantPermission{
			ID:      ids.New(),
			GrantID: grant.ID,
			Name:    name,
		})
		if err != nil {
			// A losing race on the uniqueness constraint means the
			// permission is already present.
			if errors.Is(err, ErrConflict) {
				continue
			}
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// BackfillReport summarizes one administrative repair run.
type BackfillReport struct {
	Scanned      int `json:"scanned"`
	Materialized int `json:"materialized"`
	Failed       int `json:"failed"`
}

// Backfill scans every active grant lacking permissions and materializes it.
// A failure on one grant is counted and does not stop the scan.
func (m *Materializer) Backfill(ctx context.Context, grants GrantStore, dir DirectoryStore) (BackfillReport, error) {
	pending, err := grants.ListActiveWithoutPermissions(ctx)
	if err != nil {
		return BackfillReport{}, err
	}
	report := BackfillReport{Scanned: len(pending)}
	for _, g := range pending {
		role, err := dir.FindRole(ctx, g.RoleID)
		if err != nil {
			report.Failed++
			continue
		}
		n, err := m.Materialize(ctx, g, role)
		if err != nil {
			report.Failed++
			continue
		}
		report.Materialized += n
	}
	return report, nil
}
