package access

import "context"

// GrantStore is the persistence boundary for role grants. Implementations
// enforce the single-active-grant invariant with a storage-level uniqueness
// constraint and surface the violation as ErrConflict; callers never rely on
// a check-then-insert sequence.
type GrantStore interface {
	Create(ctx context.Context, g *Grant) error
	Get(ctx context.Context, id string) (Grant, error)
	// FindActive looks up the active grant for a (user, role, facility)
	// triple. An empty facilityID addresses the platform-wide grant.
	FindActive(ctx context.Context, userID, roleID, facilityID string) (Grant, error)
	ListActiveForUser(ctx context.Context, userID string) ([]Grant, error)
	Deactivate(ctx context.Context, id string) error
	UpdateCode(ctx context.Context, id, code string) error
	// ListActiveWithoutPermissions returns active grants that have no
	// materialized permissions; used by the administrative backfill.
	ListActiveWithoutPermissions(ctx context.Context) ([]Grant, error)
	// ListCodes returns every stored assignment code for sequence seeding.
	ListCodes(ctx context.Context) ([]string, error)
}

// PermissionStore persists materialized permissions.
type PermissionStore interface {
	// CreateIfAbsent inserts the permission record unless one with the same
	// (grant, name) already exists. It reports whether a row was created.
	// A concurrent duplicate insert resolves to (false, nil).
	CreateIfAbsent(ctx context.Context, p *GrantPermission) (bool, error)
	ListForGrant(ctx context.Context, grantID string) ([]GrantPermission, error)
}

// DirectoryStore resolves the reference entities grants point at. Users and
// roles can be created lazily (bulk import, catalog roles); facilities and
// organizations are managed elsewhere and only read here.
type DirectoryStore interface {
	FindUser(ctx context.Context, id string) (User, error)
	FindUserByUsername(ctx context.Context, username string) (User, error)
	CreateUser(ctx context.Context, u *User) error

	FindRole(ctx context.Context, id string) (Role, error)
	FindRoleByCode(ctx context.Context, code string) (Role, error)
	CreateRole(ctx context.Context, r *Role) error

	FindFacility(ctx context.Context, id string) (Facility, error)
	ListFacilities(ctx context.Context) ([]Facility, error)
	ListOrganizations(ctx context.Context) ([]Organization, error)
}
