package access

import (
	"context"
	"fmt"
	"strings"
	"time"

	"medgrid.org/internal/ids"
	"medgrid.org/internal/obs"
)

// Notifier is the external collaborator dispatching user-facing mail. The
// subsystem only triggers it; delivery is out of scope.
type Notifier interface {
	AssignmentCreated(ctx context.Context, userID, grantID string) error
	InviteUser(ctx context.Context, userID string, forcePasswordChange bool) error
}

type noopNotifier struct{}

func (noopNotifier) AssignmentCreated(context.Context, string, string) error { return nil }
func (noopNotifier) InviteUser(context.Context, string, bool) error          { return nil }

// Service composes grant persistence, code generation, permission
// materialization and dashboard merging into the operations the web layer
// calls. Every facility-scoped operation receives the caller's TenantContext
// explicitly.
type Service struct {
	grants   GrantStore
	perms    PermissionStore
	dir      DirectoryStore
	catalog  *Catalog
	codes    *CodeGenerator
	mat      *Materializer
	merger   *Merger
	notifier Notifier
	now      func() time.Time
}

// ServiceOption configures Service construction.
type ServiceOption func(*Service)

// WithCatalog overrides the default permission catalog.
func WithCatalog(c *Catalog) ServiceOption {
	return func(s *Service) {
		if c != nil {
			s.catalog = c
		}
	}
}

// WithRolePriority overrides the primary-role selection order.
func WithRolePriority(order []string) ServiceOption {
	return func(s *Service) {
		if len(order) > 0 {
			s.merger = NewMerger(s.catalog, order)
		}
	}
}

// WithNotifier installs the mail collaborator.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the service. The catalog option must precede the
// role-priority option when both are supplied.
func NewService(grants GrantStore, perms PermissionStore, dir DirectoryStore, opts ...ServiceOption) (*Service, error) {
	if grants == nil || perms == nil || dir == nil {
		return nil, fmt.Errorf("%w: grant, permission and directory stores are required", ErrInvalidInput)
	}
	s := &Service{
		grants:   grants,
		perms:    perms,
		dir:      dir,
		catalog:  DefaultCatalog(),
		codes:    NewCodeGenerator(),
		notifier: noopNotifier{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.merger == nil {
		s.merger = NewMerger(s.catalog, nil)
	}
	var err error
	s.mat, err = NewMaterializer(perms, s.catalog)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// SeedCodeSequence raises the code generator above every stored assignment
// code. Called once at startup; the counter never decreases afterwards.
func (s *Service) SeedCodeSequence(ctx context.Context) error {
	codes, err := s.grants.ListCodes(ctx)
	if err != nil {
		return err
	}
	s.codes.SeedFromCodes(codes)
	return nil
}

// Resolver returns a TenantResolver over the service's stores.
func (s *Service) Resolver() *TenantResolver {
	r, _ := NewTenantResolver(s.grants, s.dir)
	return r
}

// Assign creates one grant for (user, role, facility) and materializes its
// permissions. An empty facilityID creates a platform-wide grant, which only
// globally scoped callers may do.
func (s *Service) Assign(ctx context.Context, tc TenantContext, userID, roleID, facilityID string) (Grant, error) {
	if err := validateAssignInput(userID, roleID); err != nil {
		return Grant{}, err
	}
	user, err := s.dir.FindUser(ctx, userID)
	if err != nil {
		return Grant{}, err
	}
	if user.Deleted || !user.Active {
		return Grant{}, fmt.Errorf("%w: user %s is not active", ErrInvalidInput, userID)
	}
	role, err := s.dir.FindRole(ctx, roleID)
	if err != nil {
		return Grant{}, err
	}
	return s.assignResolved(ctx, tc, user, role, facilityID)
}

// assignResolved creates and materializes one grant for already-resolved
// user and role records. Shared by the single, fan-out and import paths.
func (s *Service) assignResolved(ctx context.Context, tc TenantContext, user User, role Role, facilityID string) (Grant, error) {
	scope := GlobalScopeLabel
	if facilityID != "" {
		if err := tc.RequireFacility(facilityID); err != nil {
			return Grant{}, err
		}
		fac, err := s.dir.FindFacility(ctx, facilityID)
		if err != nil {
			return Grant{}, err
		}
		scope = fac.Code
	} else if !tc.Global {
		return Grant{}, fmt.Errorf("%w: only platform-wide callers may create global grants", ErrForbidden)
	}

	grant := &Grant{
		ID:         ids.New(),
		UserID:     user.ID,
		RoleID:     role.ID,
		FacilityID: facilityID,
		Code:       s.codes.Generate(scope, role.Code),
		Active:     true,
		CreatedBy:  tc.UserID,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.grants.Create(ctx, grant); err != nil {
		return Grant{}, err
	}
	obs.CountGrantCreated()
	created, err := s.mat.Materialize(ctx, *grant, role)
	if err != nil {
		return Grant{}, err
	}
	obs.CountPermissionsMaterialized(created)
	return *grant, nil
}

// RegenerateCode issues a fresh assignment code for an active grant and
// optionally re-triggers the notification collaborator.
func (s *Service) RegenerateCode(ctx context.Context, tc TenantContext, grantID string, resendNotifications bool) (Grant, error) {
	if strings.TrimSpace(grantID) == "" {
		return Grant{}, fmt.Errorf("%w: assignment id is required", ErrInvalidInput)
	}
	grant, err := s.grants.Get(ctx, grantID)
	if err != nil {
		return Grant{}, err
	}
	if !grant.Active {
		return Grant{}, fmt.Errorf("%w: assignment %s is not active", ErrInvalidInput, grantID)
	}
	role, err := s.dir.FindRole(ctx, grant.RoleID)
	if err != nil {
		return Grant{}, err
	}
	scope := GlobalScopeLabel
	if !grant.Global() {
		if err := tc.RequireFacility(grant.FacilityID); err != nil {
			return Grant{}, err
		}
		fac, err := s.dir.FindFacility(ctx, grant.FacilityID)
		if err != nil {
			return Grant{}, err
		}
		scope = fac.Code
	}
	code := s.codes.Generate(scope, role.Code)
	if err := s.grants.UpdateCode(ctx, grant.ID, code); err != nil {
		return Grant{}, err
	}
	grant.Code = code
	if resendNotifications {
		if err := s.notifier.AssignmentCreated(ctx, grant.UserID, grant.ID); err != nil {
			obs.LogRequest(map[string]any{
				"level": "warn",
				"msg":   "assignment notification failed",
				"grant": grant.ID,
				"error": err.Error(),
			})
		}
	}
	return grant, nil
}

// Deactivate clears the active flag. Grants are never hard-deleted.
func (s *Service) Deactivate(ctx context.Context, tc TenantContext, grantID string) error {
	grant, err := s.grants.Get(ctx, grantID)
	if err != nil {
		return err
	}
	if !grant.Global() {
		if err := tc.RequireFacility(grant.FacilityID); err != nil {
			return err
		}
	} else if !tc.Global {
		return fmt.Errorf("%w: only platform-wide callers may deactivate global grants", ErrForbidden)
	}
	return s.grants.Deactivate(ctx, grant.ID)
}

// DashboardProfile merges every active grant of a user into a primary role
// and a deduplicated permission list for display.
func (s *Service) DashboardProfile(ctx context.Context, userID string) (MergedAccess, error) {
	if strings.TrimSpace(userID) == "" {
		return MergedAccess{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	grants, err := s.grants.ListActiveForUser(ctx, userID)
	if err != nil {
		return MergedAccess{}, err
	}
	entries := make([]MergeEntry, 0, len(grants))
	for _, g := range grants {
		role, err := s.dir.FindRole(ctx, g.RoleID)
		if err != nil {
			return MergedAccess{}, err
		}
		perms, err := s.perms.ListForGrant(ctx, g.ID)
		if err != nil {
			return MergedAccess{}, err
		}
		names := make([]string, 0, len(perms))
		for _, p := range perms {
			names = append(names, p.Name)
		}
		entries = append(entries, MergeEntry{RoleCode: role.Code, GrantedAt: g.CreatedAt, Permissions: names})
	}
	return s.merger.Merge(entries), nil
}

// BackfillPermissions is the administrative repair path: it materializes
// permissions for every active grant that has none.
func (s *Service) BackfillPermissions(ctx context.Context) (BackfillReport, error) {
	report, err := s.mat.Backfill(ctx, s.grants, s.dir)
	if err != nil {
		return BackfillReport{}, err
	}
	obs.CountPermissionsMaterialized(report.Materialized)
	return report, nil
}

func validateAssignInput(userID, roleID string) error {
	var violations []string
	if strings.TrimSpace(userID) == "" {
		violations = append(violations, "user id is required")
	}
	if strings.TrimSpace(roleID) == "" {
		violations = append(violations, "role id is required")
	}
	return newValidationError(violations)
}
