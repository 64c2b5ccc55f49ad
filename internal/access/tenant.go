package access

import (
	"context"
	"fmt"
	"time"
)

// Principal is the resolved caller identity handed in by the authentication
// layer. Token verification happens outside this subsystem.
type Principal struct {
	UserID   string
	Username string
}

// TenantContext is the request-scoped set of organizations and facilities a
// caller may act within. It is a plain value: created at the start of a
// request, passed explicitly to whatever needs it, and discarded at request
// end. It must never be cached across requests — grants can change between
// requests.
type TenantContext struct {
	UserID               string
	Username             string
	Global               bool
	ActiveOrganizationID string
	ActiveFacilityID     string
	OrganizationIDs      map[string]struct{}
	FacilityIDs          map[string]struct{}
}

// PermitsFacility reports whether the caller may act within the facility.
func (tc TenantContext) PermitsFacility(facilityID string) bool {
	_, ok := tc.FacilityIDs[facilityID]
	return ok
}

// PermitsOrganization reports whether the caller may act within the organization.
func (tc TenantContext) PermitsOrganization(orgID string) bool {
	_, ok := tc.OrganizationIDs[orgID]
	return ok
}

// RequireFacility fails with ErrForbidden when the facility lies outside the
// caller's permitted set. Facility-scoped reads and writes call this instead
// of silently narrowing results.
func (tc TenantContext) RequireFacility(facilityID string) error {
	if !tc.PermitsFacility(facilityID) {
		return fmt.Errorf("%w: facility %s is outside the caller's scope", ErrForbidden, facilityID)
	}
	return nil
}

// TenantResolver computes a TenantContext from the caller's active grants.
type TenantResolver struct {
	grants GrantStore
	dir    DirectoryStore
}

func NewTenantResolver(grants GrantStore, dir DirectoryStore) (*TenantResolver, error) {
	if grants == nil || dir == nil {
		return nil, fmt.Errorf("%w: grant and directory stores are required", ErrInvalidInput)
	}
	return &TenantResolver{grants: grants, dir: dir}, nil
}

// Resolve walks the principal's active grants. A platform-wide grant opens
// every organization and facility; a facility-scoped grant opens that
// facility and its owning organization only. The active facility is the
// explicit hint when permitted, else the facility of the most recently
// created facility-scoped grant, else none (global-only principals must name
// a facility per operation). Resolution never mutates grants.
func (r *TenantResolver) Resolve(ctx context.Context, principal Principal, facilityHint string) (TenantContext, error) {
	tc := TenantContext{
		UserID:          principal.UserID,
		Username:        principal.Username,
		OrganizationIDs: make(map[string]struct{}),
		FacilityIDs:     make(map[string]struct{}),
	}

	grants, err := r.grants.ListActiveForUser(ctx, principal.UserID)
	if err != nil {
		return TenantContext{}, err
	}

	facilityOrg := make(map[string]string)
	var (
		latestFacility string
		latestAt       time.Time
	)
	for _, g := range grants {
		if g.Global() {
			tc.Global = true
			continue
		}
		fac, err := r.dir.FindFacility(ctx, g.FacilityID)
		if err != nil {
			return TenantContext{}, err
		}
		tc.FacilityIDs[fac.ID] = struct{}{}
		tc.OrganizationIDs[fac.OrganizationID] = struct{}{}
		facilityOrg[fac.ID] = fac.OrganizationID
		if latestFacility == "" || g.CreatedAt.After(latestAt) {
			latestFacility = fac.ID
			latestAt = g.CreatedAt
		}
	}

	if tc.Global {
		facilities, err := r.dir.ListFacilities(ctx)
		if err != nil {
			return TenantContext{}, err
		}
		for _, fac := range facilities {
			tc.FacilityIDs[fac.ID] = struct{}{}
			tc.OrganizationIDs[fac.OrganizationID] = struct{}{}
			facilityOrg[fac.ID] = fac.OrganizationID
		}
		orgs, err := r.dir.ListOrganizations(ctx)
		if err != nil {
			return TenantContext{}, err
		}
		for _, org := range orgs {
			tc.OrganizationIDs[org.ID] = struct{}{}
		}
	}

	switch {
	case facilityHint != "":
		if err := tc.RequireFacility(facilityHint); err != nil {
			return TenantContext{}, err
		}
		tc.ActiveFacilityID = facilityHint
	case latestFacility != "":
		tc.ActiveFacilityID = latestFacility
	}
	if tc.ActiveFacilityID != "" {
		tc.ActiveOrganizationID = facilityOrg[tc.ActiveFacilityID]
	}
	return tc, nil
}
