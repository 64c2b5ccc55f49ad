package access

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestResolver(t *testing.T, b *memBackend) *TenantResolver {
	t.Helper()
	r, err := NewTenantResolver(b, b)
	if err != nil {
		t.Fatalf("NewTenantResolver: %v", err)
	}
	return r
}

func TestResolveFacilityScopedGrant(t *testing.T) {
	b := testBackend()
	b.grants["g1"] = Grant{ID: "g1", UserID: "user-1", RoleID: "role-doctor", FacilityID: "fac-1", Code: "H01-DOCTOR-1", Active: true, CreatedAt: time.Now().UTC()}
	r := newTestResolver(t, b)

	tc, err := r.Resolve(context.Background(), Principal{UserID: "user-1", Username: "dr.smith"}, "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if tc.Global {
		t.Fatal("facility grant must not confer global scope")
	}
	if !tc.PermitsFacility("fac-1") {
		t.Fatal("expected fac-1 to be permitted")
	}
	if tc.PermitsFacility("fac-2") {
		t.Fatal("fac-2 must not be permitted")
	}
	if !tc.PermitsOrganization("org-1") {
		t.Fatal("owning organization must be permitted")
	}
	if tc.ActiveFacilityID != "fac-1" {
		t.Fatalf("unexpected active facility: %s", tc.ActiveFacilityID)
	}
	if tc.ActiveOrganizationID != "org-1" {
		t.Fatalf("unexpected active organization: %s", tc.ActiveOrganizationID)
	}
}

func TestResolveGlobalGrantOpensEverything(t *testing.T) {
	b := testBackend()
	b.grants["g1"] = Grant{ID: "g1", UserID: "user-1", RoleID: "role-doctor", Code: "GLOBAL-DOCTOR-1", Active: true, CreatedAt: time.Now().UTC()}
	r := newTestResolver(t, b)

	tc, err := r.Resolve(context.Background(), Principal{UserID: "user-1"}, "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !tc.Global {
		t.Fatal("expected global scope")
	}
	if !tc.PermitsFacility("fac-1") || !tc.PermitsFacility("fac-2") {
		t.Fatal("global caller should reach every facility")
	}
	if !tc.PermitsOrganization("org-1") {
		t.Fatal("global caller should reach every organization")
	}
	// no facility grant and no hint: the caller names a facility per operation
	if tc.ActiveFacilityID != "" {
		t.Fatalf("unexpected active facility: %s", tc.ActiveFacilityID)
	}
}

func TestResolvePrefersMostRecentFacilityGrant(t *testing.T) {
	b := testBackend()
	now := time.Now().UTC()
	b.grants["g1"] = Grant{ID: "g1", UserID: "user-1", RoleID: "role-doctor", FacilityID: "fac-1", Code: "H01-DOCTOR-1", Active: true, CreatedAt: now}
	b.grants["g2"] = Grant{ID: "g2", UserID: "user-1", RoleID: "role-nurse", FacilityID: "fac-2", Code: "H02-NURSE-2", Active: true, CreatedAt: now.Add(time.Hour)}
	r := newTestResolver(t, b)

	tc, err := r.Resolve(context.Background(), Principal{UserID: "user-1"}, "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if tc.ActiveFacilityID != "fac-2" {
		t.Fatalf("expected most recent facility, got %s", tc.ActiveFacilityID)
	}
}

func TestResolveHonoursHint(t *testing.T) {
	b := testBackend()
	now := time.Now().UTC()
	b.grants["g1"] = Grant{ID: "g1", UserID: "user-1", RoleID: "role-doctor", FacilityID: "fac-1", Code: "H01-DOCTOR-1", Active: true, CreatedAt: now}
	b.grants["g2"] = Grant{ID: "g2", UserID: "user-1", RoleID: "role-nurse", FacilityID: "fac-2", Code: "H02-NURSE-2", Active: true, CreatedAt: now.Add(time.Hour)}
	r := newTestResolver(t, b)

	tc, err := r.Resolve(context.Background(), Principal{UserID: "user-1"}, "fac-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if tc.ActiveFacilityID != "fac-1" {
		t.Fatalf("hint ignored, got %s", tc.ActiveFacilityID)
	}
}

func TestResolveRejectsHintOutsideScope(t *testing.T) {
	b := testBackend()
	b.grants["g1"] = Grant{ID: "g1", UserID: "user-1", RoleID: "role-doctor", FacilityID: "fac-1", Code: "H01-DOCTOR-1", Active: true, CreatedAt: time.Now().UTC()}
	r := newTestResolver(t, b)

	_, err := r.Resolve(context.Background(), Principal{UserID: "user-1"}, "fac-2")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestResolveIgnoresInactiveGrants(t *testing.T) {
	b := testBackend()
	b.grants["g1"] = Grant{ID: "g1", UserID: "user-1", RoleID: "role-doctor", FacilityID: "fac-1", Code: "H01-DOCTOR-1", Active: false, CreatedAt: time.Now().UTC()}
	r := newTestResolver(t, b)

	tc, err := r.Resolve(context.Background(), Principal{UserID: "user-1"}, "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(tc.FacilityIDs) != 0 {
		t.Fatalf("inactive grant widened scope: %v", tc.FacilityIDs)
	}
}

func TestRequireFacilityOnEmptyContext(t *testing.T) {
	var tc TenantContext
	if err := tc.RequireFacility("fac-1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}
