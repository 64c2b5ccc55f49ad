package access

import (
	"context"
	"errors"
	"testing"
	"time"
)

type conflictingPerms struct {
	*memBackend
	conflictOn string
}

func (c *conflictingPerms) CreateIfAbsent(ctx context.Context, p *GrantPermission) (bool, error) {
	if p.Name == c.conflictOn {
		return false, ErrConflict
	}
	return c.memBackend.CreateIfAbsent(ctx, p)
}

func TestMaterializeIsIdempotent(t *testing.T) {
	b := testBackend()
	b.grants["grant-1"] = Grant{ID: "grant-1", UserID: "user-1", RoleID: "role-doctor", Code: "H01-DOCTOR-1", Active: true, CreatedAt: time.Now().UTC()}
	mat, err := NewMaterializer(b, nil)
	if err != nil {
		t.Fatalf("NewMaterializer: %v", err)
	}
	grant := b.grants["grant-1"]
	role := b.roles["role-doctor"]

	created, err := mat.Materialize(context.Background(), grant, role)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	want := len(DefaultCatalog().PermissionsForRole(RoleDoctor))
	if created != want {
		t.Fatalf("expected %d created, got %d", want, created)
	}

	created, err = mat.Materialize(context.Background(), grant, role)
	if err != nil {
		t.Fatalf("second Materialize: %v", err)
	}
	if created != 0 {
		t.Fatalf("re-run created %d rows", created)
	}
	perms, _ := b.ListForGrant(context.Background(), "grant-1")
	if len(perms) != want {
		t.Fatalf("expected %d stored permissions, got %d", want, len(perms))
	}
}

func TestMaterializeTreatsConflictAsPresent(t *testing.T) {
	b := testBackend()
	b.grants["grant-1"] = Grant{ID: "grant-1", UserID: "user-1", RoleID: "role-doctor", Code: "H01-DOCTOR-1", Active: true, CreatedAt: time.Now().UTC()}
	store := &conflictingPerms{memBackend: b, conflictOn: "order lab tests"}
	mat, err := NewMaterializer(store, nil)
	if err != nil {
		t.Fatalf("NewMaterializer: %v", err)
	}

	created, err := mat.Materialize(context.Background(), b.grants["grant-1"], b.roles["role-doctor"])
	if err != nil {
		t.Fatalf("a losing race must not fail materialization: %v", err)
	}
	want := len(DefaultCatalog().PermissionsForRole(RoleDoctor)) - 1
	if created != want {
		t.Fatalf("expected %d created, got %d", want, created)
	}
}

func TestMaterializeUnknownRoleCreatesNothing(t *testing.T) {
	b := testBackend()
	b.grants["grant-1"] = Grant{ID: "grant-1", UserID: "user-1", RoleID: "role-x", Code: "H01-X-1", Active: true, CreatedAt: time.Now().UTC()}
	mat, err := NewMaterializer(b, nil)
	if err != nil {
		t.Fatalf("NewMaterializer: %v", err)
	}
	created, err := mat.Materialize(context.Background(), b.grants["grant-1"], Role{ID: "role-x", Code: "ROLE_UNKNOWN"})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if created != 0 {
		t.Fatalf("expected nothing created for an uncatalogued role, got %d", created)
	}
}

func TestBackfillIsolatesFailures(t *testing.T) {
	b := testBackend()
	now := time.Now().UTC()
	b.grants["grant-ok"] = Grant{ID: "grant-ok", UserID: "user-1", RoleID: "role-nurse", Code: "H01-NURSE-1", Active: true, CreatedAt: now}
	b.grants["grant-bad"] = Grant{ID: "grant-bad", UserID: "user-1", RoleID: "role-broken", Code: "H01-X-2", Active: true, CreatedAt: now.Add(time.Second)}
	b.roleErr["role-broken"] = errors.New("directory timeout")

	mat, err := NewMaterializer(b, nil)
	if err != nil {
		t.Fatalf("NewMaterializer: %v", err)
	}
	report, err := mat.Backfill(context.Background(), b, b)
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if report.Scanned != 2 {
		t.Fatalf("expected 2 scanned, got %d", report.Scanned)
	}
	if report.Failed != 1 {
		t.Fatalf("expected 1 failure, got %d", report.Failed)
	}
	want := len(DefaultCatalog().PermissionsForRole(RoleNurse))
	if report.Materialized != want {
		t.Fatalf("expected %d materialized, got %d", want, report.Materialized)
	}
}
