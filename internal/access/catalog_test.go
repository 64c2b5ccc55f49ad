package access

import "testing"

func TestDefaultCatalogRoles(t *testing.T) {
	c := DefaultCatalog()
	for _, code := range DefaultRolePriority() {
		if !c.KnownRole(code) {
			t.Errorf("catalog missing role %s", code)
		}
		if len(c.PermissionsForRole(code)) == 0 {
			t.Errorf("role %s has no permissions", code)
		}
	}
	if c.KnownRole("ROLE_JANITOR") {
		t.Fatal("unexpected role in catalog")
	}
	if c.PermissionsForRole("ROLE_JANITOR") != nil {
		t.Fatal("unknown role should yield nil")
	}
}

func TestCatalogCopiesOnConstruction(t *testing.T) {
	entries := map[string][]string{
		"ROLE_X": {"a", "b"},
	}
	c := NewCatalog(entries)
	entries["ROLE_X"][0] = "mutated"
	if got := c.PermissionsForRole("ROLE_X")[0]; got != "a" {
		t.Fatalf("catalog shares backing array with input: %s", got)
	}
}

func TestCatalogCopiesOnRead(t *testing.T) {
	c := DefaultCatalog()
	first := c.PermissionsForRole(RoleDoctor)
	first[0] = "mutated"
	if got := c.PermissionsForRole(RoleDoctor)[0]; got == "mutated" {
		t.Fatal("catalog leaked its backing array to a caller")
	}
}
