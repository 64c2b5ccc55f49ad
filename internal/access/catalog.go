package access

// Role codes used across the platform.
const (
	RoleSuperAdmin    = "ROLE_SUPER_ADMIN"
	RoleHospitalAdmin = "ROLE_HOSPITAL_ADMIN"
	RoleDoctor        = "ROLE_DOCTOR"
	RoleNurse         = "ROLE_NURSE"
	RolePharmacist    = "ROLE_PHARMACIST"
	RoleLabTech       = "ROLE_LAB_TECH"
	RoleReceptionist  = "ROLE_RECEPTIONIST"
)

// Catalog is the static role-to-permission mapping. It is immutable after
// construction and safe for concurrent readers without locking.
type Catalog struct {
	perms map[string][]string
}

// NewCatalog copies the given mapping so later mutation of the argument
// cannot leak into the catalog.
func NewCatalog(entries map[string][]string) *Catalog {
	perms := make(map[string][]string, len(entries))
	for role, names := range entries {
		cp := make([]string, len(names))
		copy(cp, names)
		perms[role] = cp
	}
	return &Catalog{perms: perms}
}

// DefaultCatalog returns the platform catalog.
func DefaultCatalog() *Catalog {
	return NewCatalog(map[string][]string{
		RoleSuperAdmin: {
			"manage organizations",
			"manage facilities",
			"manage users",
			"manage roles",
			"view audit log",
		},
		RoleHospitalAdmin: {
			"manage users",
			"manage schedules",
			"view billing reports",
			"view audit log",
		},
		RoleDoctor: {
			"view patient records",
			"order lab tests",
			"write prescriptions",
			"edit clinical notes",
		},
		RoleNurse: {
			"view patient records",
			"record vitals",
			"administer medication",
		},
		RolePharmacist: {
			"view prescriptions",
			"dispense medication",
		},
		RoleLabTech: {
			"view lab orders",
			"record lab results",
		},
		RoleReceptionist: {
			"view schedules",
			"book appointments",
			"register patients",
		},
	})
}

// PermissionsForRole returns the ordered permission names for a role code.
// Unknown roles yield nil.
func (c *Catalog) PermissionsForRole(roleCode string) []string {
	names, ok := c.perms[roleCode]
	if !ok {
		return nil
	}
	cp := make([]string, len(names))
	copy(cp, names)
	return cp
}

// KnownRole reports whether the catalog defines the role code.
func (c *Catalog) KnownRole(roleCode string) bool {
	_, ok := c.perms[roleCode]
	return ok
}

// DefaultRolePriority orders roles for primary-role selection on the
// dashboard: administrative roles outrank clinical roles, which outrank
// operational roles. Callers may supply their own ordering.
func DefaultRolePriority() []string {
	return []string{
		RoleSuperAdmin,
		RoleHospitalAdmin,
		RoleDoctor,
		RoleNurse,
		RolePharmacist,
		RoleLabTech,
		RoleReceptionist,
	}
}
