package access

import "time"

// Organization is a tenant boundary owning zero or more facilities.
type Organization struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Facility is a single hospital or clinic site within an organization.
type Facility struct {
	ID             string
	OrganizationID string
	Code           string
	Name           string
	Active         bool
	CreatedAt      time.Time
}

// User is the identity record referenced by grants. Identity lifecycle
// (credentials, invites) is owned by an external collaborator.
type User struct {
	ID        string
	Username  string
	Email     string
	FirstName string
	LastName  string
	Phone     string
	Active    bool
	Deleted   bool
	CreatedAt time.Time
}

// Role is immutable reference data keyed by a unique code such as ROLE_DOCTOR.
type Role struct {
	ID        string
	Code      string
	Name      string
	CreatedAt time.Time
}

// Grant assigns a role to a user, optionally scoped to one facility.
// An empty FacilityID means the grant is platform-wide.
type Grant struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"userId"`
	RoleID               string    `json:"roleId"`
	FacilityID           string    `json:"hospitalId,omitempty"`
	Code                 string    `json:"assignmentCode"`
	Active               bool      `json:"active"`
	ConfirmationVerified bool      `json:"confirmationVerified"`
	CreatedBy            string    `json:"-"`
	CreatedAt            time.Time `json:"createdAt"`
}

// Global reports whether the grant applies across every facility.
func (g Grant) Global() bool { return g.FacilityID == "" }

// GrantPermission is one materialized permission record attached to a grant.
// Names are unique per grant; records are created once and never updated.
type GrantPermission struct {
	ID        string
	GrantID   string
	Name      string
	CreatedAt time.Time
}
