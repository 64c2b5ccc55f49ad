package access

import "time"

// MergeEntry is one active grant prepared for dashboard merging: its role
// code, when it was granted, and its materialized permission names.
type MergeEntry struct {
	RoleCode    string
	GrantedAt   time.Time
	Permissions []string
}

// MergedAccess is the dashboard view over all of a user's active grants.
type MergedAccess struct {
	PrimaryRoleCode string   `json:"primaryRoleCode,omitempty"`
	Permissions     []string `json:"permissions"`
}

// Merger selects a primary role and merges permission sets for display.
type Merger struct {
	catalog  *Catalog
	priority map[string]int
}

// NewMerger builds a merger using the given priority order; earlier entries
// outrank later ones and unknown roles rank last. A nil order falls back to
// DefaultRolePriority.
func NewMerger(catalog *Catalog, priorityOrder []string) *Merger {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if priorityOrder == nil {
		priorityOrder = DefaultRolePriority()
	}
	priority := make(map[string]int, len(priorityOrder))
	for i, code := range priorityOrder {
		if _, ok := priority[code]; !ok {
			priority[code] = i
		}
	}
	return &Merger{catalog: catalog, priority: priority}
}

// Merge returns the primary role and the set union of all entries'
// permissions: catalog order of the primary role first, then any extras
// contributed by secondary roles in encounter order. An empty input yields
// no primary role and an empty set.
func (m *Merger) Merge(entries []MergeEntry) MergedAccess {
	merged := MergedAccess{Permissions: []string{}}
	if len(entries) == 0 {
		return merged
	}

	primary := entries[0]
	for _, e := range entries[1:] {
		switch pe, pp := m.rank(e.RoleCode), m.rank(primary.RoleCode); {
		case pe < pp:
			primary = e
		case pe == pp && e.GrantedAt.Before(primary.GrantedAt):
			primary = e
		}
	}
	merged.PrimaryRoleCode = primary.RoleCode

	available := make(map[string]struct{})
	for _, e := range entries {
		for _, name := range e.Permissions {
			available[name] = struct{}{}
		}
	}

	seen := make(map[string]struct{}, len(available))
	for _, name := range m.catalog.PermissionsForRole(primary.RoleCode) {
		if _, ok := available[name]; !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		merged.Permissions = append(merged.Permissions, name)
	}
	for _, e := range entries {
		for _, name := range e.Permissions {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			merged.Permissions = append(merged.Permissions, name)
		}
	}
	return merged
}

func (m *Merger) rank(roleCode string) int {
	if r, ok := m.priority[roleCode]; ok {
		return r
	}
	return len(m.priority)
}
