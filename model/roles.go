package model

// Well-known role identifiers. The set matches the platform's role enum;
// RoleAdmin is the privileged override that every transition guard admits
// regardless of its declared role list.
const (
	RoleAdmin           = "admin"
	RoleOperator        = "operator"
	RoleAnalyst         = "analyst"
	RoleSupervisor      = "supervisor"
	RoleAuditor         = "auditor"
	RoleExecutiveViewer = "executive_viewer"

	// RoleWildcard in a transition guard admits any authenticated role.
	RoleWildcard = "*"
)

// RoleSet is a set of role identifiers held by an actor or declared by a
// transition guard. A guard containing RoleWildcard admits every role.
type RoleSet map[string]bool

// NewRoleSet builds a RoleSet from a list of role identifiers.
func NewRoleSet(roles ...string) RoleSet {
	rs := make(RoleSet, len(roles))
	for _, r := range roles {
		rs[r] = true
	}
	return rs
}

// Has returns true if the set contains the given role.
func (rs RoleSet) Has(role string) bool {
	return rs[role]
}

// HasAny returns true if the set contains at least one of the given roles.
func (rs RoleSet) HasAny(roles RoleSet) bool {
	for r := range roles {
		if rs[r] {
			return true
		}
	}
	return false
}

// Admits reports whether a guard with this role set admits an actor holding
// the given roles. A guard admits when it declares the wildcard, when it
// shares any role with the actor, or when the actor holds RoleAdmin — the
// admin override is an explicit, deliberate capability, not a guard entry.
func (rs RoleSet) Admits(actorRoles RoleSet) bool {
	if actorRoles.Has(RoleAdmin) {
		return true
	}
	if rs.Has(RoleWildcard) {
		return true
	}
	return rs.HasAny(actorRoles)
}

// List returns the roles in the set. Order is unspecified.
func (rs RoleSet) List() []string {
	out := make([]string, 0, len(rs))
	for r := range rs {
		out = append(out, r)
	}
	return out
}

// Overlaps returns true if the two sets share a role or either declares the
// wildcard. Used by definition validation to detect ambiguous guards.
func (rs RoleSet) Overlaps(other RoleSet) bool {
	if rs.Has(RoleWildcard) || other.Has(RoleWildcard) {
		return true
	}
	return rs.HasAny(other)
}
