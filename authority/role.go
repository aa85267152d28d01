// Package authority decides whether a principal may perform an action. The
// role-to-action matrix is data loaded at startup, not code at the call site.
package authority

import (
	"sort"
	"strings"
)

// Role is a single police, judicial or civilian role
type Role string

// Known roles
const (
	RoleCitizen       Role = "citizen"
	RoleTrainee       Role = "trainee"
	RoleOfficer       Role = "officer"
	RolePatrolOfficer Role = "patrol_officer"
	RoleDetective     Role = "detective"
	RoleSergeant      Role = "sergeant"
	RoleCaptain       Role = "captain"
	RoleChief         Role = "chief"
	RoleJudge         Role = "judge"
	RoleAdmin         Role = "admin"
)

var knownRoles = map[Role]bool{
	RoleCitizen:       true,
	RoleTrainee:       true,
	RoleOfficer:       true,
	RolePatrolOfficer: true,
	RoleDetective:     true,
	RoleSergeant:      true,
	RoleCaptain:       true,
	RoleChief:         true,
	RoleJudge:         true,
	RoleAdmin:         true,
}

// Known reports whether r is a defined role
func (r Role) Known() bool {
	return knownRoles[r]
}

// RoleSet is the immutable set of roles a principal holds for one request
type RoleSet struct {
	roles map[Role]struct{}
}

// NewRoleSet builds a RoleSet, normalising case and dropping blanks and unknown names
func NewRoleSet(names ...string) RoleSet {
	rs := RoleSet{roles: make(map[Role]struct{}, len(names))}
	for _, n := range names {
		r := Role(strings.ToLower(strings.TrimSpace(n)))
		if r.Known() {
			rs.roles[r] = struct{}{}
		}
	}
	return rs
}

// Has reports whether the set contains r
func (rs RoleSet) Has(r Role) bool {
	_, ok := rs.roles[r]
	return ok
}

// IsSuperuser reports whether every check is bypassed
func (rs RoleSet) IsSuperuser() bool {
	return rs.Has(RoleAdmin)
}

// Len is the number of roles held
func (rs RoleSet) Len() int {
	return len(rs.roles)
}

// Strings returns the role names sorted, for tokens and logs
func (rs RoleSet) Strings() []string {
	out := make([]string, 0, len(rs.roles))
	for r := range rs.roles {
		out = append(out, string(r))
	}
	sort.Strings(out)
	return out
}

// Principal is the authenticated caller passed explicitly into every core call
type Principal struct {
	UserID string
	Roles  RoleSet
}

// NewPrincipal is a convenience for building a Principal from raw role names
func NewPrincipal(userID string, roles ...string) Principal {
	return Principal{UserID: userID, Roles: NewRoleSet(roles...)}
}
