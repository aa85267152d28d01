package authority

import "go.uber.org/zap"

// Snapshot is the slice of entity state an authorization decision may look at
type Snapshot struct {
	// OwnerID is the creator of the entity, checked for owner-only actions
	OwnerID string
}

// Authority answers permission queries against a Matrix
type Authority struct {
	matrix *Matrix
}

// New returns an Authority backed by m
func New(m *Matrix) *Authority {
	return &Authority{matrix: m}
}

// HasPermission reports whether p may perform action on the entity described by snap.
// Admin bypasses every check, including ownership.
func (a *Authority) HasPermission(p Principal, action Action, snap Snapshot) bool {
	if p.Roles.IsSuperuser() {
		return true
	}
	rule, ok := a.matrix.Rule(action)
	if !ok {
		zap.S().Warnw("permission check for unknown action", "action", action)
		return false
	}
	if rule.OwnerOnly && (p.UserID == "" || p.UserID != snap.OwnerID) {
		return false
	}
	for r := range p.Roles.roles {
		if rule.Roles[r] {
			return true
		}
	}
	return false
}
