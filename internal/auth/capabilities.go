package auth

import "github.com/spec-kit/helpdesk-service/internal/domain"

// defaultRoleCapabilities grants capabilities by staff role. Clients hold none.
var defaultRoleCapabilities = map[domain.StaffRole][]domain.Capability{
	domain.StaffRoleAgent: {
		domain.CapabilityChangePriority,
		domain.CapabilityAssign,
		domain.CapabilityInternalComment,
		domain.CapabilityViewPolicies,
	},
	domain.StaffRoleTeamLead: {
		domain.CapabilityChangePriority,
		domain.CapabilityAssign,
		domain.CapabilityInternalComment,
		domain.CapabilityViewPolicies,
		domain.CapabilityForceClose,
	},
	domain.StaffRoleAdmin: {
		domain.CapabilityChangePriority,
		domain.CapabilityAssign,
		domain.CapabilityInternalComment,
		domain.CapabilityViewPolicies,
		domain.CapabilityForceClose,
		domain.CapabilityDeleteAnyAttachment,
		domain.CapabilityRunScan,
	},
}

// RoleCapabilities answers capability checks from a static role table.
type RoleCapabilities struct {
	grants map[domain.StaffRole]map[domain.Capability]struct{}
}

// NewRoleCapabilities builds a checker from the default role table.
func NewRoleCapabilities() *RoleCapabilities {
	return NewRoleCapabilitiesFrom(defaultRoleCapabilities)
}

// NewRoleCapabilitiesFrom builds a checker from a custom table.
func NewRoleCapabilitiesFrom(table map[domain.StaffRole][]domain.Capability) *RoleCapabilities {
	grants := make(map[domain.StaffRole]map[domain.Capability]struct{}, len(table))
	for role, caps := range table {
		set := make(map[domain.Capability]struct{}, len(caps))
		for _, c := range caps {
			set[c] = struct{}{}
		}
		grants[role] = set
	}
	return &RoleCapabilities{grants: grants}
}

// HasCapability reports whether actor may perform action. The system actor
// is trusted for every action.
func (r *RoleCapabilities) HasCapability(actor domain.Actor, action domain.Capability) bool {
	if actor.Type == domain.SubjectTypeSystem {
		return true
	}
	if !actor.IsStaff() || actor.Role == nil {
		return false
	}
	_, ok := r.grants[*actor.Role][action]
	return ok
}
