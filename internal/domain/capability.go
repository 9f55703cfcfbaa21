package domain

// Capability names an action gated by the external permission layer.
type Capability string

const (
	CapabilityForceClose          Capability = "tickets.force_close"
	CapabilityChangePriority      Capability = "tickets.change_priority"
	CapabilityAssign              Capability = "tickets.assign"
	CapabilityInternalComment     Capability = "comments.internal"
	CapabilityDeleteAnyAttachment Capability = "attachments.delete_any"
	CapabilityViewPolicies        Capability = "sla.policies.view"
	CapabilityRunScan             Capability = "sla.scan"
)
