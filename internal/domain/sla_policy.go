package domain

import "time"

// SLAPolicy maps a priority (and optionally a client tier) to the two SLA
// windows. A policy with an empty ClientTier applies to every tier that has
// no dedicated policy.
type SLAPolicy struct {
	ID                   string
	Name                 string
	Priority             TicketPriority
	ClientTier           string
	FirstResponseMinutes int
	ResolutionMinutes    int
	Active               bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// FirstResponseWindow returns the first-response window as a duration.
func (p SLAPolicy) FirstResponseWindow() time.Duration {
	return time.Duration(p.FirstResponseMinutes) * time.Minute
}

// ResolutionWindow returns the resolution window as a duration.
func (p SLAPolicy) ResolutionWindow() time.Duration {
	return time.Duration(p.ResolutionMinutes) * time.Minute
}
