package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew             TicketStatus = "new"
	TicketStatusOpen            TicketStatus = "open"
	TicketStatusPendingCustomer TicketStatus = "pending_customer"
	TicketStatusPendingInternal TicketStatus = "pending_internal"
	TicketStatusOnHold          TicketStatus = "on_hold"
	TicketStatusResolved        TicketStatus = "resolved"
	TicketStatusClosed          TicketStatus = "closed"
	TicketStatusCancelled       TicketStatus = "cancelled"
)

// AllTicketStatuses lists every status in lifecycle order.
var AllTicketStatuses = []TicketStatus{
	TicketStatusNew,
	TicketStatusOpen,
	TicketStatusPendingCustomer,
	TicketStatusPendingInternal,
	TicketStatusOnHold,
	TicketStatusResolved,
	TicketStatusClosed,
	TicketStatusCancelled,
}

// ActiveTicketStatuses are the statuses still subject to SLA accounting.
var ActiveTicketStatuses = []TicketStatus{
	TicketStatusNew,
	TicketStatusOpen,
	TicketStatusPendingCustomer,
	TicketStatusPendingInternal,
	TicketStatusOnHold,
}

// IsTerminal reports whether no further SLA accounting applies.
func (s TicketStatus) IsTerminal() bool {
	switch s {
	case TicketStatusResolved, TicketStatusClosed, TicketStatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	for _, candidate := range AllTicketStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// SLADimension names one of the two tracked SLA milestones.
type SLADimension string

const (
	SLAFirstResponse SLADimension = "first_response"
	SLAResolution    SLADimension = "resolution"
)

// SLADimensions lists the milestones in scan order.
var SLADimensions = []SLADimension{SLAFirstResponse, SLAResolution}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID          string
	Code        string
	ClientID    string
	ClientTier  string
	AssigneeID  *string
	Title       string
	Description string
	Status      TicketStatus
	Priority    TicketPriority

	FirstResponseDueAt      *time.Time
	FirstResponseAt         *time.Time
	FirstResponseBreachedAt *time.Time
	ResolutionDueAt         *time.Time
	ResolvedAt              *time.Time
	ResolutionBreachedAt    *time.Time

	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastActivityAt time.Time
	ClosedAt       *time.Time
}

// IsTerminal reports whether the ticket reached a terminal status.
func (t *Ticket) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// DueAt returns the deadline for the dimension.
func (t *Ticket) DueAt(dim SLADimension) *time.Time {
	if dim == SLAFirstResponse {
		return t.FirstResponseDueAt
	}
	return t.ResolutionDueAt
}

// MetAt returns when the milestone was met, if it was.
func (t *Ticket) MetAt(dim SLADimension) *time.Time {
	if dim == SLAFirstResponse {
		return t.FirstResponseAt
	}
	return t.ResolvedAt
}

// BreachedAt returns the recorded breach time for the dimension.
func (t *Ticket) BreachedAt(dim SLADimension) *time.Time {
	if dim == SLAFirstResponse {
		return t.FirstResponseBreachedAt
	}
	return t.ResolutionBreachedAt
}

// Frozen reports whether the due/breach pair may no longer be written.
func (t *Ticket) Frozen(dim SLADimension) bool {
	return t.MetAt(dim) != nil
}

// IsBreachCandidate evaluates the guard predicate used by the breach scanner:
// active status, deadline set and elapsed, milestone unmet and unmarked.
func (t *Ticket) IsBreachCandidate(dim SLADimension, now time.Time) bool {
	if t.IsTerminal() {
		return false
	}
	due := t.DueAt(dim)
	if due == nil || due.After(now) {
		return false
	}
	return t.MetAt(dim) == nil && t.BreachedAt(dim) == nil
}

// MarkBreached records the breach if the guard predicate still holds.
func (t *Ticket) MarkBreached(dim SLADimension, now time.Time) bool {
	if !t.IsBreachCandidate(dim, now) {
		return false
	}
	at := now
	if dim == SLAFirstResponse {
		t.FirstResponseBreachedAt = &at
	} else {
		t.ResolutionBreachedAt = &at
	}
	t.UpdatedAt = now
	return true
}

// BreachReported reports whether the dimension counts as breached for
// reporting. Cancelled tickets are never reported as breached.
func (t *Ticket) BreachReported(dim SLADimension) bool {
	if t.Status == TicketStatusCancelled {
		return false
	}
	return t.BreachedAt(dim) != nil
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	out := *t
	out.AssigneeID = cloneString(t.AssigneeID)
	out.FirstResponseDueAt = cloneTime(t.FirstResponseDueAt)
	out.FirstResponseAt = cloneTime(t.FirstResponseAt)
	out.FirstResponseBreachedAt = cloneTime(t.FirstResponseBreachedAt)
	out.ResolutionDueAt = cloneTime(t.ResolutionDueAt)
	out.ResolvedAt = cloneTime(t.ResolvedAt)
	out.ResolutionBreachedAt = cloneTime(t.ResolutionBreachedAt)
	out.ClosedAt = cloneTime(t.ClosedAt)
	return &out
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
