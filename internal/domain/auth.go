package domain

// SubjectType differentiates clients, staff and the system itself.
type SubjectType string

const (
	SubjectTypeClient SubjectType = "CLIENT"
	SubjectTypeStaff  SubjectType = "STAFF"
	SubjectTypeSystem SubjectType = "SYSTEM"
)

// Actor identifies who performs an operation. Authentication happens before
// the core is invoked; the core only trusts these fields.
type Actor struct {
	Type SubjectType
	ID   string
	Role *StaffRole
}

// SystemActor is used for scheduler driven changes.
var SystemActor = Actor{Type: SubjectTypeSystem}

// IsStaff reports whether the actor is a staff member.
func (a Actor) IsStaff() bool {
	return a.Type == SubjectTypeStaff
}

// IsClient reports whether the actor is a client.
func (a Actor) IsClient() bool {
	return a.Type == SubjectTypeClient
}

// SenderType maps the actor to a comment sender type.
func (a Actor) SenderType() SenderType {
	if a.Type == SubjectTypeClient {
		return SenderTypeClient
	}
	return SenderTypeStaff
}
