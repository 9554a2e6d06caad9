package event

// Type identifies the type of domain event
type Type string

const (
	TypeSubmissionCreated   Type = "submission.created"
	TypeConsentRecorded     Type = "transition.consent_recorded"
	TypeTransitionCommitted Type = "transition.committed"
	TypeApprovalInvalidated Type = "approval.invalidated"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeSubmissionCreated,
		TypeConsentRecorded,
		TypeTransitionCommitted,
		TypeApprovalInvalidated:
		return true
	default:
		return false
	}
}
