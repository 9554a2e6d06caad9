package entity

import "time"

// Consent is a single role's agreement to an AND transition
type Consent struct {
	Role        string    `json:"role"`
	ActorID     string    `json:"actor_id"`
	ConsentedAt time.Time `json:"consented_at"`
}

// PendingApproval accumulates consents for one (submission, from, to) attempt
type PendingApproval struct {
	SubmissionID int64     `json:"submission_id"`
	FromState    string    `json:"from_state"`
	ToState      string    `json:"to_state"`
	Consents     []Consent `json:"consents"`
}

// Roles returns the consenting roles in recorded order
func (p *PendingApproval) Roles() []string {
	if p == nil {
		return nil
	}
	roles := make([]string, 0, len(p.Consents))
	for _, c := range p.Consents {
		roles = append(roles, c.Role)
	}
	return roles
}

// HasRole reports whether the role already consented
func (p *PendingApproval) HasRole(role string) bool {
	if p == nil {
		return false
	}
	for _, c := range p.Consents {
		if c.Role == role {
			return true
		}
	}
	return false
}
