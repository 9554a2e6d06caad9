package workflow

import "github.com/garyjia/formflow/internal/domain/entity"

// Progress splits a transition's allowed roles into consented and remaining.
// Consents for roles outside the allowed set are ignored.
func Progress(t entity.Transition, pending *entity.PendingApproval) (consented, remaining []string) {
	consented = []string{}
	remaining = []string{}
	for _, role := range t.AllowedRoles {
		if pending.HasRole(role) {
			consented = append(consented, role)
		} else {
			remaining = append(remaining, role)
		}
	}
	return consented, remaining
}

// Satisfied reports whether every allowed role has consented
func Satisfied(t entity.Transition, pending *entity.PendingApproval) bool {
	_, remaining := Progress(t, pending)
	return len(remaining) == 0
}
