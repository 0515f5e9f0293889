package booking

import (
	"strings"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// Actor is the identity performing an operation together with its roles.
// It is always passed explicitly; nothing is read from the request context.
type Actor struct {
	Username string
	Roles    []string
}

// IsAdmin accepts both "ADMIN" and the prefixed "ROLE_ADMIN" form.
func (a Actor) IsAdmin() bool {
	for _, r := range a.Roles {
		r = strings.ToUpper(strings.TrimSpace(r))
		if r == model.RoleAdmin || r == "ROLE_"+model.RoleAdmin {
			return true
		}
	}
	return false
}

// Owns compares usernames case-insensitively.
func (a Actor) Owns(t model.Ticket) bool {
	return a.Username != "" && strings.EqualFold(a.Username, t.Username)
}
