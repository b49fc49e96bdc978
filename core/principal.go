package core

// Principal is an authenticated identity resolved by the auth collaborator.
// Email doubles as the stable subject for preference lookups.
type Principal struct {
	Subject string            `json:"subject"`
	Email   string            `json:"email,omitempty"`
	Claims  map[string]string `json:"claims,omitempty"`
}

// Authenticated reports whether the principal carries a resolved subject.
func (p *Principal) Authenticated() bool { return p != nil && p.Subject != "" }

// Key returns the identifier used to scope stored preferences.
func (p *Principal) Key() string {
	if p == nil {
		return ""
	}
	if p.Email != "" {
		return p.Email
	}
	return p.Subject
}
