// Package guard decides whether a navigation to a protected view may
// proceed.
//
// Every protected view calls Authorize once with the current identity
// and the view's allowed-role set, instead of re-deriving role checks ad
// hoc. The decision is pure: same inputs, same answer, no side effects.
package guard

import (
	"github.com/shikshasetu/shiksha-client/internal/model"
	"github.com/shikshasetu/shiksha-client/internal/session"
)

// Decision is the three-way outcome of an authorization check.
type Decision int

const (
	// Allow renders the requested view in place.
	Allow Decision = iota
	// RedirectToLogin is for anonymous visitors: recoverable by signing in.
	RedirectToLogin
	// RedirectToUnauthorized renders a 403-style denial in place. The
	// visitor is signed in, just with the wrong role — sending them to
	// login would be misleading.
	RedirectToUnauthorized
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RedirectToLogin:
		return "redirect-to-login"
	case RedirectToUnauthorized:
		return "redirect-to-unauthorized"
	}
	return "unknown"
}

// RoleSet is the set of roles permitted on a route.
type RoleSet map[model.Role]struct{}

// Roles builds a RoleSet from its members.
func Roles(roles ...model.Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Contains reports whether r is a member of the set.
func (s RoleSet) Contains(r model.Role) bool {
	_, ok := s[r]
	return ok
}

// Authorize is the single decision point for protected navigation.
//
//	identity absent            → RedirectToLogin
//	role outside allowed set   → RedirectToUnauthorized
//	otherwise                  → Allow
//
// identity is nil for an anonymous visitor.
func Authorize(identity *session.Identity, allowed RoleSet) Decision {
	if identity == nil {
		return RedirectToLogin
	}
	if !allowed.Contains(identity.User.Role) {
		return RedirectToUnauthorized
	}
	return Allow
}

// Routes maps each protected view the client offers to its allowed-role
// set.
var Routes = map[string]RoleSet{
	"courses":       Roles(model.RoleStudent, model.RoleInstructor, model.RoleAdmin),
	"chat":          Roles(model.RoleStudent, model.RoleInstructor, model.RoleAdmin),
	"submissions":   Roles(model.RoleStudent, model.RoleInstructor, model.RoleAdmin),
	"create-course": Roles(model.RoleInstructor, model.RoleAdmin),
	"manage-course": Roles(model.RoleInstructor, model.RoleAdmin),
	"admin-users":   Roles(model.RoleAdmin),
}

// ForRoute returns the allowed-role set for a named route.
func ForRoute(name string) (RoleSet, bool) {
	set, ok := Routes[name]
	return set, ok
}
