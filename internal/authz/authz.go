// Package authz implements role-based authorization over an authenticated
// identity.
package authz

import "errors"

// Deny reasons. Both surface as the same forbidden outcome at the HTTP
// layer but are logged distinctly for diagnosability.
var (
	ErrNoIdentity = errors.New("no authenticated identity")
	ErrNoRoles    = errors.New("identity carries no roles")
	ErrWrongRole  = errors.New("insufficient role")
)

// Identity is the minimal authenticated principal an authorization check
// needs.
type Identity struct {
	UserID string
	Email  string
	Roles  []string
}

// Authorize allows iff the identity's role set intersects the required set.
// Matching is case-sensitive with no hierarchy or implication: "admin" does
// not satisfy a check for "editor" unless the caller lists it.
func Authorize(identity *Identity, required []string) error {
	if identity == nil {
		return ErrNoIdentity
	}
	if len(identity.Roles) == 0 {
		return ErrNoRoles
	}

	allowed := make(map[string]struct{}, len(required))
	for _, r := range required {
		allowed[r] = struct{}{}
	}
	for _, r := range identity.Roles {
		if _, ok := allowed[r]; ok {
			return nil
		}
	}
	return ErrWrongRole
}
