// Package access decides whether an authenticated identity may use a route.
//
// Roles are a flat set. A requirement is satisfied only when the caller's role
// is a member of it; no role implies another.
package access

import (
	"fmt"

	"auth-service/internal/model"
)

type RoleSet map[model.Role]struct{}

func Roles(roles ...model.Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

func (s RoleSet) Contains(role model.Role) bool {
	_, ok := s[role]
	return ok
}

// Authorize returns model.ErrUnauthenticated when there is no identity and
// model.ErrForbidden when the identity's role is not in required.
// An empty requirement denies everyone.
func Authorize(required RoleSet, identity *model.Identity) error {
	if identity == nil {
		return model.ErrUnauthenticated
	}
	if !required.Contains(identity.Role) {
		return fmt.Errorf("%w: role %q not permitted", model.ErrForbidden, identity.Role)
	}
	return nil
}
