package enums

import "fmt"

// ActorRole identifies which side of the marketplace an authenticated
// actor operates on.
type ActorRole string

const (
	ActorRoleBuyer  ActorRole = "buyer"
	ActorRoleSeller ActorRole = "seller"
)

// String implements fmt.Stringer.
func (r ActorRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ActorRole.
func (r ActorRole) IsValid() bool {
	return r == ActorRoleBuyer || r == ActorRoleSeller
}

// ParseActorRole converts raw input into an ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	switch ActorRole(value) {
	case ActorRoleBuyer:
		return ActorRoleBuyer, nil
	case ActorRoleSeller:
		return ActorRoleSeller, nil
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
