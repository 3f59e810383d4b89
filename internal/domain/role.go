package domain

import (
	"fmt"
	"strings"
)

// Role is the transient privilege of an occupant while it is in a room.
type Role uint8

const (
	RoleNone Role = iota
	RoleVisitor
	RoleParticipant
	RoleModerator
)

func (r Role) String() string {
	switch r {
	case RoleVisitor:
		return "visitor"
	case RoleParticipant:
		return "participant"
	case RoleModerator:
		return "moderator"
	default:
		return "none"
	}
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	v, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return RoleNone, nil
	case "visitor":
		return RoleVisitor, nil
	case "participant":
		return RoleParticipant, nil
	case "moderator":
		return RoleModerator, nil
	}
	return RoleNone, fmt.Errorf("%w: unknown role %q", ErrBadRequest, s)
}
