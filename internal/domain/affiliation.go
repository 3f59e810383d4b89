package domain

import (
	"fmt"
	"strings"
)

// Affiliation is the persistent standing of a bare identity in a room.
type Affiliation uint8

const (
	AffiliationNone Affiliation = iota
	AffiliationOutcast
	AffiliationMember
	AffiliationAdmin
	AffiliationOwner
)

func (a Affiliation) String() string {
	switch a {
	case AffiliationOutcast:
		return "outcast"
	case AffiliationMember:
		return "member"
	case AffiliationAdmin:
		return "admin"
	case AffiliationOwner:
		return "owner"
	default:
		return "none"
	}
}

// Protected reports whether the affiliation shields its holder from kicks,
// bans and role demotion (owner and admin).
func (a Affiliation) Protected() bool {
	return a == AffiliationOwner || a == AffiliationAdmin
}

// Rank orders affiliations from outcast (0) to owner (4).
func (a Affiliation) Rank() int {
	switch a {
	case AffiliationOutcast:
		return 0
	case AffiliationNone:
		return 1
	case AffiliationMember:
		return 2
	case AffiliationAdmin:
		return 3
	default:
		return 4
	}
}

func (a Affiliation) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Affiliation) UnmarshalText(b []byte) error {
	v, err := ParseAffiliation(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func ParseAffiliation(s string) (Affiliation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return AffiliationNone, nil
	case "outcast":
		return AffiliationOutcast, nil
	case "member":
		return AffiliationMember, nil
	case "admin":
		return AffiliationAdmin, nil
	case "owner":
		return AffiliationOwner, nil
	}
	return AffiliationNone, fmt.Errorf("%w: unknown affiliation %q", ErrBadRequest, s)
}
