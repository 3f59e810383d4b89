package core

import (
	"context"
	"errors"

	"github.com/dkeye/mucd/internal/domain"
	"mellium.im/xmpp/jid"
)

var (
	// ErrBackpressure is returned by a Session whose outbound queue is full.
	ErrBackpressure = errors.New("backpressure: send queue full")
	ErrNoRoute      = errors.New("no route to recipient")
	ErrReadOnly     = errors.New("membership opened read-only")
)

// Participant is the capability set shared by local and remote users:
// an address and something that can process packets addressed by it.
type Participant interface {
	Address() jid.JID
	Process(ctx context.Context, pkt domain.Packet) error
}

// AffiliationStore persists affiliation records of persistent rooms.
type AffiliationStore interface {
	Load(room domain.RoomName) ([]domain.Member, error)
	Save(m domain.Member) error
	Delete(room domain.RoomName, bare jid.JID) error
}

// InviteGate may refuse invitations, e.g. for users known to reject them.
type InviteGate interface {
	CanInvite(room domain.RoomName, invitee jid.JID) bool
}
