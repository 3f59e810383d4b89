package core

import (
	"github.com/dkeye/mucd/internal/domain"
	"mellium.im/xmpp/jid"
)

// Session is the local delivery handle of a connected user.
// Owned by the adapter; the adapter must close it.
type Session interface {
	IsAuthenticated() bool
	Deliver(pkt domain.Packet) error
}

// SessionLookup resolves a full identity to its local session, or a bare
// identity to the sessions of all its resources.
type SessionLookup interface {
	SessionFor(full jid.JID) (Session, bool)
	SessionsOf(bare jid.JID) []Session
}

// Router is the generic delivery fallback used when no local session is
// attached to an occupant.
type Router interface {
	Route(pkt domain.Packet) error
}
