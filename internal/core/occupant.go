package core

import (
	"fmt"
	"sync"

	"github.com/dkeye/mucd/internal/domain"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"
)

// OccupantOptions carries the delivery and presence settings of a new occupant.
type OccupantOptions struct {
	Session Session
	Router  Router
	// NodeID is empty for occupants served by this node.
	NodeID string
	// Deaf occupants get no broadcast traffic but may still send.
	Deaf bool
}

// Occupant is one user's presence in one room.
// Role and affiliation changes go through SetRole/SetAffiliation, which
// enforce the protection rules of owners and admins.
type Occupant struct {
	mu sync.RWMutex

	room    jid.JID
	address jid.JID
	real    jid.JID
	nick    string

	role domain.Role
	aff  domain.Affiliation

	deaf     bool
	nodeID   string
	presence domain.Presence

	session Session
	router  Router
}

func NewOccupant(room jid.JID, nick string, real jid.JID, opts OccupantOptions) (*Occupant, error) {
	nick, err := domain.ValidateNickname(nick)
	if err != nil {
		return nil, err
	}
	room = room.Bare()
	addr, err := room.WithResource(nick)
	if err != nil {
		return nil, fmt.Errorf("%w: nickname %q: %v", domain.ErrBadRequest, nick, err)
	}
	o := &Occupant{
		room:    room,
		address: addr,
		real:    real,
		nick:    nick,
		role:    domain.RoleNone,
		aff:     domain.AffiliationNone,
		deaf:    opts.Deaf,
		nodeID:  opts.NodeID,
		session: opts.Session,
		router:  opts.Router,
	}
	o.refresh()
	return o, nil
}

func (o *Occupant) Address() jid.JID {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.address
}

func (o *Occupant) RealJID() jid.JID { return o.real }
func (o *Occupant) NodeID() string   { return o.nodeID }
func (o *Occupant) Local() bool      { return o.nodeID == "" }
func (o *Occupant) Deaf() bool       { return o.deaf }

func (o *Occupant) Nickname() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.nick
}

func (o *Occupant) Role() domain.Role {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.role
}

func (o *Occupant) Affiliation() domain.Affiliation {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.aff
}

// SetRole changes the occupant role. Owners and admins must stay
// moderators, and a moderator cannot be dropped to none.
func (o *Occupant) SetRole(r domain.Role) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.aff.Protected() && r != domain.RoleModerator {
		return fmt.Errorf("%w: %s must keep the moderator role", domain.ErrNotAllowed, o.aff)
	}
	if o.role == domain.RoleModerator && r == domain.RoleNone {
		return fmt.Errorf("%w: a moderator cannot be removed", domain.ErrNotAllowed)
	}
	o.applyRole(r)
	return nil
}

// SetAffiliation changes the cached affiliation; owners and admins cannot
// become outcasts.
func (o *Occupant) SetAffiliation(a domain.Affiliation) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.aff.Protected() && a == domain.AffiliationOutcast {
		return fmt.Errorf("%w: %s cannot be banned", domain.ErrNotAllowed, o.aff)
	}
	o.aff = a
	o.refresh()
	return nil
}

// evict drops the occupant out of the room after its affiliation no longer
// allows it to stay. The moderator guard of SetRole does not apply.
func (o *Occupant) evict() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.applyRole(domain.RoleNone)
}

func (o *Occupant) applyRole(r domain.Role) {
	o.role = r
	if r == domain.RoleNone {
		o.presence.Type = stanza.UnavailablePresence
		o.presence.Status = ""
		o.presence.Show = ""
	}
	o.refresh()
}

// ChangeNickname moves the occupant to room@service/nick.
func (o *Occupant) ChangeNickname(nick string) error {
	nick, err := domain.ValidateNickname(nick)
	if err != nil {
		return err
	}
	addr, err := o.room.WithResource(nick)
	if err != nil {
		return fmt.Errorf("%w: nickname %q: %v", domain.ErrBadRequest, nick, err)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nick = nick
	o.address = addr
	o.refresh()
	return nil
}

// SetStatus records the last show/status sent by the user.
func (o *Occupant) SetStatus(show, status string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.presence.Show = show
	o.presence.Status = status
}

// leave marks the presence unavailable, keeping the status text as the
// leave message.
func (o *Occupant) leave(status string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.presence.Type = stanza.UnavailablePresence
	o.presence.Show = ""
	o.presence.Status = status
	o.role = domain.RoleNone
	o.refresh()
}

// refresh recomputes the extended presence item. Caller holds o.mu.
func (o *Occupant) refresh() {
	o.presence.From = o.address
	o.presence.Item = domain.Item{
		JID:         o.real,
		Nick:        o.nick,
		Affiliation: o.aff,
		Role:        o.role,
	}
}

// Presence returns a copy of the current presence document.
func (o *Occupant) Presence() *domain.Presence {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.presence.Clone()
}

// Send delivers pkt to the occupant's real address: through the local
// session when it is authenticated, otherwise through the router.
func (o *Occupant) Send(pkt domain.Packet) error {
	o.mu.RLock()
	real, sess, router := o.real, o.session, o.router
	o.mu.RUnlock()

	pkt.SetRecipient(real)
	if sess != nil && sess.IsAuthenticated() {
		return sess.Deliver(pkt)
	}
	if router == nil {
		return fmt.Errorf("%w: %s", ErrNoRoute, real)
	}
	return router.Route(pkt)
}

// PresenceFor strips the real identity from p unless the viewer may see it.
func PresenceFor(p *domain.Presence, showJID bool) *domain.Presence {
	c := p.Clone()
	if !showJID {
		c.Item.JID = jid.JID{}
	}
	return c
}
