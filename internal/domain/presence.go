package domain

import (
	"slices"

	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"
)

// Presence status codes used in room broadcasts.
const (
	StatusNonAnonymous      = 100
	StatusSelfPresence      = 110
	StatusRoomCreated       = 201
	StatusBanned            = 301
	StatusNewNickname       = 303
	StatusKicked            = 307
	StatusAffiliationChange = 321
	StatusMembersOnly       = 322
)

// Packet is anything the room can hand to a delivery handle.
type Packet interface {
	Recipient() jid.JID
	SetRecipient(to jid.JID)
}

// Item is the user extension carried by every room presence.
type Item struct {
	JID         jid.JID
	Nick        string
	Affiliation Affiliation
	Role        Role
	Reason      string
	Actor       string
	ActorJID    jid.JID
}

// Presence is an occupant presence document extended with its room item.
type Presence struct {
	ID          string
	From        jid.JID
	To          jid.JID
	Type        stanza.PresenceType
	Show        string
	Status      string
	// Password is only read on join.
	Password    string
	Item        Item
	StatusCodes []int
}

func (p *Presence) Recipient() jid.JID      { return p.To }
func (p *Presence) SetRecipient(to jid.JID) { p.To = to }

func (p *Presence) Unavailable() bool {
	return p.Type == stanza.UnavailablePresence
}

func (p *Presence) Clone() *Presence {
	if p == nil {
		return nil
	}
	c := *p
	c.StatusCodes = slices.Clone(p.StatusCodes)
	return &c
}

// WithStatus returns a copy carrying the additional status codes.
func (p *Presence) WithStatus(codes ...int) *Presence {
	c := p.Clone()
	for _, code := range codes {
		if !slices.Contains(c.StatusCodes, code) {
			c.StatusCodes = append(c.StatusCodes, code)
		}
	}
	return c
}

// Invite is a mediated invitation sent by the room on behalf of From.
type Invite struct {
	From     jid.JID
	Reason   string
	Password string
}

// Message is the only message shape the room emits: invitations.
type Message struct {
	ID     string
	From   jid.JID
	To     jid.JID
	Body   string
	Invite *Invite
}

func (m *Message) Recipient() jid.JID      { return m.To }
func (m *Message) SetRecipient(to jid.JID) { m.To = to }
