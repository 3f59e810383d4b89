package domain

import (
	"time"

	"mellium.im/xmpp/jid"
)

// Member is the persisted affiliation of one bare identity in one room.
// No transport or lifecycle logic here.
type Member struct {
	Room        RoomName
	JID         jid.JID
	Affiliation Affiliation
	Nickname    string
	UpdatedAt   time.Time
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(room RoomName, bare jid.JID, aff Affiliation, nick string) *Member {
	return &Member{
		Room:        room,
		JID:         bare.Bare(),
		Affiliation: aff,
		Nickname:    nick,
		UpdatedAt:   time.Now().UTC(),
	}
}
