package domain

import "mellium.im/xmpp/jid"

type EventKind string

const (
	EventRoomCreated        EventKind = "room_created"
	EventRoomDestroyed      EventKind = "room_destroyed"
	EventOccupantJoined     EventKind = "occupant_joined"
	EventOccupantLeft       EventKind = "occupant_left"
	EventOccupantKicked     EventKind = "occupant_kicked"
	EventNicknameChanged    EventKind = "nickname_changed"
	EventRoleChanged        EventKind = "role_changed"
	EventAffiliationChanged EventKind = "affiliation_changed"
)

// Event describes a membership change after it happened.
type Event struct {
	Kind        EventKind
	Room        RoomName
	JID         jid.JID
	Nick        string
	OldNick     string
	Role        Role
	Affiliation Affiliation
	// Node is the owning cluster node of the occupant, empty when local.
	Node string
}
