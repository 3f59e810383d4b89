package domain

type (
	RoomName string
	RoomID   string
)

// RoomConfig holds the per-room flags consulted by the membership rules.
type RoomConfig struct {
	NaturalName         string `mapstructure:"natural_name" json:"natural_name,omitempty"`
	Description         string `mapstructure:"description" json:"description,omitempty"`
	Subject             string `mapstructure:"subject" json:"subject,omitempty"`
	MembersOnly         bool   `mapstructure:"members_only" json:"members_only"`
	Moderated           bool   `mapstructure:"moderated" json:"moderated"`
	NonAnonymous        bool   `mapstructure:"non_anonymous" json:"non_anonymous"`
	Public              bool   `mapstructure:"public" json:"public"`
	Persistent          bool   `mapstructure:"persistent" json:"persistent"`
	PasswordProtected   bool   `mapstructure:"password_protected" json:"password_protected"`
	Password            string `mapstructure:"password" json:"-"`
	MaxUsers            int    `mapstructure:"max_users" json:"max_users"`
	RegistrationEnabled bool   `mapstructure:"registration_enabled" json:"registration_enabled"`
	CanOccupantsInvite  bool   `mapstructure:"can_occupants_invite" json:"can_occupants_invite"`
	Locked              bool   `mapstructure:"locked" json:"locked"`
}

// RoomInfo is a point-in-time snapshot of a room used by listings and search.
type RoomInfo struct {
	ID                RoomID   `json:"id"`
	Name              RoomName `json:"name"`
	JID               string   `json:"jid"`
	NaturalName       string   `json:"natural_name,omitempty"`
	Description       string   `json:"description,omitempty"`
	Subject           string   `json:"subject,omitempty"`
	Occupants         int      `json:"occupants"`
	MaxUsers          int      `json:"max_users"`
	Public            bool     `json:"public"`
	Locked            bool     `json:"locked"`
	MembersOnly       bool     `json:"members_only"`
	Moderated         bool     `json:"moderated"`
	NonAnonymous      bool     `json:"non_anonymous"`
	PasswordProtected bool     `json:"password_protected"`
	Persistent        bool     `json:"persistent"`
}
