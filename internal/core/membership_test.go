package core

import (
	"testing"

	"github.com/dkeye/mucd/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"
)

func TestAdminsAndOwnersCannotBeKickedOrBanned(t *testing.T) {
	svc := newTestService(t, ServiceOptions{})
	room := newTestRoom(t, svc, "lounge", domain.RoomConfig{})
	join(t, room, "boss", "owner@example.org/desk")
	admin := join(t, room, "adm", "admin@example.org/desk")
	join(t, room, "mod", "mod@example.org/desk")

	owner := actorFor(t, room, "owner@example.org/desk")
	_, err := room.Update(func(m *Membership) error {
		if _, err := m.AddAdmin(jid.MustParse("admin@example.org"), owner); err != nil {
			return err
		}
		_, err := m.AddModerator(jid.MustParse("mod@example.org/desk"), owner)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleModerator, admin.Role())

	mod := actorFor(t, room, "mod@example.org/desk")
	adminActor := actorFor(t, room, "admin@example.org/desk")
	cases := []struct {
		name string
		fn   func(m *Membership) error
	}{
		{"kick admin", func(m *Membership) error {
			_, err := m.Kick(jid.MustParse("admin@example.org/desk"), "", mod)
			return err
		}},
		{"kick owner", func(m *Membership) error {
			_, err := m.Kick(jid.MustParse("owner@example.org/desk"), "", mod)
			return err
		}},
		{"kick moderator", func(m *Membership) error {
			_, err := m.Kick(jid.MustParse("mod@example.org/desk"), "", adminActor)
			return err
		}},
		{"ban admin", func(m *Membership) error {
			_, err := m.AddOutcast(jid.MustParse("admin@example.org"), "", owner)
			return err
		}},
		{"ban owner", func(m *Membership) error {
			_, err := m.AddOutcast(jid.MustParse("owner@example.org"), "", adminActor)
			return err
		}},
		{"silence admin", func(m *Membership) error {
			_, err := m.AddVisitor(jid.MustParse("admin@example.org/desk"), owner)
			return err
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			out, err := room.Update(c.fn)
			assert.ErrorIs(t, err, domain.ErrNotAllowed)
			assert.Empty(t, out.Broadcasts)
		})
	}

	require.NoError(t, room.View(func(m *Membership) error {
		for _, o := range m.Occupants() {
			if o.Affiliation().Protected() {
				assert.Equal(t, domain.RoleModerator, o.Role(), o.Nickname())
			}
		}
		assert.Equal(t, 3, m.OccupantCount())
		return nil
	}))
}

func TestKickRequiresModeratorRole(t *testing.T) {
	svc := newTestService(t, ServiceOptions{})
	room := newTestRoom(t, svc, "lounge", domain.RoomConfig{})
	join(t, room, "boss", "owner@example.org/desk")
	join(t, room, "bob", "bob@example.org/laptop")
	join(t, room, "carol", "carol@example.org/phone")

	bob := actorFor(t, room, "bob@example.org/laptop")
	_, err := room.Update(func(m *Membership) error {
		_, err := m.Kick(jid.MustParse("carol@example.org/phone"), "", bob)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	owner := actorFor(t, room, "owner@example.org/desk")
	out, err := room.Update(func(m *Membership) error {
		_, err := m.Kick(jid.MustParse("carol@example.org/phone"), "spam", owner)
		return err
	})
	require.NoError(t, err)
	require.Len(t, out.Broadcasts, 1)
	b := out.Broadcasts[0]
	assert.True(t, b.Departed)
	assert.Equal(t, stanza.UnavailablePresence, b.Presence.Type)
	assert.Contains(t, b.Presence.StatusCodes, domain.StatusKicked)
	assert.Equal(t, "spam", b.Presence.Item.Reason)
	assert.Equal(t, "boss", b.Presence.Item.Actor)
	assert.Equal(t, 2, room.OccupantCount())
}

func TestOutcastRemovesOccupantWithSinglePresence(t *testing.T) {
	svc := newTestService(t, ServiceOptions{})
	room := newTestRoom(t, svc, "lounge", domain.RoomConfig{})
	join(t, room, "boss", "owner@example.org/desk")
	join(t, room, "bob", "bob@example.org/laptop")

	owner := actorFor(t, room, "owner@example.org/desk")
	out, err := room.Update(func(m *Membership) error {
		_, err := m.AddOutcast(jid.MustParse("bob@example.org"), "trolling", owner)
		return err
	})
	require.NoError(t, err)
	require.Len(t, out.Broadcasts, 1)
	p := out.Broadcasts[0].Presence
	assert.Equal(t, stanza.UnavailablePresence, p.Type)
	assert.Equal(t, []int{domain.StatusBanned}, p.StatusCodes)
	assert.Equal(t, domain.AffiliationOutcast, p.Item.Affiliation)
	assert.Equal(t, domain.RoleNone, p.Item.Role)
	assert.Equal(t, "trolling", p.Item.Reason)

	require.NoError(t, room.View(func(m *Membership) error {
		assert.Empty(t, m.OccupantsByBare(jid.MustParse("bob@example.org")))
		assert.Empty(t, m.OccupantsByNickname("bob"))
		assert.Equal(t, domain.AffiliationOutcast, m.Affiliation(jid.MustParse("bob@example.org/other")))
		return nil
	}))

	_, err = room.Update(func(m *Membership) error {
		_, err := m.Join("bob", jid.MustParse("bob@example.org/laptop"), JoinOptions{})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestOutcastEveryOccupancyOfBareIdentity(t *testing.T) {
	svc := newTestService(t, ServiceOptions{})
	room := newTestRoom(t, svc, "lounge", domain.RoomConfig{})
	join(t, room, "boss", "owner@example.org/desk")
	join(t, room, "bob", "bob@example.org/laptop")
	join(t, room, "bob", "bob@example.org/phone")

	owner := actorFor(t, room, "owner@example.org/desk")
	out, err := room.Update(func(m *Membership) error {
		_, err := m.AddOutcast(jid.MustParse("bob@example.org"), "", owner)
		return err
	})
	require.NoError(t, err)
	assert.Len(t, out.Broadcasts, 2)
	assert.Equal(t, 1, room.OccupantCount())
}

func TestSelfBanIsConflict(t *testing.T) {
	svc := newTestService(t, ServiceOptions{})
	room := newTestRoom(t, svc, "lounge", domain.RoomConfig{})
	join(t, room, "boss", "owner@example.org/desk")
	owner := actorFor(t, room, "owner@example.org/desk")
	_, err := room.Update(func(m *Membership) error {
		_, err := m.AddOutcast(jid.MustParse("owner@example.org"), "", owner)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestAddMember(t *testing.T) {
	t.Run("reserved nickname conflict", func(t *testing.T) {
		svc := newTestService(t, ServiceOptions{})
		room := newTestRoom(t, svc, "lounge", domain.RoomConfig{})
		owner := actorFor(t, room, "owner@example.org")
		_, err := room.Update(func(m *Membership) error {
			if _, err := m.AddMember(jid.MustParse("bob@example.org"), "bob", owner); err != nil {
				return err
			}
			_, err := m.AddMember(jid.MustParse("eve@example.org"), "Bob", owner)
			return err
		})
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("last owner cannot be demoted", func(t *testing.T) {
		svc := newTestService(t, ServiceOptions{})
		room := newTestRoom(t, svc, "lounge", domain.RoomConfig{})
		owner := actorFor(t, room, "owner@example.org")
		_, err := room.Update(func(m *Membership) error {
			_, err := m.AddMember(jid.MustParse("owner@example.org"), "", owner)
			return err
		})
		assert.ErrorIs(t, err, domain.ErrConflict)
		_, err = room.Update(func(m *Membership) error {
			_, err := m.AddNone(jid.MustParse("owner@example.org"), owner)
			return err
		})
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("admin cannot demote an admin", func(t *testing.T) {
		svc := newTestService(t, ServiceOptions{})
		room := newTestRoom(t, svc, "lounge", domain.RoomConfig{})
		owner := actorFor(t, room, "owner@example.org")
		_, err := room.Update(func(m *Membership) error {
			if _, err := m.AddAdmin(jid.MustParse("a1@example.org"), owner); err != nil {
				return err
			}
			_, err := m.AddAdmin(jid.MustParse("a2@example.org"), owner)
			return err
		})
		require.NoError(t, err)
		a1 := actorFor(t, room, "a1@example.org")
		_, err = room.Update(func(m *Membership) error {
			_, err := m.AddMember(jid.MustParse("a2@example.org"), "", a1)
			return err
		})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("members-only room sends invitation", func(t *testing.T) {
		svc := newTestService(t, ServiceOptions{})
		room := newTestRoom(t, svc, "club", domain.RoomConfig{MembersOnly: true, PasswordProtected: true, Password: "s3cret"})
		owner := actorFor(t, room, "owner@example.org")
		out, err := room.Update(func(m *Membership) error {
			_, err := m.AddMember(jid.MustParse("bob@example.org"), "", owner)
			return err
		})
		require.NoError(t, err)
		require.Len(t, out.Invites, 1)
		inv := out.Invites[0]
		assert.Equal(t, "bob@example.org", inv.To.String())
		assert.Equal(t, "club@conference.example.org", inv.From.String())
		assert.Equal(t, "s3cret", inv.Invite.Password)

		out, err = room.Update(func(m *Membership) error {
			_, err := m.AddMember(jid.MustParse("bob@example.org"), "", owner)
			return err
		})
		require.NoError(t, err)
		assert.True(t, out.Empty())
	})

	t.Run("skip invite", func(t *testing.T) {
		svc := newTestService(t, ServiceOptions{SkipInvite: true})
		room := newTestRoom(t, svc, "club", domain.RoomConfig{MembersOnly: true})
		owner := actorFor(t, room, "owner@example.org")
		out, err := room.Update(func(m *Membership) error {
			_, err := m.AddMember(jid.MustParse("bob@example.org"), "", owner)
			return err
		})
		require.NoError(t, err)
		assert.Empty(t, out.Invites)
	})

	t.Run("invite gate refuses", func(t *testing.T) {
		svc := newTestService(t, ServiceOptions{InviteGate: denyGate{}})
		room := newTestRoom(t, svc, "club", domain.RoomConfig{MembersOnly: true})
		owner := actorFor(t, room, "owner@example.org")
		_, err := room.Update(func(m *Membership) error {
			_, err := m.AddMember(jid.MustParse("bob@example.org"), "", owner)
			return err
		})
		assert.ErrorIs(t, err, domain.ErrCannotBeInvited)
		require.NoError(t, room.View(func(m *Membership) error {
			assert.Equal(t, domain.AffiliationMember, m.Affiliation(jid.MustParse("bob@example.org")))
			return nil
		}))
	})
}

func TestAddNoneEvictsFromMembersOnlyRoom(t *testing.T) {
	svc := newTestService(t, ServiceOptions{SkipInvite: true})
	room := newTestRoom(t, svc, "club", domain.RoomConfig{MembersOnly: true})
	owner := actorFor(t, room, "owner@example.org")
	_, err := room.Update(func(m *Membership) error {
		_, err := m.AddMember(jid.MustParse("bob@example.org"), "", owner)
		return err
	})
	require.NoError(t, err)
	join(t, room, "bob", "bob@example.org/laptop")

	out, err := room.Update(func(m *Membership) error {
		_, err := m.AddNone(jid.MustParse("bob@example.org"), owner)
		return err
	})
	require.NoError(t, err)
	require.Len(t, out.Broadcasts, 1)
	assert.Contains(t, out.Broadcasts[0].Presence.StatusCodes, domain.StatusAffiliationChange)
	assert.Zero(t, room.OccupantCount())
}

func TestJoinRules(t *testing.T) {
	svc := newTestService(t, ServiceOptions{})

	t.Run("members-only", func(t *testing.T) {
		room := newTestRoom(t, svc, "club", domain.RoomConfig{MembersOnly: true})
		_, err := room.Update(func(m *Membership) error {
			_, err := m.Join("bob", jid.MustParse("bob@example.org/laptop"), JoinOptions{})
			return err
		})
		assert.ErrorIs(t, err, domain.ErrRegistrationRequired)
	})

	t.Run("password", func(t *testing.T) {
		room := newTestRoom(t, svc, "vault", domain.RoomConfig{PasswordProtected: true, Password: "pw"})
		_, err := room.Update(func(m *Membership) error {
			_, err := m.Join("bob", jid.MustParse("bob@example.org/laptop"), JoinOptions{Password: "nope"})
			return err
		})
		assert.ErrorIs(t, err, domain.ErrNotAuthorized)
		_, err = room.Update(func(m *Membership) error {
			_, err := m.Join("bob", jid.MustParse("bob@example.org/laptop"), JoinOptions{Password: "pw"})
			return err
		})
		assert.NoError(t, err)
	})

	t.Run("max users", func(t *testing.T) {
		room := newTestRoom(t, svc, "tiny", domain.RoomConfig{MaxUsers: 1})
		join(t, room, "bob", "bob@example.org/laptop")
		_, err := room.Update(func(m *Membership) error {
			_, err := m.Join("carol", jid.MustParse("carol@example.org/phone"), JoinOptions{})
			return err
		})
		assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
		join(t, room, "boss", "owner@example.org/desk")
	})

	t.Run("nickname conflicts", func(t *testing.T) {
		room := newTestRoom(t, svc, "nicks", domain.RoomConfig{})
		join(t, room, "bob", "bob@example.org/laptop")
		same := join(t, room, "Bob", "bob@example.org/phone")
		assert.Equal(t, "Bob", same.Nickname())

		_, err := room.Update(func(m *Membership) error {
			_, err := m.Join("BOB", jid.MustParse("eve@example.org/x"), JoinOptions{})
			return err
		})
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("moderated room", func(t *testing.T) {
		room := newTestRoom(t, svc, "stage", domain.RoomConfig{Moderated: true})
		assert.Equal(t, domain.RoleVisitor, join(t, room, "bob", "bob@example.org/laptop").Role())
		assert.Equal(t, domain.RoleModerator, join(t, room, "boss", "owner@example.org/desk").Role())
	})
}

func TestChangeNickname(t *testing.T) {
	svc := newTestService(t, ServiceOptions{})
	room := newTestRoom(t, svc, "lounge", domain.RoomConfig{})
	join(t, room, "bob", "bob@example.org/laptop")
	join(t, room, "carol", "carol@example.org/phone")

	_, err := room.Update(func(m *Membership) error {
		return m.ChangeNickname(jid.MustParse("bob@example.org/laptop"), "carol")
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	out, err := room.Update(func(m *Membership) error {
		return m.ChangeNickname(jid.MustParse("bob@example.org/laptop"), "robert")
	})
	require.NoError(t, err)
	require.Len(t, out.Broadcasts, 2)
	gone := out.Broadcasts[0].Presence
	assert.Equal(t, "lounge@conference.example.org/bob", gone.From.String())
	assert.Equal(t, stanza.UnavailablePresence, gone.Type)
	assert.Equal(t, "robert", gone.Item.Nick)
	assert.Contains(t, gone.StatusCodes, domain.StatusNewNickname)
	assert.Equal(t, "lounge@conference.example.org/robert", out.Broadcasts[1].Presence.From.String())

	require.NoError(t, room.View(func(m *Membership) error {
		assert.Empty(t, m.OccupantsByNickname("bob"))
		assert.Len(t, m.OccupantsByNickname("Robert"), 1)
		return nil
	}))
}

func TestViewIsReadOnly(t *testing.T) {
	svc := newTestService(t, ServiceOptions{})
	room := newTestRoom(t, svc, "lounge", domain.RoomConfig{})
	err := room.View(func(m *Membership) error {
		_, err := m.Join("bob", jid.MustParse("bob@example.org/laptop"), JoinOptions{})
		return err
	})
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestPersistentRoomAffiliationsSurviveRecreation(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, ServiceOptions{Store: store})
	room := newTestRoom(t, svc, "archive", domain.RoomConfig{Persistent: true})
	owner := actorFor(t, room, "owner@example.org")
	_, err := room.Update(func(m *Membership) error {
		_, err := m.AddMember(jid.MustParse("bob@example.org"), "bobby", owner)
		return err
	})
	require.NoError(t, err)

	svc.Destroy("archive")
	room, err = svc.CreateRoom("archive", domain.RoomConfig{Persistent: true})
	require.NoError(t, err)
	require.NoError(t, room.View(func(m *Membership) error {
		assert.Equal(t, domain.AffiliationMember, m.Affiliation(jid.MustParse("bob@example.org")))
		assert.Equal(t, "bobby", m.ReservedNickname(jid.MustParse("bob@example.org/any")))
		assert.Len(t, m.Owners(), 1)
		return nil
	}))
}

func TestSysadminActsAsOwner(t *testing.T) {
	svc := newTestService(t, ServiceOptions{Sysadmins: []jid.JID{jid.MustParse("root@example.org")}})
	room := newTestRoom(t, svc, "lounge", domain.RoomConfig{})
	a := actorFor(t, room, "root@example.org/console")
	assert.Equal(t, domain.AffiliationOwner, a.Affiliation)
}
