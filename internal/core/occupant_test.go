package core

import (
	"testing"

	"github.com/dkeye/mucd/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"
)

func newOccupant(t *testing.T, opts OccupantOptions) *Occupant {
	t.Helper()
	o, err := NewOccupant(jid.MustParse("lounge@conference.example.org"), "alice", jid.MustParse("alice@example.org/phone"), opts)
	require.NoError(t, err)
	return o
}

func TestOccupantSetRoleProtectedAffiliations(t *testing.T) {
	for _, aff := range []domain.Affiliation{domain.AffiliationOwner, domain.AffiliationAdmin} {
		o := newOccupant(t, OccupantOptions{})
		require.NoError(t, o.SetAffiliation(aff))
		require.NoError(t, o.SetRole(domain.RoleModerator))

		for _, r := range []domain.Role{domain.RoleNone, domain.RoleVisitor, domain.RoleParticipant} {
			assert.ErrorIs(t, o.SetRole(r), domain.ErrNotAllowed, "%s -> %s", aff, r)
		}
		assert.Equal(t, domain.RoleModerator, o.Role())
		assert.ErrorIs(t, o.SetAffiliation(domain.AffiliationOutcast), domain.ErrNotAllowed)
		assert.Equal(t, aff, o.Affiliation())
	}
}

func TestOccupantModeratorCannotBeDroppedToNone(t *testing.T) {
	o := newOccupant(t, OccupantOptions{})
	require.NoError(t, o.SetRole(domain.RoleModerator))
	assert.ErrorIs(t, o.SetRole(domain.RoleNone), domain.ErrNotAllowed)

	require.NoError(t, o.SetRole(domain.RoleParticipant))
	require.NoError(t, o.SetRole(domain.RoleNone))
	p := o.Presence()
	assert.Equal(t, stanza.UnavailablePresence, p.Type)
	assert.Empty(t, p.Status)
	assert.Equal(t, domain.RoleNone, p.Item.Role)
}

func TestOccupantPresenceItem(t *testing.T) {
	o := newOccupant(t, OccupantOptions{})
	require.NoError(t, o.SetAffiliation(domain.AffiliationMember))
	require.NoError(t, o.SetRole(domain.RoleParticipant))

	p := o.Presence()
	assert.Equal(t, "lounge@conference.example.org/alice", p.From.String())
	assert.Equal(t, domain.AffiliationMember, p.Item.Affiliation)
	assert.Equal(t, "alice@example.org/phone", p.Item.JID.String())

	hidden := PresenceFor(p, false)
	assert.Empty(t, hidden.Item.JID.String())
	assert.Equal(t, "alice@example.org/phone", p.Item.JID.String())
}

func TestOccupantChangeNickname(t *testing.T) {
	o := newOccupant(t, OccupantOptions{})
	require.NoError(t, o.ChangeNickname("alicia"))
	assert.Equal(t, "alicia", o.Nickname())
	assert.Equal(t, "lounge@conference.example.org/alicia", o.Address().String())
	assert.ErrorIs(t, o.ChangeNickname(" "), domain.ErrNicknameEmpty)
}

func TestOccupantSend(t *testing.T) {
	t.Run("authenticated session", func(t *testing.T) {
		sess := &fakeSession{auth: true}
		router := &fakeRouter{}
		o := newOccupant(t, OccupantOptions{Session: sess, Router: router})
		require.NoError(t, o.Send(&domain.Presence{}))
		require.Len(t, sess.got, 1)
		assert.Empty(t, router.got)
		assert.Equal(t, "alice@example.org/phone", sess.got[0].Recipient().String())
	})
	t.Run("unauthenticated session falls back to router", func(t *testing.T) {
		sess := &fakeSession{}
		router := &fakeRouter{}
		o := newOccupant(t, OccupantOptions{Session: sess, Router: router})
		require.NoError(t, o.Send(&domain.Message{}))
		assert.Empty(t, sess.got)
		require.Len(t, router.got, 1)
		assert.Equal(t, "alice@example.org/phone", router.got[0].Recipient().String())
	})
	t.Run("no route", func(t *testing.T) {
		o := newOccupant(t, OccupantOptions{})
		assert.ErrorIs(t, o.Send(&domain.Presence{}), ErrNoRoute)
	})
}
