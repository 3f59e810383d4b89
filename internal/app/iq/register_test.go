package iq

import (
	"context"
	"testing"

	"github.com/dkeye/mucd/internal/core"
	"github.com/dkeye/mucd/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"
)

func newRegistrationRoom(t *testing.T) (*core.Service, *core.Room, *RegisterHandler) {
	t.Helper()
	svc := newService(t, core.ServiceOptions{RegistrationEnabled: true})
	room := newRoom(t, svc, "lounge", domain.RoomConfig{RegistrationEnabled: true})
	return svc, room, NewRegisterHandler(svc, &captureDeliverer{})
}

func nickField(form RegistrationForm) FormField {
	for _, f := range form.Fields {
		if f.Var == FieldRoomNick {
			return f
		}
	}
	return FormField{}
}

func TestRegisterRoundTrip(t *testing.T) {
	_, room, h := newRegistrationRoom(t)
	ctx := context.Background()

	form, err := h.Get(ctx, "lounge", bob)
	require.NoError(t, err)
	assert.False(t, form.Registered)
	assert.Len(t, form.Fields, 6)
	assert.Empty(t, nickField(form).Value)

	reply, err := h.Set(ctx, "lounge", bob, RegisterSetRequest{Fields: map[string]string{
		FieldFirstName: "Bob",
		FieldRoomNick:  " bobby ",
	}})
	require.NoError(t, err)
	assert.Nil(t, reply.Error)
	assert.Equal(t, "bobby", reply.Nick)
	assert.Equal(t, domain.AffiliationMember, affiliationOf(t, room, "bob@example.org"))

	form, err = h.Get(ctx, "lounge", jid.MustParse("bob@example.org/other-device"))
	require.NoError(t, err)
	assert.True(t, form.Registered)
	assert.Equal(t, "bobby", nickField(form).Value)

	reply, err = h.Set(ctx, "lounge", bob, RegisterSetRequest{Remove: true})
	require.NoError(t, err)
	assert.Nil(t, reply.Error)
	assert.Equal(t, domain.AffiliationNone, affiliationOf(t, room, "bob@example.org"))
}

func TestRegisterErrorsBecomeReplies(t *testing.T) {
	svc, room, h := newRegistrationRoom(t)
	ctx := context.Background()
	admin := NewAdminHandler(svc, &captureDeliverer{})
	_, err := admin.Handle(ctx, "lounge", owner, AdminRequest{Items: []AdminItem{{Affiliation: "outcast", JID: "troll@example.org"}}})
	require.NoError(t, err)

	_, err = h.Set(ctx, "lounge", bob, RegisterSetRequest{Fields: map[string]string{FieldRoomNick: "bobby"}})
	require.NoError(t, err)

	cases := []struct {
		name string
		who  string
		req  RegisterSetRequest
		want stanza.Condition
	}{
		{"nickname taken", "eve@example.org/x", RegisterSetRequest{Fields: map[string]string{FieldRoomNick: "Bobby"}}, stanza.Conflict},
		{"banned", "troll@example.org/x", RegisterSetRequest{Fields: map[string]string{FieldRoomNick: "troll"}}, stanza.Forbidden},
		{"missing nickname", "eve@example.org/x", RegisterSetRequest{Fields: map[string]string{FieldFirstName: "Eve"}}, stanza.BadRequest},
		{"last owner unregisters", "owner@example.org/desk", RegisterSetRequest{Remove: true}, stanza.Conflict},
		{"banned user removes registration", "troll@example.org/x", RegisterSetRequest{Remove: true}, stanza.Forbidden},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			reply, err := h.Set(ctx, "lounge", jid.MustParse(c.who), c.req)
			require.NoError(t, err)
			require.NotNil(t, reply.Error)
			assert.Equal(t, string(c.want), reply.Error.Condition)
		})
	}
	assert.Equal(t, domain.AffiliationNone, affiliationOf(t, room, "eve@example.org"))
	assert.Equal(t, domain.AffiliationOutcast, affiliationOf(t, room, "troll@example.org"), "a ban survives a removal request")
}

func TestRegisterOwnerKeepsAffiliation(t *testing.T) {
	_, room, h := newRegistrationRoom(t)
	reply, err := h.Set(context.Background(), "lounge", owner, RegisterSetRequest{Fields: map[string]string{FieldRoomNick: "boss"}})
	require.NoError(t, err)
	assert.Nil(t, reply.Error)
	assert.Equal(t, domain.AffiliationOwner, affiliationOf(t, room, "owner@example.org"))

	form, err := h.Get(context.Background(), "lounge", owner)
	require.NoError(t, err)
	assert.True(t, form.Registered)
}

func TestRegisterDisabledOrMissingRoom(t *testing.T) {
	svc := newService(t, core.ServiceOptions{RegistrationEnabled: true})
	newRoom(t, svc, "closed", domain.RoomConfig{})
	h := NewRegisterHandler(svc, &captureDeliverer{})
	ctx := context.Background()

	_, err := h.Get(ctx, "closed", bob)
	assert.ErrorIs(t, err, domain.ErrNotAllowed)
	_, err = h.Set(ctx, "closed", bob, RegisterSetRequest{Fields: map[string]string{FieldRoomNick: "bobby"}})
	assert.ErrorIs(t, err, domain.ErrNotAllowed)

	_, err = h.Get(ctx, "nowhere", bob)
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
}

func TestRegisterMemberJoinsMembersOnlyRoom(t *testing.T) {
	svc := newService(t, core.ServiceOptions{RegistrationEnabled: true})
	room := newRoom(t, svc, "club", domain.RoomConfig{MembersOnly: true, RegistrationEnabled: true})
	out := &captureDeliverer{}
	h := NewRegisterHandler(svc, out)

	_, err := h.Set(context.Background(), "club", bob, RegisterSetRequest{Fields: map[string]string{FieldRoomNick: "bobby"}})
	require.NoError(t, err)
	for _, o := range out.outcomes {
		assert.Empty(t, o.Invites, "self-registration sends no invitation")
	}
	enter(t, room, "bobby", bob.String())
}
