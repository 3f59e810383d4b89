package store

import (
	"testing"

	"github.com/dkeye/mucd/internal/core"
	"github.com/dkeye/mucd/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mellium.im/xmpp/jid"
)

var _ core.AffiliationStore = (*BadgerStore)(nil)

func openMem(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	s := openMem(t)
	bob := jid.MustParse("bob@example.org/laptop")

	require.NoError(t, s.Save(*domain.NewMember("lounge", bob, domain.AffiliationMember, "bobby")))
	require.NoError(t, s.Save(*domain.NewMember("lounge", jid.MustParse("owner@example.org"), domain.AffiliationOwner, "")))
	require.NoError(t, s.Save(*domain.NewMember("lounge2", bob, domain.AffiliationOutcast, "")))

	got, err := s.Load("lounge")
	require.NoError(t, err)
	require.Len(t, got, 2)
	byJID := map[string]domain.Member{}
	for _, m := range got {
		byJID[m.JID.String()] = m
	}
	assert.Equal(t, domain.AffiliationMember, byJID["bob@example.org"].Affiliation)
	assert.Equal(t, "bobby", byJID["bob@example.org"].Nickname)
	assert.Equal(t, domain.AffiliationOwner, byJID["owner@example.org"].Affiliation)

	require.NoError(t, s.Delete("lounge", bob))
	require.NoError(t, s.Delete("lounge", bob))
	got, err = s.Load("lounge")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	other, err := s.Load("lounge2")
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, domain.AffiliationOutcast, other[0].Affiliation)
}

func TestBadgerStoreBacksPersistentRooms(t *testing.T) {
	s := openMem(t)
	svc, err := core.NewService(core.ServiceOptions{Domain: "conference.example.org", Store: s})
	require.NoError(t, err)
	room, err := svc.CreateRoom("archive", domain.RoomConfig{Persistent: true})
	require.NoError(t, err)
	_, err = room.Update(func(m *core.Membership) error {
		return m.AddFirstOwner(jid.MustParse("owner@example.org"))
	})
	require.NoError(t, err)

	recs, err := s.Load("archive")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "owner@example.org", recs[0].JID.String())
}
