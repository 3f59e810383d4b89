package core

import (
	"sync"
	"testing"

	"github.com/dkeye/mucd/internal/domain"
	"github.com/stretchr/testify/require"
	"mellium.im/xmpp/jid"
)

type fakeSession struct {
	mu   sync.Mutex
	auth bool
	got  []domain.Packet
	err  error
}

func (s *fakeSession) IsAuthenticated() bool { return s.auth }

func (s *fakeSession) Deliver(pkt domain.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, pkt)
	return s.err
}

type fakeRouter struct {
	mu  sync.Mutex
	got []domain.Packet
}

func (r *fakeRouter) Route(pkt domain.Packet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, pkt)
	return nil
}

type fakeStore struct {
	recs map[string]domain.Member
}

func newFakeStore() *fakeStore { return &fakeStore{recs: map[string]domain.Member{}} }

func (s *fakeStore) Load(room domain.RoomName) ([]domain.Member, error) {
	var out []domain.Member
	for _, m := range s.recs {
		if m.Room == room {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeStore) Save(m domain.Member) error {
	s.recs[string(m.Room)+"|"+m.JID.String()] = m
	return nil
}

func (s *fakeStore) Delete(room domain.RoomName, bare jid.JID) error {
	delete(s.recs, string(room)+"|"+bare.String())
	return nil
}

type denyGate struct{}

func (denyGate) CanInvite(domain.RoomName, jid.JID) bool { return false }

func newTestService(t *testing.T, opts ServiceOptions) *Service {
	t.Helper()
	if opts.Domain == "" {
		opts.Domain = "conference.example.org"
	}
	svc, err := NewService(opts)
	require.NoError(t, err)
	return svc
}

// newTestRoom creates a room owned by owner@example.org.
func newTestRoom(t *testing.T, svc *Service, name string, cfg domain.RoomConfig) *Room {
	t.Helper()
	room, err := svc.CreateRoom(domain.RoomName(name), cfg)
	require.NoError(t, err)
	_, err = room.Update(func(m *Membership) error {
		return m.AddFirstOwner(jid.MustParse("owner@example.org"))
	})
	require.NoError(t, err)
	return room
}

func join(t *testing.T, room *Room, nick, full string) *Occupant {
	t.Helper()
	var occ *Occupant
	_, err := room.Update(func(m *Membership) error {
		var err error
		occ, err = m.Join(nick, jid.MustParse(full), JoinOptions{})
		return err
	})
	require.NoError(t, err)
	return occ
}

func actorFor(t *testing.T, room *Room, who string) Actor {
	t.Helper()
	var a Actor
	require.NoError(t, room.View(func(m *Membership) error {
		a = m.ActorFor(jid.MustParse(who))
		return nil
	}))
	return a
}
