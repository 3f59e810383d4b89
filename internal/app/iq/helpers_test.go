package iq

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/mucd/internal/core"
	"github.com/dkeye/mucd/internal/domain"
	"github.com/stretchr/testify/require"
	"mellium.im/xmpp/jid"
)

type captureDeliverer struct {
	mu       sync.Mutex
	outcomes []core.Outcome
}

func (d *captureDeliverer) Deliver(_ context.Context, _ *core.Room, out core.Outcome) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outcomes = append(d.outcomes, out)
	return nil
}

func (d *captureDeliverer) presences() []*domain.Presence {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*domain.Presence
	for _, o := range d.outcomes {
		out = append(out, o.Presences()...)
	}
	return out
}

func newService(t *testing.T, opts core.ServiceOptions) *core.Service {
	t.Helper()
	opts.Domain = "conference.example.org"
	svc, err := core.NewService(opts)
	require.NoError(t, err)
	return svc
}

// newRoom creates a room owned by owner@example.org, who is also present
// as "boss".
func newRoom(t *testing.T, svc *core.Service, name string, cfg domain.RoomConfig) *core.Room {
	t.Helper()
	room, err := svc.CreateRoom(domain.RoomName(name), cfg)
	require.NoError(t, err)
	_, err = room.Update(func(m *core.Membership) error {
		if err := m.AddFirstOwner(jid.MustParse("owner@example.org")); err != nil {
			return err
		}
		_, err := m.Join("boss", jid.MustParse("owner@example.org/desk"), core.JoinOptions{Password: cfg.Password})
		return err
	})
	require.NoError(t, err)
	return room
}

func enter(t *testing.T, room *core.Room, nick, full string) {
	t.Helper()
	_, err := room.Update(func(m *core.Membership) error {
		_, err := m.Join(nick, jid.MustParse(full), core.JoinOptions{})
		return err
	})
	require.NoError(t, err)
}

// populate joins n anonymous occupants.
func populate(t *testing.T, room *core.Room, n int) {
	t.Helper()
	for i := range n {
		enter(t, room, fmt.Sprintf("user%d", i), fmt.Sprintf("user%d@example.org/r", i))
	}
}

func affiliationOf(t *testing.T, room *core.Room, who string) domain.Affiliation {
	t.Helper()
	var aff domain.Affiliation
	require.NoError(t, room.View(func(m *core.Membership) error {
		aff = m.Affiliation(jid.MustParse(who))
		return nil
	}))
	return aff
}
