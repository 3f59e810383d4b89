package orch

import (
	"context"
	"errors"
	"slices"

	"github.com/dkeye/mucd/internal/app"
	"github.com/dkeye/mucd/internal/core"
	"github.com/dkeye/mucd/internal/domain"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

// DeliveryObserver is told how many packets a delivery pass sent and lost.
type DeliveryObserver interface {
	ObserveDelivery(sent, failed int)
}

// Orchestrator drives occupant lifecycles and delivers what the locked
// room mutations produced.
type Orchestrator struct {
	Service  *core.Service
	Registry *app.Registry
	Bus      *app.Bus
	Policy   app.Policy
	Router   core.Router
	Observer DeliveryObserver
}

type delivery struct {
	room   *core.Room
	sent   int
	failed int
	errs   error
	evict  []*core.Occupant
	marked []*core.Occupant
}

// Deliver broadcasts the outcome of a mutation to the room's current
// occupants, notifies departed occupants, routes invitations and dispatches
// events. Departed occupants lose the room from their session binding and a
// temporary room left empty is dropped. It must be called after the room
// lock was released. Failures are collected and never stop delivery to the
// others.
func (o *Orchestrator) Deliver(ctx context.Context, room *core.Room, out core.Outcome) error {
	if out.Empty() {
		return nil
	}
	d := &delivery{room: room}
	departed := false
	viewers := room.Occupants()
	canSee := make(map[*core.Occupant]bool, len(viewers))
	for _, v := range viewers {
		canSee[v] = room.CanSeeJID(v)
	}

	for _, b := range out.Broadcasts {
		for _, v := range viewers {
			if v == b.Occupant {
				d.send(o, v, core.PresenceFor(b.Presence, true).WithStatus(domain.StatusSelfPresence))
				continue
			}
			if v.Deaf() {
				continue
			}
			d.send(o, v, core.PresenceFor(b.Presence, canSee[v]))
		}
		if b.Departed && b.Occupant != nil {
			d.send(o, b.Occupant, b.Presence.WithStatus(domain.StatusSelfPresence))
			departed = true
			if o.Registry != nil {
				o.Registry.RemoveRoom(b.Occupant.RealJID(), room.Name())
			}
		}
	}

	for _, inv := range out.Invites {
		if o.Router == nil {
			d.errs = multierr.Append(d.errs, core.ErrNoRoute)
			d.failed++
			continue
		}
		if err := o.Router.Route(inv); err != nil {
			d.errs = multierr.Append(d.errs, err)
			d.failed++
			continue
		}
		d.sent++
	}

	if o.Bus != nil {
		for _, ev := range out.Events {
			o.Bus.Dispatch(ctx, ev)
		}
	}
	if o.Observer != nil {
		o.Observer.ObserveDelivery(d.sent, d.failed)
	}
	if d.errs != nil {
		log.Warn().Str("module", "orch").Str("room", string(room.Name())).Int("sent", d.sent).Int("failed", d.failed).Err(d.errs).Msg("delivery incomplete")
	}
	for _, occ := range d.marked {
		log.Warn().Str("module", "orch").Str("room", string(room.Name())).Str("jid", occ.RealJID().String()).Msg("slow occupant")
	}
	for _, occ := range d.evict {
		o.evictSlow(ctx, room, occ)
	}
	if departed {
		o.cleanup(ctx, room.Name())
	}
	return d.errs
}

func (d *delivery) send(o *Orchestrator, occ *core.Occupant, pkt domain.Packet) {
	err := occ.Send(pkt)
	if err == nil {
		d.sent++
		return
	}
	d.failed++
	d.errs = multierr.Append(d.errs, err)
	if o.Policy == nil {
		return
	}
	switch o.Policy.OnDeliveryFailure(d.room, occ, err) {
	case app.EvictOccupant:
		if !slices.Contains(d.evict, occ) {
			d.evict = append(d.evict, occ)
		}
	case app.MarkSlow:
		if !slices.Contains(d.marked, occ) {
			d.marked = append(d.marked, occ)
		}
	case app.NoAction:
	}
}

func (o *Orchestrator) evictSlow(ctx context.Context, room *core.Room, occ *core.Occupant) {
	full := occ.RealJID()
	err := o.Leave(ctx, room.Name(), full, "")
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		log.Warn().Str("module", "orch").Str("room", string(room.Name())).Str("jid", full.String()).Err(err).Msg("evict slow occupant")
		return
	}
	if o.Registry != nil {
		o.Registry.Cancel(full)
	}
	log.Info().Str("module", "orch").Str("room", string(room.Name())).Str("jid", full.String()).Msg("slow occupant evicted")
}

func (o *Orchestrator) dispatch(ctx context.Context, ev domain.Event) {
	if o.Bus != nil {
		o.Bus.Dispatch(ctx, ev)
	}
}
