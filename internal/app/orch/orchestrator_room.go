package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/mucd/internal/core"
	"github.com/dkeye/mucd/internal/domain"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"
)

// Join puts full into the named room under nick, creating the room when
// missing; the creator of a room becomes its owner. The joiner receives the
// presences of everybody already there, then everybody gets the joiner's.
func (o *Orchestrator) Join(ctx context.Context, name domain.RoomName, nick string, full jid.JID, opts core.JoinOptions) (*core.Occupant, error) {
	for range 2 {
		room, created, err := o.Service.GetOrCreate(name)
		if err != nil {
			return nil, err
		}
		var (
			occ    *core.Occupant
			roster []*domain.Presence
		)
		out, err := room.Update(func(m *core.Membership) error {
			if created {
				if err := m.AddFirstOwner(full); err != nil {
					return err
				}
			}
			var err error
			if occ, err = m.Join(nick, full, opts); err != nil {
				return err
			}
			for _, other := range m.Occupants() {
				if other != occ {
					roster = append(roster, other.Presence())
				}
			}
			return nil
		})
		if errors.Is(err, core.ErrRoomDestroyed) {
			continue
		}
		if err != nil {
			if created {
				o.Service.DestroyIfEmpty(name)
			}
			log.Info().Str("module", "orch").Str("room", string(name)).Str("jid", full.String()).Err(err).Msg("join refused")
			return nil, err
		}
		if created {
			o.dispatch(ctx, domain.Event{Kind: domain.EventRoomCreated, Room: name, JID: full.Bare()})
		}
		if o.Registry != nil {
			o.Registry.AddRoom(full, name)
		}

		showJID := room.CanSeeJID(occ)
		for _, p := range roster {
			if err := occ.Send(core.PresenceFor(p, showJID)); err != nil {
				log.Debug().Str("module", "orch").Str("jid", full.String()).Err(err).Msg("roster presence not delivered")
			}
		}
		_ = o.Deliver(ctx, room, out)
		log.Info().Str("module", "orch").Str("room", string(name)).Str("jid", full.String()).Str("nick", occ.Nickname()).Msg("joined room")
		return occ, nil
	}
	return nil, fmt.Errorf("join %s: %w", name, core.ErrRoomDestroyed)
}

// Leave removes the occupancy of full from the room and destroys the room
// when it was the last occupant of a non-persistent room.
func (o *Orchestrator) Leave(ctx context.Context, name domain.RoomName, full jid.JID, status string) error {
	room, ok := o.Service.Room(name)
	if !ok {
		return fmt.Errorf("%w: room %s", domain.ErrItemNotFound, name)
	}
	out, err := room.Update(func(m *core.Membership) error {
		_, err := m.Leave(full, status)
		return err
	})
	if err != nil {
		return err
	}
	_ = o.Deliver(ctx, room, out)
	log.Info().Str("module", "orch").Str("room", string(name)).Str("jid", full.String()).Msg("left room")
	return nil
}

// LeaveAll removes full from every room it occupies, e.g. on disconnect.
func (o *Orchestrator) LeaveAll(ctx context.Context, full jid.JID, status string) error {
	var errs error
	for _, name := range o.RoomsOf(full) {
		if err := o.Leave(ctx, name, full, status); err != nil && !errors.Is(err, domain.ErrUserNotFound) {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// RoomsOf lists the rooms where full currently has an occupancy.
func (o *Orchestrator) RoomsOf(full jid.JID) []domain.RoomName {
	var out []domain.RoomName
	for _, room := range o.Service.Rooms() {
		_ = room.View(func(m *core.Membership) error {
			if _, ok := m.OccupantByFull(full); ok {
				out = append(out, room.Name())
			}
			return nil
		})
	}
	return out
}

// Disconnect drops the session binding of full and leaves all its rooms.
func (o *Orchestrator) Disconnect(ctx context.Context, full jid.JID) error {
	if o.Registry != nil {
		o.Registry.Unbind(full)
	}
	return o.LeaveAll(ctx, full, "")
}

func (o *Orchestrator) ChangeNickname(ctx context.Context, name domain.RoomName, full jid.JID, nick string) error {
	return o.update(ctx, name, func(m *core.Membership) error {
		return m.ChangeNickname(full, nick)
	})
}

func (o *Orchestrator) UpdateStatus(ctx context.Context, name domain.RoomName, full jid.JID, show, status string) error {
	return o.update(ctx, name, func(m *core.Membership) error {
		return m.UpdateStatus(full, show, status)
	})
}

// Invite sends a mediated invitation from an occupant of the room.
func (o *Orchestrator) Invite(ctx context.Context, name domain.RoomName, from, to jid.JID, reason string) error {
	return o.update(ctx, name, func(m *core.Membership) error {
		return m.Invite(to, reason, m.ActorFor(from))
	})
}

// Configure replaces the room configuration on an owner's request.
func (o *Orchestrator) Configure(ctx context.Context, name domain.RoomName, caller jid.JID, cfg domain.RoomConfig) error {
	if cfg.PasswordProtected && cfg.Password == "" {
		return fmt.Errorf("%w: password protected room without password", domain.ErrBadRequest)
	}
	if cfg.MaxUsers < 0 {
		return fmt.Errorf("%w: negative max users", domain.ErrBadRequest)
	}
	if err := o.update(ctx, name, func(m *core.Membership) error {
		return m.SetConfig(cfg, m.ActorFor(caller))
	}); err != nil {
		return err
	}
	log.Info().Str("module", "orch").Str("room", string(name)).Str("jid", caller.String()).Msg("room configured")
	return nil
}

// DestroyRoom removes a room on an owner's request; every occupant gets an
// unavailable presence.
func (o *Orchestrator) DestroyRoom(ctx context.Context, name domain.RoomName, caller jid.JID, reason string) error {
	room, ok := o.Service.Room(name)
	if !ok {
		return fmt.Errorf("%w: room %s", domain.ErrItemNotFound, name)
	}
	var allowed bool
	_ = room.View(func(m *core.Membership) error {
		allowed = m.Affiliation(caller) == domain.AffiliationOwner
		return nil
	})
	if !allowed {
		return fmt.Errorf("%w: only owners destroy rooms", domain.ErrForbidden)
	}
	var errs error
	for _, occ := range o.Service.Destroy(name) {
		p := occ.Presence()
		p.Type = stanza.UnavailablePresence
		p.Status = reason
		p.Item.Role = domain.RoleNone
		if err := occ.Send(p.WithStatus(domain.StatusSelfPresence)); err != nil {
			errs = multierr.Append(errs, err)
		}
		if o.Registry != nil {
			o.Registry.RemoveRoom(occ.RealJID(), name)
		}
		o.dispatch(ctx, domain.Event{Kind: domain.EventOccupantLeft, Room: name, JID: occ.RealJID(), Nick: occ.Nickname(), Node: occ.NodeID()})
	}
	o.dispatch(ctx, domain.Event{Kind: domain.EventRoomDestroyed, Room: name, JID: caller.Bare()})
	return errs
}

func (o *Orchestrator) update(ctx context.Context, name domain.RoomName, fn func(m *core.Membership) error) error {
	room, ok := o.Service.Room(name)
	if !ok {
		return fmt.Errorf("%w: room %s", domain.ErrItemNotFound, name)
	}
	out, err := room.Update(fn)
	_ = o.Deliver(ctx, room, out)
	return err
}

// cleanup drops the room once the last occupant of a temporary room is gone.
func (o *Orchestrator) cleanup(ctx context.Context, name domain.RoomName) {
	if o.Service.DestroyIfEmpty(name) {
		o.dispatch(ctx, domain.Event{Kind: domain.EventRoomDestroyed, Room: name})
	}
}
