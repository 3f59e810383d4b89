package core

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/dkeye/mucd/internal/domain"
	"github.com/rs/zerolog/log"
	"mellium.im/xmpp/jid"
)

// ServiceOptions are the service-wide flags and collaborators.
type ServiceOptions struct {
	// Domain is the MUC service address, e.g. conference.example.org.
	Domain              string
	Sysadmins           []jid.JID
	SkipInvite          bool
	DiscoverLocked      bool
	RegistrationEnabled bool
	RoomDefaults        domain.RoomConfig

	Store      AffiliationStore
	Router     Router
	InviteGate InviteGate
}

// Service hosts the rooms of one MUC service domain.
type Service struct {
	address   jid.JID
	opts      ServiceOptions
	sysadmins map[string]struct{}

	mu    sync.RWMutex
	rooms map[domain.RoomName]*Room
}

func NewService(opts ServiceOptions) (*Service, error) {
	addr, err := jid.New("", opts.Domain, "")
	if err != nil {
		return nil, fmt.Errorf("muc domain %q: %w", opts.Domain, err)
	}
	s := &Service{
		address:   addr,
		opts:      opts,
		sysadmins: make(map[string]struct{}, len(opts.Sysadmins)),
		rooms:     make(map[domain.RoomName]*Room),
	}
	for _, j := range opts.Sysadmins {
		s.sysadmins[j.Bare().String()] = struct{}{}
	}
	return s, nil
}

func (s *Service) Address() jid.JID          { return s.address }
func (s *Service) DiscoverLocked() bool      { return s.opts.DiscoverLocked }
func (s *Service) RegistrationEnabled() bool { return s.opts.RegistrationEnabled }

func (s *Service) IsSysadmin(j jid.JID) bool {
	_, ok := s.sysadmins[j.Bare().String()]
	return ok
}

// RoomAddress builds name@service, validating the room name.
func (s *Service) RoomAddress(name domain.RoomName) (jid.JID, error) {
	j, err := jid.New(string(name), s.address.Domainpart(), "")
	if err != nil {
		return jid.JID{}, fmt.Errorf("%w: room name %q: %v", domain.ErrBadRequest, name, err)
	}
	return j, nil
}

func (s *Service) Room(name domain.RoomName) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[name]
	return r, ok
}

// GetOrCreate returns the named room, creating it with the default
// configuration when missing. created reports whether this call made it.
func (s *Service) GetOrCreate(name domain.RoomName) (room *Room, created bool, err error) {
	s.mu.RLock()
	room, ok := s.rooms[name]
	s.mu.RUnlock()
	if ok {
		return room, false, nil
	}
	return s.create(name, s.opts.RoomDefaults, false)
}

// CreateRoom creates a room with an explicit configuration; it fails with
// ErrConflict when the room already exists.
func (s *Service) CreateRoom(name domain.RoomName, cfg domain.RoomConfig) (*Room, error) {
	room, _, err := s.create(name, cfg, true)
	return room, err
}

func (s *Service) create(name domain.RoomName, cfg domain.RoomConfig, strict bool) (*Room, bool, error) {
	addr, err := s.RoomAddress(name)
	if err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[name]; ok {
		if strict {
			return nil, false, fmt.Errorf("%w: room %s exists", domain.ErrConflict, name)
		}
		return room, false, nil
	}
	room := newRoom(s, name, addr, cfg)
	if st := room.store(); st != nil {
		recs, err := st.Load(name)
		if err != nil {
			return nil, false, fmt.Errorf("load affiliations of %s: %w", name, err)
		}
		(&Membership{room: room}).restore(recs)
	}
	s.rooms[name] = room
	log.Info().Str("module", "core.service").Str("room", string(name)).Msg("room created")
	return room, true, nil
}

// Rooms returns a snapshot of the hosted rooms ordered by name.
func (s *Service) Rooms() []*Room {
	s.mu.RLock()
	out := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Room) int { return cmp.Compare(a.name, b.name) })
	return out
}

func (s *Service) List() []domain.RoomInfo {
	rooms := s.Rooms()
	out := make([]domain.RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Info())
	}
	return out
}

// Destroy removes the room regardless of its occupants and returns them.
func (s *Service) Destroy(name domain.RoomName) []*Occupant {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[name]
	if !ok {
		return nil
	}
	room.mu.Lock()
	room.destroyed = true
	left := slices.Clone(room.occupants)
	room.mu.Unlock()
	delete(s.rooms, name)
	log.Info().Str("module", "core.service").Str("room", string(name)).Int("occupants", len(left)).Msg("room destroyed")
	return left
}

// DestroyIfEmpty drops a non-persistent room that has no occupants left.
func (s *Service) DestroyIfEmpty(name domain.RoomName) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[name]
	if !ok {
		return false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if len(room.occupants) > 0 || room.cfg.Persistent {
		return false
	}
	room.destroyed = true
	delete(s.rooms, name)
	log.Info().Str("module", "core.service").Str("room", string(name)).Msg("empty room destroyed")
	return true
}
