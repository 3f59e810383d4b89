package core

import (
	"slices"
	"sync"
	"time"

	"github.com/dkeye/mucd/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"mellium.im/xmpp/jid"
)

// Room is a threadsafe in-memory room: the affiliation registry plus the
// live occupant set indexed by full identity, bare identity and nickname.
// All access goes through Update and View.
type Room struct {
	id      domain.RoomID
	name    domain.RoomName
	address jid.JID
	svc     *Service
	created time.Time

	mu        sync.RWMutex
	cfg       domain.RoomConfig
	members   map[string]*domain.Member
	occupants []*Occupant
	byFull    map[string]*Occupant
	byBare    map[string][]*Occupant
	byNick    map[string][]*Occupant
	destroyed bool
}

func newRoom(svc *Service, name domain.RoomName, address jid.JID, cfg domain.RoomConfig) *Room {
	return &Room{
		id:      domain.RoomID(uuid.NewString()),
		name:    name,
		address: address,
		svc:     svc,
		created: time.Now().UTC(),
		cfg:     cfg,
		members: make(map[string]*domain.Member),
		byFull:  make(map[string]*Occupant),
		byBare:  make(map[string][]*Occupant),
		byNick:  make(map[string][]*Occupant),
	}
}

func (r *Room) ID() domain.RoomID     { return r.id }
func (r *Room) Name() domain.RoomName { return r.name }
func (r *Room) Address() jid.JID      { return r.address }

// Update runs fn under the write lock. Everything fn emits through the
// Membership is returned so it can be delivered after the lock is gone.
func (r *Room) Update(fn func(m *Membership) error) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := &Membership{room: r}
	if r.destroyed {
		return m.out, ErrRoomDestroyed
	}
	err := fn(m)
	return m.out, err
}

// View runs fn under the read lock; mutating calls fail with ErrReadOnly.
func (r *Room) View(fn func(m *Membership) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fn(&Membership{room: r, readOnly: true})
}

// Info is a point-in-time snapshot used by listings and search.
func (r *Room) Info() domain.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return domain.RoomInfo{
		ID:                r.id,
		Name:              r.name,
		JID:               r.address.String(),
		NaturalName:       r.cfg.NaturalName,
		Description:       r.cfg.Description,
		Subject:           r.cfg.Subject,
		Occupants:         len(r.occupants),
		MaxUsers:          r.cfg.MaxUsers,
		Public:            r.cfg.Public,
		Locked:            r.cfg.Locked,
		MembersOnly:       r.cfg.MembersOnly,
		Moderated:         r.cfg.Moderated,
		NonAnonymous:      r.cfg.NonAnonymous,
		PasswordProtected: r.cfg.PasswordProtected,
		Persistent:        r.cfg.Persistent,
	}
}

// OccupantCount is safe to call without holding the room lock.
func (r *Room) OccupantCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.occupants)
}

// Occupants returns a snapshot of the live set in join order.
func (r *Room) Occupants() []*Occupant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.occupants)
}

// CanSeeJID reports whether viewer may see real identities in this room.
func (r *Room) CanSeeJID(viewer *Occupant) bool {
	r.mu.RLock()
	nonAnonymous := r.cfg.NonAnonymous
	r.mu.RUnlock()
	return nonAnonymous || viewer.Role() == domain.RoleModerator
}

// The helpers below expect the caller to hold r.mu for writing.

func (r *Room) addOccupant(o *Occupant) {
	r.occupants = append(r.occupants, o)
	r.byFull[o.real.String()] = o
	bare := o.real.Bare().String()
	r.byBare[bare] = append(r.byBare[bare], o)
	nick := domain.NicknameKey(o.Nickname())
	r.byNick[nick] = append(r.byNick[nick], o)
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("jid", o.real.String()).Str("nick", o.Nickname()).Msg("occupant added")
}

func (r *Room) removeOccupant(o *Occupant) {
	r.occupants = deleteOccupant(r.occupants, o)
	delete(r.byFull, o.real.String())
	bare := o.real.Bare().String()
	if rest := deleteOccupant(r.byBare[bare], o); len(rest) > 0 {
		r.byBare[bare] = rest
	} else {
		delete(r.byBare, bare)
	}
	r.dropNick(o, o.Nickname())
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("jid", o.real.String()).Msg("occupant removed")
}

func (r *Room) dropNick(o *Occupant, nick string) {
	key := domain.NicknameKey(nick)
	if rest := deleteOccupant(r.byNick[key], o); len(rest) > 0 {
		r.byNick[key] = rest
	} else {
		delete(r.byNick, key)
	}
}

func (r *Room) store() AffiliationStore {
	if r.svc == nil || !r.cfg.Persistent {
		return nil
	}
	return r.svc.opts.Store
}

func deleteOccupant(list []*Occupant, o *Occupant) []*Occupant {
	return slices.DeleteFunc(slices.Clone(list), func(x *Occupant) bool { return x == o })
}
