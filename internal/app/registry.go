package app

import (
	"context"
	"slices"
	"sync"

	"github.com/dkeye/mucd/internal/core"
	"github.com/dkeye/mucd/internal/domain"
	"github.com/rs/zerolog/log"
	"mellium.im/xmpp/jid"
)

type sessionEntry struct {
	Full    jid.JID
	Session core.Session
	Cancel  context.CancelFunc
	Rooms   []domain.RoomName
}

// Registry maps full identities to their local sessions and remembers the
// rooms each identity occupies.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*sessionEntry),
	}
}

func (r *Registry) Bind(full jid.JID, sess core.Session, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := full.String()
	if old, ok := r.sessions[key]; ok && old.Cancel != nil {
		old.Cancel()
	}
	r.sessions[key] = &sessionEntry{Full: full, Session: sess, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("jid", key).Msg("bound session")
}

// Unbind forgets the session and returns the rooms it still occupied.
func (r *Registry) Unbind(full jid.JID) []domain.RoomName {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := full.String()
	e, ok := r.sessions[key]
	if !ok {
		return nil
	}
	delete(r.sessions, key)
	log.Info().Str("module", "app.registry").Str("jid", key).Msg("unbind session")
	return e.Rooms
}

// SessionFor implements core.SessionLookup.
func (r *Registry) SessionFor(full jid.JID) (core.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[full.String()]; ok {
		return e.Session, true
	}
	return nil, false
}

// SessionsOf returns the sessions bound to any resource of bare, ordered
// by full identity.
func (r *Registry) SessionsOf(bare jid.JID) []core.Session {
	want := bare.Bare().String()
	r.mu.RLock()
	keys := make([]string, 0, 1)
	for key, e := range r.sessions {
		if e.Full.Bare().String() == want {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	out := make([]core.Session, 0, len(keys))
	for _, key := range keys {
		out = append(out, r.sessions[key].Session)
	}
	r.mu.RUnlock()
	return out
}

func (r *Registry) AddRoom(full jid.JID, room domain.RoomName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[full.String()]
	if !ok || slices.Contains(e.Rooms, room) {
		return
	}
	e.Rooms = append(e.Rooms, room)
	log.Debug().Str("module", "app.registry").Str("jid", full.String()).Str("room", string(room)).Msg("added room")
}

func (r *Registry) RemoveRoom(full jid.JID, room domain.RoomName) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[full.String()]; ok {
		e.Rooms = slices.DeleteFunc(e.Rooms, func(n domain.RoomName) bool { return n == room })
	}
}

func (r *Registry) RoomsOf(full jid.JID) []domain.RoomName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[full.String()]; ok {
		return slices.Clone(e.Rooms)
	}
	return nil
}

// Cancel stops the session's connection loops.
func (r *Registry) Cancel(full jid.JID) bool {
	r.mu.RLock()
	e, ok := r.sessions[full.String()]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("jid", full.String()).Msg("canceled session")
	return true
}

// Owns reports whether full is still bound to sess. A connection replaced
// by a newer one must not tear down its successor's state.
func (r *Registry) Owns(full jid.JID, sess core.Session) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[full.String()]
	return ok && e.Session == sess
}
