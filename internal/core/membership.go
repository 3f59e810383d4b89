package core

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/dkeye/mucd/internal/domain"
	"github.com/google/uuid"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"
)

var ErrRoomDestroyed = errors.New("room destroyed")

// Broadcast is one presence produced by a mutation. Departed presences are
// also delivered to the occupant that left, which is no longer in the room.
type Broadcast struct {
	Presence *domain.Presence
	Occupant *Occupant
	Departed bool
}

// Outcome collects everything a locked mutation sequence produced. It is
// delivered once the room lock has been released.
type Outcome struct {
	Broadcasts []Broadcast
	Invites    []*domain.Message
	Events     []domain.Event
}

func (o Outcome) Presences() []*domain.Presence {
	out := make([]*domain.Presence, 0, len(o.Broadcasts))
	for _, b := range o.Broadcasts {
		out = append(out, b.Presence)
	}
	return out
}

func (o Outcome) Empty() bool {
	return len(o.Broadcasts) == 0 && len(o.Invites) == 0 && len(o.Events) == 0
}

// Actor is whoever requests a membership change.
type Actor struct {
	JID         jid.JID
	Nick        string
	Affiliation domain.Affiliation
	Role        domain.Role
	room        bool
}

// RoomAuthority acts with owner rights on behalf of the room itself, e.g.
// for self-registration.
func RoomAuthority() Actor {
	return Actor{Affiliation: domain.AffiliationOwner, Role: domain.RoleModerator, room: true}
}

func (a Actor) isModerator() bool {
	return a.Role == domain.RoleModerator || a.Affiliation.Protected()
}

// JoinOptions carries what a joining user presented.
type JoinOptions struct {
	Password string
	Show     string
	Status   string
	Deaf     bool
	Session  Session
	NodeID   string
}

// Membership is the locked view of a room handed to Update/View callbacks.
// It must not escape the callback.
type Membership struct {
	room     *Room
	readOnly bool
	out      Outcome
}

func (m *Membership) writable() error {
	if m.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (m *Membership) Name() domain.RoomName     { return m.room.name }
func (m *Membership) Address() jid.JID          { return m.room.address }
func (m *Membership) Config() domain.RoomConfig { return m.room.cfg }
func (m *Membership) OccupantCount() int        { return len(m.room.occupants) }
func (m *Membership) Occupants() []*Occupant    { return slices.Clone(m.room.occupants) }

// SetConfig replaces the room configuration; only owners may do that.
func (m *Membership) SetConfig(cfg domain.RoomConfig, actor Actor) error {
	if err := m.writable(); err != nil {
		return err
	}
	if actor.Affiliation != domain.AffiliationOwner {
		return fmt.Errorf("%w: only owners configure the room", domain.ErrForbidden)
	}
	m.room.cfg = cfg
	return nil
}

// Affiliation resolves the affiliation of any identity; service
// sysadmins count as owners.
func (m *Membership) Affiliation(j jid.JID) domain.Affiliation {
	if m.room.svc != nil && m.room.svc.IsSysadmin(j) {
		return domain.AffiliationOwner
	}
	return m.stored(j)
}

func (m *Membership) stored(j jid.JID) domain.Affiliation {
	if rec, ok := m.room.members[j.Bare().String()]; ok {
		return rec.Affiliation
	}
	return domain.AffiliationNone
}

// ReservedNickname returns the nickname registered by the bare identity.
func (m *Membership) ReservedNickname(j jid.JID) string {
	if rec, ok := m.room.members[j.Bare().String()]; ok {
		return rec.Nickname
	}
	return ""
}

// NicknameOwner returns the bare identity holding a nickname reservation.
func (m *Membership) NicknameOwner(nick string) (jid.JID, bool) {
	key := domain.NicknameKey(nick)
	if key == "" {
		return jid.JID{}, false
	}
	for _, rec := range m.room.members {
		if rec.Nickname != "" && domain.NicknameKey(rec.Nickname) == key {
			return rec.JID, true
		}
	}
	return jid.JID{}, false
}

func (m *Membership) OccupantByFull(full jid.JID) (*Occupant, bool) {
	o, ok := m.room.byFull[full.String()]
	return o, ok
}

func (m *Membership) OccupantsByBare(j jid.JID) []*Occupant {
	return slices.Clone(m.room.byBare[j.Bare().String()])
}

func (m *Membership) OccupantsByNickname(nick string) []*Occupant {
	return slices.Clone(m.room.byNick[domain.NicknameKey(nick)])
}

// ActorFor resolves the affiliation and role the caller acts with.
func (m *Membership) ActorFor(caller jid.JID) Actor {
	a := Actor{JID: caller, Affiliation: m.Affiliation(caller)}
	o, ok := m.room.byFull[caller.String()]
	if !ok {
		if occs := m.room.byBare[caller.Bare().String()]; len(occs) > 0 {
			o, ok = occs[0], true
		}
	}
	if ok {
		a.Nick = o.Nickname()
		a.Role = o.Role()
	}
	return a
}

func (m *Membership) affiliated(aff domain.Affiliation) []domain.Member {
	var out []domain.Member
	for _, rec := range m.room.members {
		if rec.Affiliation == aff {
			out = append(out, *rec)
		}
	}
	slices.SortFunc(out, func(a, b domain.Member) int { return cmp.Compare(a.JID.String(), b.JID.String()) })
	return out
}

func (m *Membership) Owners() []domain.Member   { return m.affiliated(domain.AffiliationOwner) }
func (m *Membership) Admins() []domain.Member   { return m.affiliated(domain.AffiliationAdmin) }
func (m *Membership) Members() []domain.Member  { return m.affiliated(domain.AffiliationMember) }
func (m *Membership) Outcasts() []domain.Member { return m.affiliated(domain.AffiliationOutcast) }

func (m *Membership) withRole(r domain.Role) []*Occupant {
	var out []*Occupant
	for _, o := range m.room.occupants {
		if o.Role() == r {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b *Occupant) int { return cmp.Compare(a.Nickname(), b.Nickname()) })
	return out
}

func (m *Membership) Moderators() []*Occupant   { return m.withRole(domain.RoleModerator) }
func (m *Membership) Participants() []*Occupant { return m.withRole(domain.RoleParticipant) }
func (m *Membership) Visitors() []*Occupant     { return m.withRole(domain.RoleVisitor) }

func (m *Membership) isLastOwner(bare jid.JID) bool {
	if m.stored(bare) != domain.AffiliationOwner {
		return false
	}
	return len(m.Owners()) == 1
}

// targets resolves a full identity to its occupancy, or a bare identity to
// all of its occupancies.
func (m *Membership) targets(j jid.JID) ([]*Occupant, error) {
	var occs []*Occupant
	if j.Resourcepart() != "" {
		if o, ok := m.room.byFull[j.String()]; ok {
			occs = []*Occupant{o}
		}
	} else {
		occs = m.OccupantsByBare(j)
	}
	if len(occs) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrUserNotFound, j)
	}
	return occs, nil
}

func (m *Membership) emit(o *Occupant, p *domain.Presence) *domain.Presence {
	m.out.Broadcasts = append(m.out.Broadcasts, Broadcast{Presence: p, Occupant: o})
	return p
}

func (m *Membership) depart(o *Occupant, p *domain.Presence) *domain.Presence {
	m.room.removeOccupant(o)
	m.out.Broadcasts = append(m.out.Broadcasts, Broadcast{Presence: p, Occupant: o, Departed: true})
	return p
}

func (m *Membership) event(ev domain.Event) {
	ev.Room = m.room.name
	m.out.Events = append(m.out.Events, ev)
}

func (m *Membership) putAffiliation(bare jid.JID, aff domain.Affiliation, nick string) error {
	bare = bare.Bare()
	key := bare.String()
	if nick == "" && aff != domain.AffiliationOutcast {
		if rec, ok := m.room.members[key]; ok {
			nick = rec.Nickname
		}
	}
	rec := domain.NewMember(m.room.name, bare, aff, nick)
	if st := m.room.store(); st != nil {
		if err := st.Save(*rec); err != nil {
			return fmt.Errorf("persist affiliation of %s: %w", key, err)
		}
	}
	m.room.members[key] = rec
	m.event(domain.Event{Kind: domain.EventAffiliationChanged, JID: bare, Nick: nick, Affiliation: aff})
	return nil
}

func (m *Membership) dropAffiliation(bare jid.JID) error {
	bare = bare.Bare()
	if st := m.room.store(); st != nil {
		if err := st.Delete(m.room.name, bare); err != nil {
			return fmt.Errorf("delete affiliation of %s: %w", bare, err)
		}
	}
	delete(m.room.members, bare.String())
	m.event(domain.Event{Kind: domain.EventAffiliationChanged, JID: bare, Affiliation: domain.AffiliationNone})
	return nil
}

// restore loads persisted records without emitting anything.
func (m *Membership) restore(recs []domain.Member) {
	for i := range recs {
		rec := recs[i]
		m.room.members[rec.JID.Bare().String()] = &rec
	}
}

// AddFirstOwner makes the creator of a new room its owner.
func (m *Membership) AddFirstOwner(bare jid.JID) error {
	if err := m.writable(); err != nil {
		return err
	}
	if len(m.Owners()) > 0 {
		return nil
	}
	return m.putAffiliation(bare, domain.AffiliationOwner, "")
}

// applyAffiliation brings every occupancy of bare in line with its new
// affiliation: owners and admins become moderators, members participants,
// outcasts and non-members of a members-only room are removed.
func (m *Membership) applyAffiliation(bare jid.JID, actor Actor, reason string) ([]*domain.Presence, error) {
	occs := m.OccupantsByBare(bare)
	if len(occs) == 0 {
		return nil, nil
	}
	aff := m.Affiliation(bare)
	var (
		role  domain.Role
		evict bool
		code  int
	)
	switch aff {
	case domain.AffiliationOwner, domain.AffiliationAdmin:
		role = domain.RoleModerator
	case domain.AffiliationMember:
		role = domain.RoleParticipant
	case domain.AffiliationOutcast:
		evict, code = true, domain.StatusBanned
	default:
		switch {
		case m.room.cfg.MembersOnly:
			evict, code = true, domain.StatusAffiliationChange
		case m.room.cfg.Moderated:
			role = domain.RoleVisitor
		default:
			role = domain.RoleParticipant
		}
	}

	var presences []*domain.Presence
	for _, o := range occs {
		if err := o.SetAffiliation(aff); err != nil {
			return presences, err
		}
		if evict {
			o.evict()
			p := o.Presence().WithStatus(code)
			p.Item.Reason = reason
			p.Item.Actor = actor.Nick
			p.Item.ActorJID = actor.JID
			presences = append(presences, m.depart(o, p))
			m.event(domain.Event{Kind: domain.EventOccupantLeft, JID: o.real, Nick: o.Nickname(), Affiliation: aff, Node: o.nodeID})
			continue
		}
		if err := o.SetRole(role); err != nil {
			return presences, err
		}
		presences = append(presences, m.emit(o, o.Presence()))
	}
	return presences, nil
}

// AddOwner grants the owner affiliation. Owners only.
func (m *Membership) AddOwner(target jid.JID, actor Actor) ([]*domain.Presence, error) {
	if err := m.writable(); err != nil {
		return nil, err
	}
	if actor.Affiliation != domain.AffiliationOwner {
		return nil, fmt.Errorf("%w: only owners grant ownership", domain.ErrForbidden)
	}
	if m.stored(target) == domain.AffiliationOwner {
		return nil, nil
	}
	if err := m.putAffiliation(target, domain.AffiliationOwner, ""); err != nil {
		return nil, err
	}
	return m.applyAffiliation(target, actor, "")
}

// AddAdmin grants the admin affiliation. Owners only.
func (m *Membership) AddAdmin(target jid.JID, actor Actor) ([]*domain.Presence, error) {
	if err := m.writable(); err != nil {
		return nil, err
	}
	if actor.Affiliation != domain.AffiliationOwner {
		return nil, fmt.Errorf("%w: only owners grant admin", domain.ErrForbidden)
	}
	if m.isLastOwner(target) {
		return nil, fmt.Errorf("%w: %s is the last owner", domain.ErrConflict, target.Bare())
	}
	if m.stored(target) == domain.AffiliationAdmin {
		return nil, nil
	}
	if err := m.putAffiliation(target, domain.AffiliationAdmin, ""); err != nil {
		return nil, err
	}
	return m.applyAffiliation(target, actor, "")
}

// AddMember grants membership and optionally reserves nick for target.
func (m *Membership) AddMember(target jid.JID, nick string, actor Actor) ([]*domain.Presence, error) {
	if err := m.writable(); err != nil {
		return nil, err
	}
	if !actor.Affiliation.Protected() {
		return nil, fmt.Errorf("%w: only owners and admins grant membership", domain.ErrForbidden)
	}
	bare := target.Bare()
	if err := m.checkReservation(bare, nick); err != nil {
		return nil, err
	}
	if m.isLastOwner(bare) {
		return nil, fmt.Errorf("%w: %s is the last owner", domain.ErrConflict, bare)
	}
	old := m.stored(bare)
	if old == domain.AffiliationMember {
		if nick != "" && nick != m.ReservedNickname(bare) {
			return nil, m.putAffiliation(bare, domain.AffiliationMember, nick)
		}
		return nil, nil
	}
	if old.Protected() && actor.Affiliation != domain.AffiliationOwner {
		return nil, fmt.Errorf("%w: only owners demote %s", domain.ErrForbidden, old)
	}
	if err := m.putAffiliation(bare, domain.AffiliationMember, nick); err != nil {
		return nil, err
	}
	presences, err := m.applyAffiliation(bare, actor, "")
	if err != nil {
		return presences, err
	}
	if old == domain.AffiliationNone && m.room.cfg.MembersOnly && !actor.room && !m.skipInvite() {
		if err := m.invite(bare, actor, ""); err != nil {
			return presences, err
		}
	}
	return presences, nil
}

// ReserveNickname registers nick for bare without touching its affiliation.
func (m *Membership) ReserveNickname(bare jid.JID, nick string) error {
	if err := m.writable(); err != nil {
		return err
	}
	nick, err := domain.ValidateNickname(nick)
	if err != nil {
		return err
	}
	if err := m.checkReservation(bare, nick); err != nil {
		return err
	}
	return m.putAffiliation(bare, m.stored(bare), nick)
}

func (m *Membership) checkReservation(bare jid.JID, nick string) error {
	if nick == "" {
		return nil
	}
	if holder, ok := m.NicknameOwner(nick); ok && !holder.Equal(bare.Bare()) {
		return fmt.Errorf("%w: nickname %q is reserved", domain.ErrConflict, nick)
	}
	return nil
}

// AddOutcast bans target and removes every occupancy it has.
func (m *Membership) AddOutcast(target jid.JID, reason string, actor Actor) ([]*domain.Presence, error) {
	if err := m.writable(); err != nil {
		return nil, err
	}
	if !actor.Affiliation.Protected() {
		return nil, fmt.Errorf("%w: only owners and admins ban", domain.ErrForbidden)
	}
	bare := target.Bare()
	if !actor.room && actor.JID.Bare().Equal(bare) {
		return nil, fmt.Errorf("%w: cannot ban yourself", domain.ErrConflict)
	}
	old := m.Affiliation(bare)
	if old.Protected() {
		return nil, fmt.Errorf("%w: %s cannot be banned", domain.ErrNotAllowed, old)
	}
	if old == domain.AffiliationOutcast {
		return nil, nil
	}
	if err := m.putAffiliation(bare, domain.AffiliationOutcast, ""); err != nil {
		return nil, err
	}
	return m.applyAffiliation(bare, actor, reason)
}

// AddNone clears any stored affiliation of target.
func (m *Membership) AddNone(target jid.JID, actor Actor) ([]*domain.Presence, error) {
	if err := m.writable(); err != nil {
		return nil, err
	}
	if !actor.Affiliation.Protected() {
		return nil, fmt.Errorf("%w: only owners and admins revoke affiliations", domain.ErrForbidden)
	}
	bare := target.Bare()
	if m.isLastOwner(bare) {
		return nil, fmt.Errorf("%w: %s is the last owner", domain.ErrConflict, bare)
	}
	old := m.stored(bare)
	if old == domain.AffiliationNone {
		return nil, nil
	}
	if old.Protected() && actor.Affiliation != domain.AffiliationOwner {
		return nil, fmt.Errorf("%w: only owners revoke %s", domain.ErrForbidden, old)
	}
	if err := m.dropAffiliation(bare); err != nil {
		return nil, err
	}
	if old == domain.AffiliationOutcast {
		return nil, nil
	}
	return m.applyAffiliation(bare, actor, "")
}

func (m *Membership) setRoles(target jid.JID, role domain.Role, reason string, actor Actor) ([]*domain.Presence, error) {
	occs, err := m.targets(target)
	if err != nil {
		return nil, err
	}
	var presences []*domain.Presence
	for _, o := range occs {
		if o.Affiliation().Rank() > actor.Affiliation.Rank() && o.Role() == domain.RoleModerator {
			return presences, fmt.Errorf("%w: %s outranks the actor", domain.ErrNotAllowed, o.Nickname())
		}
		if err := o.SetRole(role); err != nil {
			return presences, err
		}
		p := o.Presence()
		p.Item.Reason = reason
		p.Item.Actor = actor.Nick
		presences = append(presences, m.emit(o, p))
		m.event(domain.Event{Kind: domain.EventRoleChanged, JID: o.real, Nick: o.Nickname(), Role: role, Node: o.nodeID})
	}
	return presences, nil
}

// AddModerator grants the moderator role. Owners and admins only.
func (m *Membership) AddModerator(target jid.JID, actor Actor) ([]*domain.Presence, error) {
	if err := m.writable(); err != nil {
		return nil, err
	}
	if !actor.Affiliation.Protected() {
		return nil, fmt.Errorf("%w: only owners and admins grant moderator", domain.ErrForbidden)
	}
	return m.setRoles(target, domain.RoleModerator, "", actor)
}

// AddParticipant grants voice.
func (m *Membership) AddParticipant(target jid.JID, reason string, actor Actor) ([]*domain.Presence, error) {
	if err := m.writable(); err != nil {
		return nil, err
	}
	if !actor.isModerator() {
		return nil, fmt.Errorf("%w: only moderators grant voice", domain.ErrForbidden)
	}
	return m.setRoles(target, domain.RoleParticipant, reason, actor)
}

// AddVisitor revokes voice.
func (m *Membership) AddVisitor(target jid.JID, actor Actor) ([]*domain.Presence, error) {
	if err := m.writable(); err != nil {
		return nil, err
	}
	if !actor.isModerator() {
		return nil, fmt.Errorf("%w: only moderators revoke voice", domain.ErrForbidden)
	}
	return m.setRoles(target, domain.RoleVisitor, "", actor)
}

// Kick removes target from the room. Moderators, owners and admins cannot
// be kicked.
func (m *Membership) Kick(target jid.JID, reason string, actor Actor) ([]*domain.Presence, error) {
	if err := m.writable(); err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleModerator {
		return nil, fmt.Errorf("%w: only moderators kick", domain.ErrForbidden)
	}
	occs, err := m.targets(target)
	if err != nil {
		return nil, err
	}
	for _, o := range occs {
		if o.Role() == domain.RoleModerator || o.Affiliation().Protected() {
			return nil, fmt.Errorf("%w: %s cannot be kicked", domain.ErrNotAllowed, o.Nickname())
		}
	}
	var presences []*domain.Presence
	for _, o := range occs {
		if err := o.SetRole(domain.RoleNone); err != nil {
			return presences, err
		}
		p := o.Presence().WithStatus(domain.StatusKicked)
		p.Item.Reason = reason
		p.Item.Actor = actor.Nick
		p.Item.ActorJID = actor.JID
		presences = append(presences, m.depart(o, p))
		m.event(domain.Event{Kind: domain.EventOccupantKicked, JID: o.real, Nick: o.Nickname(), Node: o.nodeID})
	}
	return presences, nil
}

func (m *Membership) skipInvite() bool {
	return m.room.svc != nil && m.room.svc.opts.SkipInvite
}

func (m *Membership) invite(target jid.JID, actor Actor, reason string) error {
	if svc := m.room.svc; svc != nil && svc.opts.InviteGate != nil {
		if !svc.opts.InviteGate.CanInvite(m.room.name, target) {
			return fmt.Errorf("%w: %s", domain.ErrCannotBeInvited, target)
		}
	}
	inv := &domain.Invite{From: actor.JID, Reason: reason}
	if m.room.cfg.PasswordProtected {
		inv.Password = m.room.cfg.Password
	}
	m.out.Invites = append(m.out.Invites, &domain.Message{
		ID:     uuid.NewString(),
		From:   m.room.address,
		To:     target,
		Invite: inv,
	})
	return nil
}

// Invite lets an occupant invite someone; owners and admins always may,
// others only when the room allows occupant invites.
func (m *Membership) Invite(target jid.JID, reason string, actor Actor) error {
	if err := m.writable(); err != nil {
		return err
	}
	if !actor.Affiliation.Protected() && !m.room.cfg.CanOccupantsInvite {
		return fmt.Errorf("%w: occupants may not invite", domain.ErrForbidden)
	}
	return m.invite(target, actor, reason)
}

// Join adds real to the room under nick.
func (m *Membership) Join(nick string, real jid.JID, opts JoinOptions) (*Occupant, error) {
	if err := m.writable(); err != nil {
		return nil, err
	}
	nick, err := domain.ValidateNickname(nick)
	if err != nil {
		return nil, err
	}
	if o, ok := m.room.byFull[real.String()]; ok {
		if domain.NicknameKey(o.Nickname()) != domain.NicknameKey(nick) {
			if err := m.ChangeNickname(real, nick); err != nil {
				return nil, err
			}
			return o, nil
		}
		return o, m.UpdateStatus(real, opts.Show, opts.Status)
	}

	cfg := m.room.cfg
	aff := m.Affiliation(real)
	switch {
	case aff == domain.AffiliationOutcast:
		return nil, fmt.Errorf("%w: %s is banned", domain.ErrForbidden, real.Bare())
	case cfg.MembersOnly && aff == domain.AffiliationNone:
		return nil, fmt.Errorf("%w: room is members-only", domain.ErrRegistrationRequired)
	case cfg.PasswordProtected && !aff.Protected() && opts.Password != cfg.Password:
		return nil, fmt.Errorf("%w: wrong room password", domain.ErrNotAuthorized)
	case cfg.MaxUsers > 0 && len(m.room.occupants) >= cfg.MaxUsers && !aff.Protected():
		return nil, fmt.Errorf("%w: room is full", domain.ErrServiceUnavailable)
	}
	if err := m.checkNickname(real, nick); err != nil {
		return nil, err
	}

	var router Router
	if m.room.svc != nil {
		router = m.room.svc.opts.Router
	}
	o, err := NewOccupant(m.room.address, nick, real, OccupantOptions{
		Session: opts.Session,
		Router:  router,
		NodeID:  opts.NodeID,
		Deaf:    opts.Deaf,
	})
	if err != nil {
		return nil, err
	}
	if err := o.SetAffiliation(aff); err != nil {
		return nil, err
	}
	if err := o.SetRole(m.defaultRole(aff)); err != nil {
		return nil, err
	}
	o.SetStatus(opts.Show, opts.Status)
	m.room.addOccupant(o)
	m.emit(o, o.Presence())
	m.event(domain.Event{Kind: domain.EventOccupantJoined, JID: real, Nick: nick, Role: o.Role(), Affiliation: aff, Node: opts.NodeID})
	return o, nil
}

func (m *Membership) defaultRole(aff domain.Affiliation) domain.Role {
	switch {
	case aff.Protected():
		return domain.RoleModerator
	case aff == domain.AffiliationMember:
		return domain.RoleParticipant
	case m.room.cfg.Moderated:
		return domain.RoleVisitor
	default:
		return domain.RoleParticipant
	}
}

// checkNickname fails when nick is used or reserved by another bare identity.
func (m *Membership) checkNickname(real jid.JID, nick string) error {
	bare := real.Bare()
	for _, o := range m.room.byNick[domain.NicknameKey(nick)] {
		if !o.real.Bare().Equal(bare) {
			return fmt.Errorf("%w: nickname %q is in use", domain.ErrConflict, nick)
		}
	}
	return m.checkReservation(bare, nick)
}

// Leave removes the occupancy of real, announcing status as leave message.
func (m *Membership) Leave(real jid.JID, status string) (*domain.Presence, error) {
	if err := m.writable(); err != nil {
		return nil, err
	}
	o, ok := m.room.byFull[real.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUserNotFound, real)
	}
	o.leave(status)
	p := m.depart(o, o.Presence())
	m.event(domain.Event{Kind: domain.EventOccupantLeft, JID: real, Nick: o.Nickname(), Node: o.nodeID})
	return p, nil
}

// ChangeNickname renames the occupancy of real: an unavailable presence
// with status 303 under the old nickname, then the new presence.
func (m *Membership) ChangeNickname(real jid.JID, nick string) error {
	if err := m.writable(); err != nil {
		return err
	}
	nick, err := domain.ValidateNickname(nick)
	if err != nil {
		return err
	}
	o, ok := m.room.byFull[real.String()]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUserNotFound, real)
	}
	old := o.Nickname()
	if old == nick {
		return nil
	}
	if err := m.checkNickname(real, nick); err != nil {
		return err
	}
	gone := o.Presence().WithStatus(domain.StatusNewNickname)
	gone.Type = stanza.UnavailablePresence
	gone.Item.Nick = nick
	m.room.dropNick(o, old)
	if err := o.ChangeNickname(nick); err != nil {
		m.room.byNick[domain.NicknameKey(old)] = append(m.room.byNick[domain.NicknameKey(old)], o)
		return err
	}
	key := domain.NicknameKey(nick)
	m.room.byNick[key] = append(m.room.byNick[key], o)
	m.emit(o, gone)
	m.emit(o, o.Presence())
	m.event(domain.Event{Kind: domain.EventNicknameChanged, JID: real, Nick: nick, OldNick: old, Node: o.nodeID})
	return nil
}

// UpdateStatus records a new show/status for real and rebroadcasts it.
func (m *Membership) UpdateStatus(real jid.JID, show, status string) error {
	if err := m.writable(); err != nil {
		return err
	}
	o, ok := m.room.byFull[real.String()]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUserNotFound, real)
	}
	o.SetStatus(show, status)
	m.emit(o, o.Presence())
	return nil
}
