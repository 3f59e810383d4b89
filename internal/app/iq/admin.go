package iq

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/mucd/internal/core"
	"github.com/dkeye/mucd/internal/domain"
	"github.com/rs/zerolog/log"
	"mellium.im/xmpp/jid"
)

// AdminItem is one item of an admin request or list reply.
type AdminItem struct {
	Affiliation string `json:"affiliation,omitempty"`
	Role        string `json:"role,omitempty"`
	JID         string `json:"jid,omitempty"`
	Nick        string `json:"nick,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

type AdminRequest struct {
	Items []AdminItem `json:"items"`
}

type AdminReply struct {
	Items []AdminItem `json:"items,omitempty"`
	Error *ErrorReply `json:"error,omitempty"`
}

// AdminHandler answers list queries and applies role/affiliation changes.
type AdminHandler struct {
	Service *core.Service
	Out     Deliverer
}

func NewAdminHandler(svc *core.Service, out Deliverer) *AdminHandler {
	return &AdminHandler{Service: svc, Out: out}
}

// Handle treats the request as a list query when its first item names
// neither a jid nor a nick, otherwise as a batch of changes.
func (h *AdminHandler) Handle(ctx context.Context, name domain.RoomName, caller jid.JID, req AdminRequest) (AdminReply, error) {
	room, err := lookupRoom(h.Service, name)
	if err != nil {
		return AdminReply{}, fmt.Errorf("admin %s: %w", name, err)
	}
	if len(req.Items) == 0 {
		return AdminReply{Error: errorReply(fmt.Errorf("%w: no items", domain.ErrBadRequest))}, nil
	}
	first := req.Items[0]
	if first.JID == "" && first.Nick == "" {
		return h.list(room, caller, req.Items)
	}
	return h.apply(ctx, room, caller, req.Items, first.JID != "")
}

func (h *AdminHandler) list(room *core.Room, caller jid.JID, items []AdminItem) (AdminReply, error) {
	var reply AdminReply
	err := room.View(func(m *core.Membership) error {
		actor := m.ActorFor(caller)
		cfg := m.Config()
		for _, item := range items {
			switch {
			case item.Affiliation == "outcast":
				if !actor.Affiliation.Protected() {
					return domain.ErrForbidden
				}
				reply.Items = appendAffiliated(reply.Items, m, m.Outcasts())
			case item.Affiliation == "member":
				if cfg.MembersOnly && actor.Affiliation.Rank() < domain.AffiliationMember.Rank() {
					return domain.ErrForbidden
				}
				reply.Items = appendAffiliated(reply.Items, m, m.Members())
			case item.Affiliation == "owner" || item.Affiliation == "admin":
				if !cfg.NonAnonymous && actor.Affiliation != domain.AffiliationOwner {
					return domain.ErrForbidden
				}
				if item.Affiliation == "owner" {
					reply.Items = appendAffiliated(reply.Items, m, m.Owners())
				} else {
					reply.Items = appendAffiliated(reply.Items, m, m.Admins())
				}
			case item.Role == "moderator":
				if !actor.Affiliation.Protected() {
					return domain.ErrForbidden
				}
				reply.Items = appendOccupants(reply.Items, m.Moderators())
			case item.Role == "participant":
				if actor.Role != domain.RoleModerator {
					return domain.ErrForbidden
				}
				reply.Items = appendOccupants(reply.Items, m.Participants())
			default:
				return domain.ErrBadRequest
			}
		}
		return nil
	})
	if errors.Is(err, domain.ErrBadRequest) {
		return AdminReply{Error: errorReply(fmt.Errorf("%w: unknown list", domain.ErrBadRequest))}, nil
	}
	if err != nil {
		return AdminReply{}, fmt.Errorf("admin list %s: %w", room.Name(), err)
	}
	return reply, nil
}

func appendAffiliated(dst []AdminItem, m *core.Membership, recs []domain.Member) []AdminItem {
	for _, rec := range recs {
		item := AdminItem{Affiliation: rec.Affiliation.String(), JID: rec.JID.String()}
		if occs := m.OccupantsByBare(rec.JID); len(occs) > 0 {
			item.Role = occs[0].Role().String()
			item.Nick = occs[0].Nickname()
		}
		dst = append(dst, item)
	}
	return dst
}

func appendOccupants(dst []AdminItem, occs []*core.Occupant) []AdminItem {
	for _, o := range occs {
		dst = append(dst, AdminItem{
			Affiliation: o.Affiliation().String(),
			Role:        o.Role().String(),
			JID:         o.RealJID().String(),
			Nick:        o.Nickname(),
		})
	}
	return dst
}

// apply runs the whole batch under one write lock. Forbidden, NotAllowed,
// Conflict and CannotBeInvited stop the batch; changes already made stay
// and their presences are still delivered. Unknown targets are skipped.
func (h *AdminHandler) apply(ctx context.Context, room *core.Room, caller jid.JID, items []AdminItem, byJID bool) (AdminReply, error) {
	var badRequest error
	out, err := room.Update(func(m *core.Membership) error {
		actor := m.ActorFor(caller)
		for _, item := range items {
			targets, err := resolveTargets(m, item, byJID)
			if err != nil {
				badRequest = err
				continue
			}
			for _, target := range targets {
				err := applyItem(m, actor, item, target)
				switch {
				case err == nil, errors.Is(err, domain.ErrUserNotFound):
				case errors.Is(err, domain.ErrBadRequest):
					badRequest = err
				default:
					return err
				}
			}
		}
		return nil
	})
	if derr := h.Out.Deliver(ctx, room, out); derr != nil {
		log.Debug().Str("module", "iq.admin").Str("room", string(room.Name())).Err(derr).Msg("admin presences partly undelivered")
	}
	if err != nil {
		log.Info().Str("module", "iq.admin").Str("room", string(room.Name())).Str("caller", caller.String()).Err(err).Msg("admin batch aborted")
		return AdminReply{}, fmt.Errorf("admin %s: %w", room.Name(), err)
	}
	if badRequest != nil {
		return AdminReply{Error: errorReply(badRequest)}, nil
	}
	return AdminReply{}, nil
}

func resolveTargets(m *core.Membership, item AdminItem, byJID bool) ([]jid.JID, error) {
	if byJID {
		j, err := jid.Parse(item.JID)
		if err != nil {
			return nil, fmt.Errorf("%w: jid %q: %v", domain.ErrBadRequest, item.JID, err)
		}
		return []jid.JID{j}, nil
	}
	var out []jid.JID
	for _, o := range m.OccupantsByNickname(item.Nick) {
		real := o.RealJID()
		dup := false
		for _, seen := range out {
			if seen.Equal(real) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, real)
		}
	}
	return out, nil
}

func applyItem(m *core.Membership, actor core.Actor, item AdminItem, target jid.JID) error {
	kind := item.Role
	if item.Affiliation != "" {
		kind = item.Affiliation
	}
	var err error
	switch kind {
	case "moderator":
		_, err = m.AddModerator(target, actor)
	case "participant":
		_, err = m.AddParticipant(target, item.Reason, actor)
	case "visitor":
		_, err = m.AddVisitor(target, actor)
	case "owner":
		_, err = m.AddOwner(target, actor)
	case "admin":
		_, err = m.AddAdmin(target, actor)
	case "member":
		_, err = m.AddMember(target, item.Nick, actor)
	case "outcast":
		_, err = m.AddOutcast(target, item.Reason, actor)
	case "none":
		if item.Affiliation != "" {
			_, err = m.AddNone(target, actor)
		} else {
			_, err = m.Kick(target, item.Reason, actor)
		}
	default:
		err = fmt.Errorf("%w: unknown target %q", domain.ErrBadRequest, kind)
	}
	return err
}
