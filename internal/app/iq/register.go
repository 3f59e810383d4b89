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

const (
	FieldFirstName = "muc#register_first"
	FieldLastName  = "muc#register_last"
	FieldRoomNick  = "muc#register_roomnick"
	FieldURL       = "muc#register_url"
	FieldEmail     = "muc#register_email"
	FieldFAQEntry  = "muc#register_faqentry"
)

type FormField struct {
	Var      string `json:"var"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Required bool   `json:"required,omitempty"`
	Value    string `json:"value,omitempty"`
}

// RegistrationForm is what a user fills in to become a member.
type RegistrationForm struct {
	Title        string      `json:"title"`
	Instructions string      `json:"instructions"`
	Registered   bool        `json:"registered"`
	Fields       []FormField `json:"fields"`
}

type RegisterSetRequest struct {
	Remove bool              `json:"remove,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

type RegisterReply struct {
	Nick  string      `json:"nick,omitempty"`
	Error *ErrorReply `json:"error,omitempty"`
}

// RegisterHandler lets users reserve a nickname and become members.
type RegisterHandler struct {
	Service *core.Service
	Out     Deliverer
}

func NewRegisterHandler(svc *core.Service, out Deliverer) *RegisterHandler {
	return &RegisterHandler{Service: svc, Out: out}
}

func (h *RegisterHandler) enabled(m *core.Membership) error {
	if !h.Service.RegistrationEnabled() || !m.Config().RegistrationEnabled {
		return fmt.Errorf("%w: registration is disabled in %s", domain.ErrNotAllowed, m.Name())
	}
	return nil
}

func registrationForm(room jid.JID) RegistrationForm {
	return RegistrationForm{
		Title:        "Registration for " + room.String(),
		Instructions: "Fill in the form to register with this room.",
		Fields: []FormField{
			{Var: FieldFirstName, Label: "First Name", Type: "text-single", Required: true},
			{Var: FieldLastName, Label: "Last Name", Type: "text-single", Required: true},
			{Var: FieldRoomNick, Label: "Desired Nickname", Type: "text-single", Required: true},
			{Var: FieldURL, Label: "Your URL", Type: "text-single"},
			{Var: FieldEmail, Label: "Email Address", Type: "text-single"},
			{Var: FieldFAQEntry, Label: "FAQ Entry", Type: "text-multi"},
		},
	}
}

// Get returns the registration form, pre-filled when the requester already
// reserved a nickname.
func (h *RegisterHandler) Get(ctx context.Context, name domain.RoomName, requester jid.JID) (RegistrationForm, error) {
	room, err := lookupRoom(h.Service, name)
	if err != nil {
		return RegistrationForm{}, fmt.Errorf("register %s: %w", name, err)
	}
	var form RegistrationForm
	err = room.View(func(m *core.Membership) error {
		if err := h.enabled(m); err != nil {
			return err
		}
		form = registrationForm(m.Address())
		if nick := m.ReservedNickname(requester); nick != "" {
			form.Registered = true
			for i := range form.Fields {
				if form.Fields[i].Var == FieldRoomNick {
					form.Fields[i].Value = nick
				}
			}
		}
		return nil
	})
	if err != nil {
		return RegistrationForm{}, fmt.Errorf("register %s: %w", name, err)
	}
	return form, nil
}

// Set registers the requester under the submitted nickname, or removes the
// registration. Forbidden, Conflict and BadRequest come back as error
// replies.
func (h *RegisterHandler) Set(ctx context.Context, name domain.RoomName, requester jid.JID, req RegisterSetRequest) (RegisterReply, error) {
	room, err := lookupRoom(h.Service, name)
	if err != nil {
		return RegisterReply{}, fmt.Errorf("register %s: %w", name, err)
	}
	var nick string
	out, err := room.Update(func(m *core.Membership) error {
		if err := h.enabled(m); err != nil {
			return err
		}
		if m.Affiliation(requester) == domain.AffiliationOutcast {
			return fmt.Errorf("%w: %s is banned", domain.ErrForbidden, requester.Bare())
		}
		if req.Remove {
			_, err := m.AddNone(requester, core.RoomAuthority())
			return err
		}
		var err error
		if nick, err = domain.ValidateNickname(req.Fields[FieldRoomNick]); err != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrBadRequest, FieldRoomNick, err)
		}
		if m.Affiliation(requester).Protected() {
			return m.ReserveNickname(requester.Bare(), nick)
		}
		_, err = m.AddMember(requester, nick, core.RoomAuthority())
		return err
	})
	if derr := h.Out.Deliver(ctx, room, out); derr != nil {
		log.Debug().Str("module", "iq.register").Str("room", string(name)).Err(derr).Msg("registration presences partly undelivered")
	}
	switch {
	case err == nil:
		log.Info().Str("module", "iq.register").Str("room", string(name)).Str("jid", requester.Bare().String()).Bool("remove", req.Remove).Msg("registration updated")
		return RegisterReply{Nick: nick}, nil
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrBadRequest):
		return RegisterReply{Error: errorReply(err)}, nil
	}
	return RegisterReply{}, fmt.Errorf("register %s: %w", name, err)
}
