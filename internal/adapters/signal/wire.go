package signal

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/mucd/internal/app/iq"
	"github.com/dkeye/mucd/internal/domain"
)

var (
	errBadPayload  = fmt.Errorf("%w: bad payload", domain.ErrBadRequest)
	errUnknownType = fmt.Errorf("%w: unknown request type", domain.ErrBadRequest)
	errRateLimited = errors.New("rate limited")
)

// mutating requests count against the rate limit.
var mutating = map[string]bool{
	"join":         true,
	"nick":         true,
	"status":       true,
	"invite":       true,
	"destroy":      true,
	"admin":        true,
	"register_set": true,
}

// envelope is every inbound request; each type reads its own fields.
type envelope struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Room string `json:"room,omitempty"`

	Nick     string `json:"nick,omitempty"`
	Password string `json:"password,omitempty"`
	Show     string `json:"show,omitempty"`
	Status   string `json:"status,omitempty"`
	Deaf     bool   `json:"deaf,omitempty"`
	To       string `json:"to,omitempty"`
	Reason   string `json:"reason,omitempty"`

	Items   []iq.AdminItem    `json:"items,omitempty"`
	Remove  bool              `json:"remove,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	Filters iq.SearchFilters  `json:"filters"`
	Paging  iq.Paging         `json:"paging"`
}

type replyMsg struct {
	Type string `json:"type"`
	Req  string `json:"req"`
	ID   string `json:"id,omitempty"`
	Data any    `json:"data,omitempty"`
}

type errorMsg struct {
	Type  string         `json:"type"`
	Req   string         `json:"req,omitempty"`
	ID    string         `json:"id,omitempty"`
	Error *iq.ErrorReply `json:"error"`
}

func (ctl *SignalWSController) reply(c *WsSignalConn, env envelope, data any) {
	ctl.sendJSON(c, replyMsg{Type: "reply", Req: env.Type, ID: env.ID, Data: data})
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, env envelope, err error) {
	e := &iq.ErrorReply{Text: err.Error()}
	if errors.Is(err, errRateLimited) {
		e.Type, e.Condition = "wait", "resource-constraint"
	} else {
		se := domain.StanzaError(err)
		e.Type, e.Condition = string(se.Type), string(se.Condition)
	}
	ctl.sendJSON(c, errorMsg{Type: "error", Req: env.Type, ID: env.ID, Error: e})
}

type itemDTO struct {
	JID         string `json:"jid,omitempty"`
	Nick        string `json:"nick,omitempty"`
	Affiliation string `json:"affiliation"`
	Role        string `json:"role"`
	Reason      string `json:"reason,omitempty"`
	Actor       string `json:"actor,omitempty"`
}

type presenceDTO struct {
	ID     string  `json:"id,omitempty"`
	From   string  `json:"from"`
	To     string  `json:"to,omitempty"`
	Type   string  `json:"presence_type,omitempty"`
	Show   string  `json:"show,omitempty"`
	Status string  `json:"status,omitempty"`
	Item   itemDTO `json:"item"`
	Codes  []int   `json:"codes,omitempty"`
}

type inviteDTO struct {
	From     string `json:"from"`
	Reason   string `json:"reason,omitempty"`
	Password string `json:"password,omitempty"`
}

type messageDTO struct {
	ID     string     `json:"id,omitempty"`
	From   string     `json:"from"`
	To     string     `json:"to"`
	Body   string     `json:"body,omitempty"`
	Invite *inviteDTO `json:"invite,omitempty"`
}

func presenceOut(p *domain.Presence) presenceDTO {
	return presenceDTO{
		ID:     p.ID,
		From:   p.From.String(),
		To:     p.To.String(),
		Type:   string(p.Type),
		Show:   p.Show,
		Status: p.Status,
		Item: itemDTO{
			JID:         p.Item.JID.String(),
			Nick:        p.Item.Nick,
			Affiliation: p.Item.Affiliation.String(),
			Role:        p.Item.Role.String(),
			Reason:      p.Item.Reason,
			Actor:       p.Item.Actor,
		},
		Codes: p.StatusCodes,
	}
}

func messageOut(m *domain.Message) messageDTO {
	out := messageDTO{ID: m.ID, From: m.From.String(), To: m.To.String(), Body: m.Body}
	if m.Invite != nil {
		out.Invite = &inviteDTO{From: m.Invite.From.String(), Reason: m.Invite.Reason, Password: m.Invite.Password}
	}
	return out
}

func encodePacket(pkt domain.Packet) ([]byte, error) {
	switch p := pkt.(type) {
	case *domain.Presence:
		return json.Marshal(struct {
			Type     string      `json:"type"`
			Presence presenceDTO `json:"presence"`
		}{"presence", presenceOut(p)})
	case *domain.Message:
		return json.Marshal(struct {
			Type    string     `json:"type"`
			Message messageDTO `json:"message"`
		}{"message", messageOut(p)})
	default:
		return nil, fmt.Errorf("%w: %T", domain.ErrUnsupportedPacket, pkt)
	}
}
