package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/mucd/internal/core"
	"github.com/dkeye/mucd/internal/domain"
	"mellium.im/xmpp/jid"
)

// LocalUser is a participant connected to this node. It processes the
// user's own presences addressed to room@service/nick.
type LocalUser struct {
	orch    *Orchestrator
	full    jid.JID
	session core.Session
	deaf    bool
}

func NewLocalUser(o *Orchestrator, full jid.JID, sess core.Session) *LocalUser {
	return &LocalUser{orch: o, full: full, session: sess}
}

// SetDeaf makes later joins voice-only.
func (u *LocalUser) SetDeaf(deaf bool) { u.deaf = deaf }

func (u *LocalUser) Address() jid.JID { return u.full }

func (u *LocalUser) Process(ctx context.Context, pkt domain.Packet) error {
	p, ok := pkt.(*domain.Presence)
	if !ok {
		return fmt.Errorf("%w: %T", domain.ErrUnsupportedPacket, pkt)
	}
	name, nick, err := u.orch.roomOf(p.To)
	if err != nil {
		return err
	}
	if p.Unavailable() {
		return u.orch.Leave(ctx, name, u.full, p.Status)
	}
	_, err = u.orch.Join(ctx, name, nick, u.full, core.JoinOptions{
		Password: p.Password,
		Show:     p.Show,
		Status:   p.Status,
		Deaf:     u.deaf,
		Session:  u.session,
	})
	return err
}

// roomOf splits room@service/nick, checking the service part.
func (o *Orchestrator) roomOf(to jid.JID) (domain.RoomName, string, error) {
	if to.Domainpart() != o.Service.Address().Domainpart() || to.Localpart() == "" {
		return "", "", fmt.Errorf("%w: %s is not a room of this service", domain.ErrItemNotFound, to)
	}
	return domain.RoomName(to.Localpart()), to.Resourcepart(), nil
}
