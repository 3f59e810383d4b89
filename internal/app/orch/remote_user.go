package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/mucd/internal/domain"
	"github.com/rs/zerolog/log"
	"mellium.im/xmpp/jid"
)

// RemoteUser stands for a user whose session lives on another cluster
// node. The only packet it understands is the unavailable presence that
// node forwards when the user goes away.
type RemoteUser struct {
	orch *Orchestrator
	full jid.JID
	node string
}

func NewRemoteUser(o *Orchestrator, full jid.JID, node string) *RemoteUser {
	return &RemoteUser{orch: o, full: full, node: node}
}

func (u *RemoteUser) Address() jid.JID { return u.full }
func (u *RemoteUser) NodeID() string   { return u.node }

// Process makes the user leave the room named by the presence destination,
// or every room it occupies when the destination names no room.
func (u *RemoteUser) Process(ctx context.Context, pkt domain.Packet) error {
	p, ok := pkt.(*domain.Presence)
	if !ok || !p.Unavailable() {
		return fmt.Errorf("%w: remote users only send unavailable presence", domain.ErrUnsupportedPacket)
	}
	log.Info().Str("module", "orch.remote").Str("jid", u.full.String()).Str("node", u.node).Msg("remote user unavailable")
	if p.To.Localpart() != "" {
		name, _, err := u.orch.roomOf(p.To)
		if err != nil {
			return err
		}
		return u.orch.Leave(ctx, name, u.full, p.Status)
	}
	return u.orch.LeaveAll(ctx, u.full, p.Status)
}
