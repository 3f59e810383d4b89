package signal

import (
	"context"
	"fmt"

	"github.com/dkeye/mucd/internal/domain"
	"github.com/rs/zerolog/log"
	"mellium.im/xmpp/jid"
	"mellium.im/xmpp/stanza"
)

func (ctl *SignalWSController) roomAddress(name string) (jid.JID, error) {
	if name == "" {
		return jid.JID{}, fmt.Errorf("%w: room required", domain.ErrBadRequest)
	}
	return ctl.Orch.Service.RoomAddress(domain.RoomName(name))
}

// handleJoin sends an available presence to room/nick. The presences of
// the room arrive on their own; the reply only confirms.
func (ctl *SignalWSController) handleJoin(ctx context.Context, cl *client, env envelope) {
	err := ctl.join(ctx, cl, env)
	ctl.observe("join", err)
	if err != nil {
		log.Info().Str("module", "signal").Str("jid", cl.full.String()).Str("room", env.Room).Err(err).Msg("join refused")
		ctl.sendError(cl.conn, env, err)
		return
	}
	log.Info().Str("module", "signal").Str("jid", cl.full.String()).Str("room", env.Room).Str("nick", env.Nick).Msg("join")
	ctl.reply(cl.conn, env, map[string]string{"room": env.Room, "nick": env.Nick})
}

func (ctl *SignalWSController) join(ctx context.Context, cl *client, env envelope) error {
	room, err := ctl.roomAddress(env.Room)
	if err != nil {
		return err
	}
	if env.Nick == "" {
		return domain.ErrNicknameEmpty
	}
	to, err := room.WithResource(env.Nick)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBadRequest, err)
	}
	cl.user.SetDeaf(env.Deaf)
	return cl.user.Process(ctx, &domain.Presence{
		To:       to,
		Show:     env.Show,
		Status:   env.Status,
		Password: env.Password,
	})
}

func (ctl *SignalWSController) handleLeave(ctx context.Context, cl *client, env envelope) {
	var err error
	if env.Room == "" {
		err = ctl.Orch.LeaveAll(ctx, cl.full, env.Status)
	} else {
		var to jid.JID
		if to, err = ctl.roomAddress(env.Room); err == nil {
			err = cl.user.Process(ctx, &domain.Presence{To: to, Type: stanza.UnavailablePresence, Status: env.Status})
		}
	}
	if err != nil {
		ctl.sendError(cl.conn, env, err)
		return
	}
	log.Info().Str("module", "signal").Str("jid", cl.full.String()).Str("room", env.Room).Msg("leave")
	ctl.reply(cl.conn, env, map[string]string{"room": env.Room})
}

func (ctl *SignalWSController) handleNick(ctx context.Context, cl *client, env envelope) {
	err := ctl.Orch.ChangeNickname(ctx, domain.RoomName(env.Room), cl.full, env.Nick)
	ctl.observe("nick", err)
	if err != nil {
		ctl.sendError(cl.conn, env, err)
		return
	}
	log.Info().Str("module", "signal").Str("jid", cl.full.String()).Str("room", env.Room).Str("nick", env.Nick).Msg("rename")
	ctl.reply(cl.conn, env, map[string]string{"room": env.Room, "nick": env.Nick})
}

func (ctl *SignalWSController) handleStatus(ctx context.Context, cl *client, env envelope) {
	if err := ctl.Orch.UpdateStatus(ctx, domain.RoomName(env.Room), cl.full, env.Show, env.Status); err != nil {
		ctl.sendError(cl.conn, env, err)
		return
	}
	ctl.reply(cl.conn, env, nil)
}

func (ctl *SignalWSController) handleInvite(ctx context.Context, cl *client, env envelope) {
	to, err := jid.Parse(env.To)
	if err == nil {
		err = ctl.Orch.Invite(ctx, domain.RoomName(env.Room), cl.full, to, env.Reason)
	} else {
		err = fmt.Errorf("%w: %v", domain.ErrBadRequest, err)
	}
	ctl.observe("invite", err)
	if err != nil {
		ctl.sendError(cl.conn, env, err)
		return
	}
	ctl.reply(cl.conn, env, map[string]string{"to": to.String()})
}

func (ctl *SignalWSController) handleDestroy(ctx context.Context, cl *client, env envelope) {
	err := ctl.Orch.DestroyRoom(ctx, domain.RoomName(env.Room), cl.full, env.Reason)
	ctl.observe("destroy", err)
	if err != nil {
		ctl.sendError(cl.conn, env, err)
		return
	}
	ctl.reply(cl.conn, env, map[string]string{"room": env.Room})
}
