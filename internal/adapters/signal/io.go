package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("ping failed")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, cl *client) {
	defer func() {
		log.Info().Str("module", "signal").Str("jid", cl.full.String()).Msg("readPump closing")
		cancel()
		if ctl.Orch.Registry.Owns(cl.full, cl.conn) {
			if err := ctl.Orch.Disconnect(context.WithoutCancel(ctx), cl.full); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("jid", cl.full.String()).Msg("disconnect cleanup")
			}
		}
		cl.conn.Close()
	}()

	pongWait := ctl.PingPeriod * 10 / 9
	cl.conn.conn.SetReadLimit(ctl.ReadLimit)
	_ = cl.conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.conn.SetPongHandler(func(string) error {
		return cl.conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := cl.conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("module", "signal").Str("jid", cl.full.String()).Msg("readPump read error")
			}
			return
		}
		ctl.handleSignal(ctx, cl, data)
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, cl *client, data []byte) {
	var env envelope
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "signal").Str("jid", cl.full.String()).Str("type", env.Type).Interface("panic", r).Msg("signal handler panicked")
			ctl.sendError(cl.conn, env, fmt.Errorf("internal error: %v", r))
		}
	}()
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(cl.conn, env, errBadPayload)
		return
	}

	if mutating[env.Type] && ctl.Limiter != nil && !ctl.Limiter.Allow(cl.full.Bare().String()) {
		ctl.sendError(cl.conn, env, errRateLimited)
		return
	}

	switch env.Type {
	case "join":
		ctl.handleJoin(ctx, cl, env)
	case "leave":
		ctl.handleLeave(ctx, cl, env)
	case "nick":
		ctl.handleNick(ctx, cl, env)
	case "status":
		ctl.handleStatus(ctx, cl, env)
	case "invite":
		ctl.handleInvite(ctx, cl, env)
	case "destroy":
		ctl.handleDestroy(ctx, cl, env)
	case "admin":
		ctl.handleAdmin(ctx, cl, env)
	case "register_get":
		ctl.handleRegisterGet(ctx, cl, env)
	case "register_set":
		ctl.handleRegisterSet(ctx, cl, env)
	case "search":
		ctl.handleSearch(ctx, cl, env)
	case "whoami":
		ctl.handleWhoAmI(cl, env)
	case "ping":
		ctl.handlePing(cl.conn, env)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(cl.conn, env, errUnknownType)
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("sendJSON dropped")
	}
}

func (ctl *SignalWSController) observe(kind string, err error) {
	if ctl.Observer != nil {
		ctl.Observer.ObserveRequest(kind, err)
	}
}
