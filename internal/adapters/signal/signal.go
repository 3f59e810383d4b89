// Package signal is the websocket channel of the room service: JSON
// envelopes in, presences, invitations and replies out.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/mucd/internal/app/iq"
	"github.com/dkeye/mucd/internal/app/orch"
	"github.com/dkeye/mucd/internal/core"
	"github.com/dkeye/mucd/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"mellium.im/xmpp/jid"
)

var ErrClosed = errors.New("connection closed")

const sendBuffer = 32

// RequestObserver is told about every handled request.
type RequestObserver interface {
	ObserveRequest(kind string, err error)
}

type SignalWSController struct {
	Orch     *orch.Orchestrator
	Admin    *iq.AdminHandler
	Register *iq.RegisterHandler
	Search   *iq.SearchHandler
	Limiter  *RateLimiter
	Observer RequestObserver

	ReadLimit  int64
	PingPeriod time.Duration
}

func NewSignalWSController(o *orch.Orchestrator, admin *iq.AdminHandler, reg *iq.RegisterHandler, search *iq.SearchHandler) *SignalWSController {
	return &SignalWSController{
		Orch:       o,
		Admin:      admin,
		Register:   reg,
		Search:     search,
		ReadLimit:  32768,
		PingPeriod: 54 * time.Second,
	}
}

// WsSignalConn is the session of one websocket client.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(b []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- b:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// Deliver implements core.Session.
func (c *WsSignalConn) Deliver(pkt domain.Packet) error {
	b, err := encodePacket(pkt)
	if err != nil {
		return err
	}
	return c.TrySend(b)
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and serves full until the socket
// closes or the registry cancels the binding.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context, full jid.JID) {
	log.Info().Str("module", "signal").Str("jid", full.String()).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan []byte, sendBuffer),
	}
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.Bind(full, conn, cancel)
	user := orch.NewLocalUser(ctl.Orch, full, conn)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, &client{full: full, conn: conn, user: user})
}

type client struct {
	full jid.JID
	conn *WsSignalConn
	user *orch.LocalUser
}
