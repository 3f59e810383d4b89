package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dkeye/mucd/internal/adapters/signal"
	"github.com/dkeye/mucd/internal/app/iq"
	"github.com/dkeye/mucd/internal/app/orch"
	"github.com/dkeye/mucd/internal/config"
	"github.com/dkeye/mucd/internal/domain"
	"github.com/dkeye/mucd/internal/metrics"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"mellium.im/xmpp/jid"
)

const (
	sessionName = "MUCSessions"
	identityKey = "jid"
	callerKey   = "caller"
)

// Deps are the handlers the API exposes.
type Deps struct {
	Orch     *orch.Orchestrator
	Admin    *iq.AdminHandler
	Register *iq.RegisterHandler
	Search   *iq.SearchHandler
	Signal   *signal.SignalWSController
	Metrics  *metrics.Metrics
}

type api struct {
	Deps
}

func SetupRouter(ctx context.Context, cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions(sessionName, store))

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": len(d.Orch.Service.Rooms())})
	})
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	a := &api{Deps: d}
	g := r.Group("/api")
	g.POST("/session", a.bindSession)
	g.GET("/rooms", a.listRooms)
	g.GET("/rooms/:name", a.roomInfo)
	g.POST("/search", a.search)

	authed := g.Group("", requireIdentity())
	authed.GET("/session", a.whoami)
	authed.POST("/rooms/:name/admin", a.admin)
	authed.PUT("/rooms/:name/config", a.configure)
	authed.GET("/rooms/:name/register", a.registerGet)
	authed.POST("/rooms/:name/register", a.registerSet)
	authed.GET("/ws/signal", func(c *gin.Context) {
		caller := c.MustGet(callerKey).(jid.JID)
		log.Info().Str("module", "adapters.http").Str("jid", caller.String()).Msg("ws signal endpoint hit")
		d.Signal.HandleSignal(ctx, c, caller)
	})

	return r
}

// bindSession stores the claimed identity in the cookie session. A bare
// identity gets a generated resource so each browser is its own occupant.
func (a *api) bindSession(c *gin.Context) {
	var body struct {
		JID string `json:"jid" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWith(c, fmt.Errorf("%w: %v", domain.ErrBadRequest, err))
		return
	}
	j, err := jid.Parse(body.JID)
	if err != nil || j.Localpart() == "" {
		abortWith(c, fmt.Errorf("%w: invalid jid %q", domain.ErrBadRequest, body.JID))
		return
	}
	if j.Resourcepart() == "" {
		if j, err = j.WithResource(uuid.NewString()); err != nil {
			abortWith(c, fmt.Errorf("%w: %v", domain.ErrBadRequest, err))
			return
		}
	}
	s := sessions.Default(c)
	s.Set(identityKey, j.String())
	if err := s.Save(); err != nil {
		abortWith(c, err)
		return
	}
	log.Info().Str("module", "adapters.http").Str("jid", j.String()).Msg("session bound")
	c.JSON(http.StatusOK, gin.H{"jid": j.String()})
}

func requireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, _ := sessions.Default(c).Get(identityKey).(string)
		j, err := jid.Parse(raw)
		if raw == "" || err != nil {
			abortWith(c, domain.ErrNotAuthorized)
			return
		}
		c.Set(callerKey, j)
		c.Next()
	}
}

func caller(c *gin.Context) jid.JID {
	return c.MustGet(callerKey).(jid.JID)
}

func (a *api) whoami(c *gin.Context) {
	full := caller(c)
	c.JSON(http.StatusOK, gin.H{"jid": full.String(), "rooms": a.Orch.RoomsOf(full)})
}

// listRooms shows the public rooms; locked rooms only when the service
// is configured to discover them.
func (a *api) listRooms(c *gin.Context) {
	svc := a.Orch.Service
	out := []domain.RoomInfo{}
	for _, info := range svc.List() {
		if !info.Public || (info.Locked && !svc.DiscoverLocked()) {
			continue
		}
		out = append(out, info)
	}
	c.JSON(http.StatusOK, gin.H{"rooms": out})
}

func (a *api) roomInfo(c *gin.Context) {
	room, ok := a.Orch.Service.Room(domain.RoomName(c.Param("name")))
	if !ok {
		abortWith(c, domain.ErrItemNotFound)
		return
	}
	c.JSON(http.StatusOK, room.Info())
}

func (a *api) admin(c *gin.Context) {
	var req iq.AdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, fmt.Errorf("%w: %v", domain.ErrBadRequest, err))
		return
	}
	res, err := a.Admin.Handle(c.Request.Context(), domain.RoomName(c.Param("name")), caller(c), req)
	a.observe("admin", err)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(replyStatus(res.Error), res)
}

// configRequest carries the password that RoomConfig keeps out of JSON.
type configRequest struct {
	domain.RoomConfig
	Password string `json:"password"`
}

func (a *api) configure(c *gin.Context) {
	var req configRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, fmt.Errorf("%w: %v", domain.ErrBadRequest, err))
		return
	}
	cfg := req.RoomConfig
	cfg.Password = req.Password
	name := domain.RoomName(c.Param("name"))
	err := a.Orch.Configure(c.Request.Context(), name, caller(c), cfg)
	a.observe("configure", err)
	if err != nil {
		abortWith(c, err)
		return
	}
	room, ok := a.Orch.Service.Room(name)
	if !ok {
		abortWith(c, domain.ErrItemNotFound)
		return
	}
	c.JSON(http.StatusOK, room.Info())
}

func (a *api) registerGet(c *gin.Context) {
	form, err := a.Register.Get(c.Request.Context(), domain.RoomName(c.Param("name")), caller(c))
	a.observe("register_get", err)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, form)
}

func (a *api) registerSet(c *gin.Context) {
	var req iq.RegisterSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWith(c, fmt.Errorf("%w: %v", domain.ErrBadRequest, err))
		return
	}
	res, err := a.Register.Set(c.Request.Context(), domain.RoomName(c.Param("name")), caller(c), req)
	a.observe("register_set", err)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(replyStatus(res.Error), res)
}

func (a *api) search(c *gin.Context) {
	var req iq.SearchRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWith(c, fmt.Errorf("%w: %v", domain.ErrBadRequest, err))
			return
		}
	}
	res, err := a.Search.Search(c.Request.Context(), req)
	a.observe("search", err)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *api) observe(kind string, err error) {
	if a.Metrics != nil {
		a.Metrics.ObserveRequest(kind, err)
	}
}

var conditionStatus = map[string]int{
	"bad-request":             http.StatusBadRequest,
	"not-authorized":          http.StatusUnauthorized,
	"forbidden":               http.StatusForbidden,
	"registration-required":   http.StatusForbidden,
	"item-not-found":          http.StatusNotFound,
	"not-allowed":             http.StatusMethodNotAllowed,
	"conflict":                http.StatusConflict,
	"feature-not-implemented": http.StatusNotImplemented,
	"service-unavailable":     http.StatusServiceUnavailable,
}

func statusOf(condition string) int {
	if s, ok := conditionStatus[condition]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func replyStatus(e *iq.ErrorReply) int {
	if e == nil {
		return http.StatusOK
	}
	return statusOf(e.Condition)
}

func abortWith(c *gin.Context, err error) {
	se := domain.StanzaError(err)
	status := statusOf(string(se.Condition))
	if status == http.StatusInternalServerError && !errors.Is(err, context.Canceled) {
		log.Error().Str("module", "adapters.http").Str("path", c.FullPath()).Err(err).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": iq.ErrorReply{
		Type:      string(se.Type),
		Condition: string(se.Condition),
		Text:      err.Error(),
	}})
}
