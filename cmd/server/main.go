package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"mellium.im/xmpp/jid"

	"github.com/dkeye/mucd/internal/adapters/cluster"
	router "github.com/dkeye/mucd/internal/adapters/http"
	wssignal "github.com/dkeye/mucd/internal/adapters/signal"
	"github.com/dkeye/mucd/internal/adapters/store"
	"github.com/dkeye/mucd/internal/app"
	"github.com/dkeye/mucd/internal/app/iq"
	"github.com/dkeye/mucd/internal/app/orch"
	"github.com/dkeye/mucd/internal/config"
	"github.com/dkeye/mucd/internal/core"
	"github.com/dkeye/mucd/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Console output until the config says otherwise.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg)

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}

func setupLogging(cfg *config.Config) {
	if cfg.Mode != "debug" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func run(ctx context.Context, cfg *config.Config) error {
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("store close")
		}
	}()

	sysadmins := make([]jid.JID, 0, len(cfg.MUC.Sysadmins))
	for _, raw := range cfg.MUC.Sysadmins {
		j, err := jid.Parse(raw)
		if err != nil {
			return fmt.Errorf("muc.sysadmins: %q: %w", raw, err)
		}
		sysadmins = append(sysadmins, j)
	}

	reg := app.NewRegistry()
	rt := app.NewRouter(reg)
	svc, err := core.NewService(core.ServiceOptions{
		Domain:              cfg.MUC.Domain,
		Sysadmins:           sysadmins,
		SkipInvite:          cfg.MUC.SkipInvite,
		DiscoverLocked:      cfg.MUC.DiscoverLocked,
		RegistrationEnabled: cfg.MUC.RegistrationEnabled,
		RoomDefaults:        cfg.MUC.RoomDefaults,
		Store:               st,
		Router:              rt,
	})
	if err != nil {
		return err
	}

	m := metrics.New(nil)
	bus := app.NewBus()
	bus.Add("metrics", m.OnEvent)

	o := &orch.Orchestrator{
		Service:  svc,
		Registry: reg,
		Bus:      bus,
		Policy:   app.SimplePolicy{},
		Router:   rt,
		Observer: m,
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Cluster.Enabled() {
		pub := cluster.NewPublisher(cfg.Cluster.Brokers, cfg.Cluster.Topic, cfg.Cluster.NodeID)
		defer pub.Close()
		bus.Add("cluster", pub.OnEvent)
		rt.Remote = pub

		consumer := cluster.NewConsumer(cfg.Cluster.Brokers, cfg.Cluster.Topic, cfg.Cluster.Group, cfg.Cluster.NodeID)
		defer consumer.Close()
		g.Go(func() error {
			return consumer.Run(ctx, cluster.NewInbound(o, rt.Local))
		})
	}

	admin := iq.NewAdminHandler(svc, o)
	register := iq.NewRegisterHandler(svc, o)
	search := iq.NewSearchHandler(svc, cfg.Search.CacheSize, cfg.Search.CacheTTL)

	ctl := wssignal.NewSignalWSController(o, admin, register, search)
	ctl.Limiter = wssignal.NewRateLimiter(cfg.Rate.Limit, cfg.Rate.Interval)
	ctl.Observer = m
	if cfg.ReadLimit > 0 {
		ctl.ReadLimit = cfg.ReadLimit
	}
	if cfg.PingPeriod > 0 {
		ctl.PingPeriod = cfg.PingPeriod
	}

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Orch:     o,
		Admin:    admin,
		Register: register,
		Search:   search,
		Signal:   ctl,
		Metrics:  m,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info().Str("addr", addr).Str("domain", svc.Address().String()).Msg("MUC server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
