package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	router "github.com/dkeye/meetsignal/internal/adapters/http"
	wsignal "github.com/dkeye/meetsignal/internal/adapters/signal"
	"github.com/dkeye/meetsignal/internal/app"
	"github.com/dkeye/meetsignal/internal/app/orch"
	"github.com/dkeye/meetsignal/internal/config"
	"github.com/dkeye/meetsignal/internal/core"
)

func newServeCmd() *cobra.Command {
	var (
		cfgPath string
		port    int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Port = port
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default config/config.<CONFIG_ENV>.yaml)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port, overrides config")
	return cmd
}

func applyLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		log.Warn().Str("level", level).Msg("unknown log level, keeping info")
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	applyLogLevel(cfg.LogLevel)
	cfg.OnReload(func(next *config.Config) {
		applyLogLevel(next.LogLevel)
	})

	policy, err := app.PolicyByName(cfg.SlowConsumer)
	if err != nil {
		return err
	}
	reg := app.NewRegistry(policy)
	manager := core.NewRoomManager(reg)

	o := &orch.Orchestrator{
		Rooms: manager,
		Hosts: app.NewStaticHosts(cfg.MeetingHosts),
	}

	events := &wsignal.EventStreamController{
		Registry: reg,
		Cfg: wsignal.StreamConfig{
			ReadLimit:  cfg.ReadLimit,
			PingPeriod: cfg.PingPeriod,
			PongWait:   cfg.PongWait,
			SendBuffer: cfg.SendBuffer,
		},
	}
	if cfg.PresenceTTL > 0 {
		events.Touch = o.TouchUser
	}
	limiter := router.NewRateLimiter(cfg.RateLimit, cfg.RateInterval)

	r := router.SetupRouter(ctx, cfg, router.Deps{Orch: o, Events: events, Limiter: limiter})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg conc.WaitGroup
	wg.Go(func() {
		o.RunJanitor(ctx, cfg.PresenceTTL, cfg.SweepInterval)
	})
	wg.Go(func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := limiter.Prune(); n > 0 {
					log.Debug().Int("users", n).Msg("rate limiter pruned")
				}
			}
		}
	})

	serveErr := make(chan error, 1)
	wg.Go(func() {
		log.Info().Str("addr", addr).Msg("Voice server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			serveErr <- err
			cancel()
		}
	})

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	reg.CloseAll()
	wg.Wait()

	select {
	case err := <-serveErr:
		return err
	default:
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
