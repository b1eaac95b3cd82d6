package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/bazaar-hub/bazaar/internal/api/http"
	"github.com/bazaar-hub/bazaar/internal/api/ws"
	"github.com/bazaar-hub/bazaar/internal/application/auth"
	"github.com/bazaar-hub/bazaar/internal/application/catalog"
	"github.com/bazaar-hub/bazaar/internal/application/negotiation"
	"github.com/bazaar-hub/bazaar/internal/application/user"
	"github.com/bazaar-hub/bazaar/internal/config"
	"github.com/bazaar-hub/bazaar/internal/infrastructure/postgres"
	"github.com/bazaar-hub/bazaar/internal/infrastructure/realtime"
	"github.com/bazaar-hub/bazaar/internal/infrastructure/redisrelay"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("app", "bazaar").Logger()
	if err := run(os.Args[1:], logger); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func run(args []string, logger zerolog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	flags := pflag.NewFlagSet("bazaar", pflag.ContinueOnError)
	flags.StringVar(&cfg.ServerAddr, "addr", cfg.ServerAddr, "HTTP listen address")
	flags.StringVar(&cfg.MigrationsDir, "migrations", cfg.MigrationsDir, "directory of SQL migrations")
	flags.StringVar(&cfg.RedisURL, "redis", cfg.RedisURL, "redis URL for cross-node room fan-out (empty runs single node)")
	debug := flags.Bool("debug", false, "enable debug logging")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *debug {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	// repositories
	userRepo := postgres.NewUserRepository(pool)
	sessionRepo := postgres.NewSessionRepository(pool)
	productRepo := postgres.NewProductRepository(pool)
	cartRepo := postgres.NewCartRepository(pool)
	negotiationRepo := postgres.NewNegotiationRepository(pool)

	policy, err := negotiation.NewPricePolicy(cfg.ProposalPriceRule)
	if err != nil {
		return fmt.Errorf("proposal price rule: %w", err)
	}

	// services
	authSvc := auth.NewService(userRepo, sessionRepo, cfg.SessionTTL, logger)
	userSvc := user.NewService(userRepo, logger)
	catalogSvc := catalog.NewService(productRepo, logger)
	negotiationSvc := negotiation.NewService(negotiationRepo, productRepo, cartRepo, policy, logger)

	// realtime
	hub := realtime.NewHub()
	var broadcaster realtime.Broadcaster
	var relay *redisrelay.Relay
	if cfg.RedisURL != "" {
		client, err := redisrelay.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer client.Close()
		relay = redisrelay.New(client, hub, logger)
		broadcaster = relay
		logger.Info().Str("node", relay.NodeID()).Msg("cross-node relay enabled")
	}

	gateway := ws.NewGateway(negotiationSvc, authSvc, hub, broadcaster, ws.Options{
		CookieName:  cfg.SessionCookieName,
		SendBuffer:  cfg.WSSendBuffer,
		CheckOrigin: originChecker(cfg.AllowedOrigins),
	}, logger)

	apiServer := httpapi.NewServer(authSvc, userSvc, catalogSvc, negotiationSvc, cartRepo, gateway, cfg.SessionCookieName, cfg.SessionCookieSecure, logger)

	httpServer := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     apiServer.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if relay != nil {
		g.Go(func() error {
			return relay.Run(gctx)
		})
	}

	// background loops
	g.Go(func() error {
		ticker := time.NewTicker(cfg.SessionSweep)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if _, err := authSvc.PurgeExpired(gctx); err != nil && gctx.Err() == nil {
					logger.Warn().Err(err).Msg("session sweep failed")
				}
			}
		}
	})

	// graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		gateway.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// originChecker accepts every origin when allowed is empty. Requests without an
// Origin header are not browser initiated and always pass.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
