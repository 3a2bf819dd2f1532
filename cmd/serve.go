package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/cwrk-planet/roomchat/config"
	"github.com/cwrk-planet/roomchat/internal/memstore"
	"github.com/cwrk-planet/roomchat/internal/postgres"
	"github.com/cwrk-planet/roomchat/internal/presence"
	"github.com/cwrk-planet/roomchat/internal/ratelimit"
	"github.com/cwrk-planet/roomchat/internal/security"
	"github.com/cwrk-planet/roomchat/internal/service"
	grpcx "github.com/cwrk-planet/roomchat/internal/transport/grpc"
	httpx "github.com/cwrk-planet/roomchat/internal/transport/http"
	"github.com/cwrk-planet/roomchat/internal/transport/ws"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/websocket and gRPC servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup(*cfgPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting roomchat", "env", cfg.Logging.Env, "version", cfg.Logging.Version, "store", cfg.Store.Driver)

	// --- auth ---
	pub, err := security.LoadRSAPublicKeyFromPEM(cfg.Auth.PublicKeyPath)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	verifier := security.NewJWTVerifier(pub, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.ClockSkew)
	secrets := security.SecretHasher{Cost: cfg.Rooms.SecretCost}

	// --- store ---
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// --- rate limiter ---
	var limiter service.MessageLimiter
	if rl := cfg.Chat.RateLimit; rl.RedisAddr != "" {
		client, err := ratelimit.NewClient(ctx, rl.RedisAddr, rl.RedisPassword, rl.RedisDB)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer client.Close()
		l, err := ratelimit.New(client, ratelimit.Config{Limit: rl.Limit, Window: rl.Window})
		if err != nil {
			return err
		}
		limiter = l
		slog.Info("message rate limit enabled", "limit", rl.Limit, "window", rl.Window)
	}

	// --- presence & services ---
	hub := ws.NewHub()
	coord := service.NewCoordinator(presence.NewRegistry(), store, hub, limiter, secrets, service.CoordinatorConfig{
		HistoryLimit:     cfg.Store.HistoryLimit,
		MaxMessageLength: cfg.Chat.MaxMessageLength,
		StoreTimeout:     cfg.Store.Timeout,
	})
	rooms := service.NewRoomService(coord, secrets)

	// --- WS & HTTP ---
	wsServer := ws.NewServer(hub, coord, verifier, ws.Config{
		PingPeriod:     cfg.WS.PingPeriod,
		WriteWait:      cfg.WS.WriteWait,
		ReadLimit:      cfg.WS.ReadLimit,
		SendBuffer:     cfg.WS.SendBuffer,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})
	router := httpx.NewRouter(httpx.Deps{
		Handler:  httpx.NewHandler(rooms),
		Auth:     verifier,
		WS:       wsServer.HandleWS,
		Presence: coord.Stats,
	}, httpx.RouterConfig{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	})
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// --- gRPC ---
	var grpcSrv *grpcx.Server
	if cfg.GRPC.Addr != "" {
		grpcSrv = grpcx.NewServer(grpcx.Config{
			Addr:             cfg.GRPC.Addr,
			DeadlineGuard:    cfg.GRPC.DeadlineGuard,
			EnableReflection: cfg.GRPC.Reflection,
		})
	}

	// --- run ---
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	if grpcSrv != nil {
		g.Go(func() error {
			if err := grpcSrv.ListenAndServe(); err != nil {
				return fmt.Errorf("grpc: %w", err)
			}
			return nil
		})
	}

	// --- graceful shutdown ---
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
		defer cancel()

		if grpcSrv != nil {
			grpcSrv.Shutdown(sctx)
		}
		if err := httpSrv.Shutdown(sctx); err != nil {
			slog.Warn("http shutdown", "err", err)
		}
		// hijacked ws connections are not tracked by http.Server
		st := coord.Stats()
		slog.Info("closing ws connections", "connections", st.Connections, "users", st.Users)
		n := hub.CloseAll()
		if err := wsServer.Wait(sctx); err != nil {
			slog.Warn("ws connections did not finish in time", "open", n, "err", err)
		}
		return nil
	})

	err = g.Wait()
	slog.Info("stopped")
	return err
}

func openStore(ctx context.Context, cfg *config.Config) (service.RoomStore, func(), error) {
	if cfg.Store.Driver == "memory" {
		slog.Warn("using in-memory store, data is lost on restart")
		return memstore.New(cfg.Store.HistoryLimit), func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, pgConfig(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	if cfg.Postgres.MigrateOnStart {
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}
	return postgres.NewRoomStore(pool, cfg.Store.HistoryLimit), pool.Close, nil
}

func pgConfig(cfg *config.Config) postgres.Config {
	return postgres.Config{
		DSN:             cfg.Postgres.DSN,
		MaxConns:        cfg.Postgres.MaxConns,
		MinConns:        cfg.Postgres.MinConns,
		MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
		MaxConnIdleTime: cfg.Postgres.MaxConnIdleTime,
		ApplicationName: cfg.Logging.Service,
	}
}
