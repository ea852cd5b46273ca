package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/livepaste/livepaste/server/internal/admin"
	"github.com/livepaste/livepaste/server/internal/api"
	"github.com/livepaste/livepaste/server/internal/auth"
	"github.com/livepaste/livepaste/server/internal/config"
	"github.com/livepaste/livepaste/server/internal/metrics"
	"github.com/livepaste/livepaste/server/internal/room"
	"github.com/livepaste/livepaste/server/internal/store"
	"github.com/livepaste/livepaste/server/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, WebSocket and admin listeners",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, *configPath)
		},
	}
}

func serve(ctx context.Context, configPath string) error {
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	slog.Info("livepaste-server starting", "config", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	sc := cfg.Server
	level.Set(sc.Level())

	slog.Info("config loaded",
		"http_port", sc.HTTPPort,
		"grpc_port", sc.GRPCPort,
		"auth_mode", sc.Auth.Mode,
		"snippet_ttl", sc.Snippet.TTL,
		"log_level", level.Level(),
	)

	db, err := store.Open(sc.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	st, err := store.New(db)
	if err != nil {
		return err
	}
	go st.Run(ctx, sc.Snippet.CleanupInterval)

	hub := room.New(
		room.WithCapacity(sc.Rooms.Buffer),
		room.WithPresence(ws.Presence),
		room.WithIdleGrace(sc.Rooms.IdleGrace),
	)
	go hub.Run(ctx, sc.Rooms.SweepInterval)

	sessions := ws.New(hub, st, ws.Options{MaxMessageBytes: sc.WebSocket.MaxMessageBytes})
	go sessions.Run(ctx)

	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, func(next *config.Config) {
				level.Set(next.Server.Level())
				hub.SetIdleGrace(next.Server.Rooms.IdleGrace)
				hub.SetSweepInterval(next.Server.Rooms.SweepInterval)
			})
			if err != nil {
				slog.Warn("config: hot reload disabled", "err", err)
			}
		}()
	}

	key := sc.Auth.Key()
	if sc.Auth.Mode == "apikey" && key == "" {
		slog.Warn("auth: api key env is empty, admin surfaces are open", "key_env", sc.Auth.KeyEnv)
	}

	var adm *admin.Server
	if sc.GRPCPort > 0 {
		adm = admin.New(st, admin.AuthConfig{Mode: sc.Auth.Mode, Header: sc.Auth.EffectiveHeader(), Key: key}, 0)
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", sc.GRPCPort))
		if err != nil {
			return fmt.Errorf("listen on gRPC port %d: %w", sc.GRPCPort, err)
		}
		go adm.Run(ctx)
		go func() {
			slog.Info("gRPC admin listening", "port", sc.GRPCPort)
			if err := adm.Serve(lis); err != nil {
				slog.Error("gRPC admin stopped", "err", err)
			}
		}()
	}

	handler := api.New(st, api.Options{
		TTL:         sc.Snippet.TTL,
		FrontendURL: sc.FrontendURL,
		Rooms:       sessions,
		Metrics:     metrics.New(hub, sessions, st),
		MetricsAuth: auth.APIKeyMiddleware(sc.Auth.Mode, sc.Auth.EffectiveHeader(), key),
	})

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", sc.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", sc.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	}

	slog.Info("livepaste-server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if adm != nil {
		adm.Stop()
	}
	// WebSocket sessions are hijacked connections; sessions.Run closes them.
	return httpSrv.Shutdown(shutdownCtx)
}
