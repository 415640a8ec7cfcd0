package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blackmichael/discovery/internal/auth"
	"github.com/blackmichael/discovery/internal/backend"
	"github.com/blackmichael/discovery/internal/config"
	"github.com/blackmichael/discovery/internal/domain"
	"github.com/blackmichael/discovery/internal/httpserver"
	"github.com/blackmichael/discovery/internal/postgres"
	"github.com/blackmichael/discovery/internal/realtime"
	"github.com/blackmichael/discovery/internal/session"
	"github.com/blackmichael/discovery/internal/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// stores is the persistence the server runs on, whichever driver backs it.
type stores struct {
	gateway  session.GatewayFactory
	rooms    domain.RoomRepository
	messages domain.MessageRepository
	close    func() error
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		repo, err := postgres.NewRepository(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("create repository: %w", err)
		}
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return &stores{gateway: session.Static(repo), rooms: repo, messages: repo, close: repo.Close}, nil

	case config.DriverBackend:
		client := backend.NewClient(cfg.BackendURL, cfg.BackendAPIKey)
		// Discovery acts as the viewer so the back-end's row policies apply.
		gateway := func(token string) session.Gateway { return client.WithAccessToken(token) }
		return &stores{gateway: gateway, rooms: client, messages: client, close: func() error { return nil }}, nil

	default:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return &stores{gateway: session.Static(store), rooms: store, messages: store, close: store.Close}, nil
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()
	logger.Info("store ready", "driver", cfg.StoreDriver)

	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTAudience)
	if err != nil {
		return fmt.Errorf("create verifier: %w", err)
	}

	// Every insert is fanned out to the room's websocket clients.
	hub := realtime.NewHub(logger)
	messages := &realtime.PublishingStore{MessageRepository: st.messages, Hub: hub}

	sessions := session.NewManager(st.gateway, logger,
		domain.WithBackgroundTimeout(cfg.BackgroundTimeout),
	)
	defer sessions.Close()

	server := httpserver.NewServer(cfg, httpserver.Services{
		Sessions: sessions,
		Rooms:    st.rooms,
		Messages: messages,
		Chat:     realtime.NewHandler(messages, hub, logger, cfg.Hostname),
		Verifier: verifier,
	}, logger)

	// Set up graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited with error", "error", err)
		}
	}()

	logger.Info("server started", "port", cfg.Port, "hostname", cfg.Hostname)

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	return nil
}
