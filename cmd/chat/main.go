package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/blackmichael/discovery/internal/domain"
	"github.com/blackmichael/discovery/internal/realtime"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		server   string
		token    string
		viewerID string
		roomID   string
	)

	flag.StringVar(&server, "server", envOrDefault("DISCOVERY_SERVER", "http://localhost:3000"), "Discovery server URL")
	flag.StringVar(&token, "token", envOrDefault("DISCOVERY_TOKEN", ""), "Access token")
	flag.StringVar(&viewerID, "viewer", envOrDefault("DISCOVERY_VIEWER", ""), "Your account id (used to label your own messages)")
	flag.StringVar(&roomID, "room", "", "Room id to join")
	flag.Parse()

	if token == "" || viewerID == "" {
		return fmt.Errorf("--token and --viewer are required (or set DISCOVERY_TOKEN and DISCOVERY_VIEWER)")
	}
	if roomID == "" {
		return fmt.Errorf("--room is required")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := realtime.NewClient(server, token, logger)
	room := domain.NewChatRoom(roomID, viewerID, client, realtime.NewReconnecting(client, 0, logger), logger)
	room.OnMerge = func(m domain.Message) {
		who := m.SenderID
		if who == viewerID {
			who = "you"
		}
		fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), who, m.Content)
	}

	n := room.Open(ctx)
	switch n.Kind {
	case domain.NoticeLoaded:
	case domain.NoticeOffline:
		fmt.Println(n.Message)
	default:
		return fmt.Errorf("open room: %s", n.Message)
	}
	defer room.Close()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if draft, n := room.Send(ctx, line); n.IsError() {
				fmt.Printf("! %s (draft kept: %q)\n", n.Message, draft)
			}
		}
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
