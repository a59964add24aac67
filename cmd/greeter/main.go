// greeter connects to a WebSocket server, greets it once the connection
// opens, and logs every message that comes back.
// Usage: go run ./cmd/greeter [--config configs/greeter.yaml]
//
// Commands read from stdin, one per line:
//
//	send - transmit the manual payload
//	quit - close the connection and exit
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/ws-greeter/internal/config"
	"github.com/rickgao/ws-greeter/internal/connection"
	"github.com/rickgao/ws-greeter/internal/database"
	"github.com/rickgao/ws-greeter/internal/greeter"
	"github.com/rickgao/ws-greeter/internal/journal"
	"github.com/rickgao/ws-greeter/internal/logging"
	"github.com/rickgao/ws-greeter/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger, err := logging.New(cfg.Log, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	logger.Info("starting greeter",
		"version", version.Version,
		"commit", version.Commit,
		"url", cfg.Client.URL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, os.Stdin, logger); err != nil {
		logger.Error("greeter failed", "error", err)
		os.Exit(1)
	}

	logger.Info("greeter stopped")
}

func run(ctx context.Context, cfg *config.Config, stdin io.Reader, logger *slog.Logger) error {
	var opts []greeter.Option

	if cfg.Journal.Enabled {
		pool, err := database.Connect(ctx, cfg.Journal.Database)
		if err != nil {
			return fmt.Errorf("connect journal database: %w", err)
		}
		defer pool.Close()

		if err := database.EnsureSchema(ctx, pool); err != nil {
			return err
		}

		w := journal.NewWriter(journal.Config{
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
		}, pool, logger)
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("start journal: %w", err)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			w.Stop(stopCtx)
			logger.Info("journal stats", "stats", w.Stats())
		}()

		opts = append(opts, greeter.WithRecorder(w))
	}

	h := connection.NewHandle(connection.Config{
		URL:              cfg.Client.URL,
		HandshakeTimeout: cfg.Client.HandshakeTimeout,
		WriteTimeout:     cfg.Client.WriteTimeout,
		PingInterval:     cfg.Client.PingInterval,
		ReadLimit:        cfg.Client.ReadLimit,
	}, logger)

	g := greeter.New(h, greeter.Config{
		Greetings:     cfg.Client.Greetings,
		ManualPayload: cfg.Client.ManualPayload,
	}, logger, opts...)

	if err := h.Open(ctx); err != nil {
		return fmt.Errorf("open connection: %w", err)
	}

	// Stops the stdin reader once serve is done with it
	linesCtx, stopLines := context.WithCancel(ctx)
	defer stopLines()

	return serve(ctx, h, g, scanLines(linesCtx, stdin), logger)
}

// serve feeds stdin commands to the greeter until quit, a signal, or the
// connection ends, and returns once the handle has finished.
func serve(ctx context.Context, h connection.Handle, g *greeter.Greeter, lines <-chan string, logger *slog.Logger) error {
	grp, gctx := errgroup.WithContext(ctx)

	// External trigger loop
	grp.Go(func() error {
		defer h.Close()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-h.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					// stdin closed; keep the connection until a signal or remote close
					lines = nil
					continue
				}
				if quit := handleCommand(line, g, logger); quit {
					return nil
				}
			}
		}
	})

	// Connection watcher
	grp.Go(func() error {
		select {
		case <-h.Done():
		case <-gctx.Done():
			h.Close()
			<-h.Done()
		}
		return nil
	})

	return grp.Wait()
}

// handleCommand runs one stdin command and reports whether to quit.
func handleCommand(line string, g *greeter.Greeter, logger *slog.Logger) bool {
	switch cmd := strings.TrimSpace(line); cmd {
	case "":
	case "send":
		if err := g.ManualSend(); err != nil {
			logger.Warn("manual send failed", "error", err)
		}
	case "quit", "exit":
		return true
	default:
		logger.Warn("unknown command", "command", cmd, "commands", "send, quit")
	}
	return false
}

// scanLines feeds lines from r into a channel closed at EOF or when ctx is
// done. A pending read on r is not interrupted.
func scanLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}
