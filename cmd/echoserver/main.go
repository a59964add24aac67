// echoserver listens for WebSocket peers and echoes every message back.
// Usage: go run ./cmd/echoserver [--config configs/greeter.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rickgao/ws-greeter/internal/config"
	"github.com/rickgao/ws-greeter/internal/echo"
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

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	logger.Info("starting echo server",
		"version", version.Version,
		"addr", cfg.Echo.Addr,
		"path", cfg.Echo.Path,
	)

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

	srv := echo.NewServer(serverConfig(cfg), logger)

	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("echo server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("echo server stopped")
}

// serverConfig maps the echo section of cfg onto the server's settings.
func serverConfig(cfg *config.Config) echo.Config {
	return echo.Config{
		Addr:         cfg.Echo.Addr,
		Path:         cfg.Echo.Path,
		Prefix:       cfg.Echo.Prefix,
		WriteTimeout: cfg.Echo.WriteTimeout,
	}
}
