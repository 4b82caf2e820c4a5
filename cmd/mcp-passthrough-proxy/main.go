// Command mcp-passthrough-proxy runs the MCP passthrough proxy: an HTTP
// front multiplexing many sessions (the default) or, with --stdio, a
// single session read from stdin/stdout, each forwarding through the
// configured hook chain to one target MCP server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civicteam/mcp-passthrough-proxy/config"
	"github.com/civicteam/mcp-passthrough-proxy/hook"
	"github.com/civicteam/mcp-passthrough-proxy/passthrough"
	"github.com/civicteam/mcp-passthrough-proxy/session"
	"github.com/civicteam/mcp-passthrough-proxy/transport/httpstream"
	"github.com/civicteam/mcp-passthrough-proxy/transport/stdio"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

const shutdownGrace = 5 * time.Second

var useStdio bool

func main() {
	rootCmd := &cobra.Command{
		Use:     "mcp-passthrough-proxy",
		Short:   "Forward MCP traffic to a target server through a configurable hook chain",
		Version: version,
		RunE:    run,
	}
	rootCmd.Flags().BoolVar(&useStdio, "stdio", false, "read one session from stdin/stdout instead of serving HTTP")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	hooks := make([]hook.Client, 0, len(cfg.Hooks))
	for _, url := range cfg.Hooks {
		hooks = append(hooks, hook.NewRemoteClient(url, url, nil, log))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if useStdio {
		return runStdio(ctx, cfg, hooks, log)
	}
	return runHTTP(ctx, cfg, hooks, log)
}

func runStdio(ctx context.Context, cfg *config.Config, hooks []hook.Client, log *zap.Logger) error {
	pc := passthrough.New(hooks, passthrough.Options{}, log)

	serverTr := stdio.New()
	clientTr := httpstream.New(cfg.TargetServerURL, cfg.TargetServerMCPPath)

	if err := pc.Connect(ctx, serverTr, clientTr); err != nil {
		return fmt.Errorf("connect stdio session: %w", err)
	}

	log.Info("mcp-passthrough-proxy listening on stdio", zap.String("target", cfg.TargetServerURL))
	<-ctx.Done()
	return pc.Close()
}

func runHTTP(ctx context.Context, cfg *config.Config, hooks []hook.Client, log *zap.Logger) error {
	mgr, err := session.New(cfg, hooks, log)
	if err != nil {
		return fmt.Errorf("build session manager: %w", err)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mgr.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("mcp-passthrough-proxy listening",
			zap.Int("port", cfg.Port),
			zap.String("target", cfg.TargetServerURL),
			zap.String("path", cfg.SourceServerMCPPath))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	mgr.RemoveAllSessions()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
