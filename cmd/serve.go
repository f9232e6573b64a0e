package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/switchboard/switchboard/internal/dependency"
)

const shutdownTimeout = 10 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the switchboard hub",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (overrides server.port)")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}

	c, err := dependency.New(cfg)
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr())
	if err != nil {
		_ = c.Close()
		return fmt.Errorf("listen %s: %w", cfg.Server.Addr(), err)
	}
	srv := &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Printf("%s Starting switchboard on %s...\n", logo, ln.Addr())

	// Graceful shutdown context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return c.Sweeper().Start(gctx) })
	g.Go(func() error { return c.Pruner().Start(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		stats := c.Hub().Stats()
		slog.Info("serve: shutting down",
			"connections", stats.Connections,
			"authenticated", stats.Authenticated,
			"channels", len(stats.Channels))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Hijacked websockets are not tracked by the http.Server.
		if err := c.Sockets().Close(); err != nil {
			slog.Warn("serve: closing sockets", "err", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	fmt.Printf("%s Ingest on http://%s/ and sockets on ws://%s%s\n",
		logo, displayAddr(ln.Addr()), displayAddr(ln.Addr()), cfg.Server.SocketPath)
	fmt.Printf("%s Hub running. Press Ctrl+C to stop.\n", logo)

	err = g.Wait()
	if closeErr := c.Close(); closeErr != nil {
		slog.Warn("serve: shutdown", "err", closeErr)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "serve error: %v\n", err)
		return err
	}
	fmt.Println("\nShutdown complete.")
	return nil
}

func displayAddr(addr net.Addr) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok || !tcp.IP.IsUnspecified() {
		return addr.String()
	}
	return net.JoinHostPort("localhost", strconv.Itoa(tcp.Port))
}
