package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/plandala/internal/audit"
	"github.com/zulandar/plandala/internal/config"
	"github.com/zulandar/plandala/internal/projection"
	"github.com/zulandar/plandala/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serves the board over JSON and server-sent events.

When required connection parameters are missing, the server still starts
and answers every request with 503 and the list of missing settings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "plandala.yaml", "path to Plandala config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default: server.port from config)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	out := cmd.OutOrStdout()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	a, err := openApp(configPath)
	var missing *config.MissingError
	if errors.As(err, &missing) {
		fmt.Fprintf(out, "Configuration error: %v\n", missing)
		fmt.Fprintln(out, "Starting in degraded mode.")
		if port == 0 {
			port = 8080
		}
		return server.Start(ctx, server.StartOpts{Handler: server.Degraded(missing), Port: port, Out: out})
	}
	if err != nil {
		return err
	}
	defer a.Close()

	disk, err := a.disk()
	if err != nil {
		return err
	}
	dispatcher := a.notifier()
	if n := dispatcher.Len(); n > 0 {
		fmt.Fprintf(out, "Notifications enabled for %d chat platform(s)\n", n)
	}

	srv, err := server.New(server.Deps{
		Config:  a.cfg,
		Store:   a.store,
		Cache:   projection.New(a.store),
		Uploads: a.orchestrator(disk),
		Blobs:   disk,
		Notify:  dispatcher,
		Out:     out,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	go func() {
		if err := audit.Schedule(ctx, a.db, a.cfg.Audit.Schedule, nil); err != nil {
			log.Printf("audit: %v", err)
		}
	}()

	if port == 0 {
		port = a.cfg.Server.Port
	}
	return server.Start(ctx, server.StartOpts{Handler: srv.Handler(), Port: port, Out: out})
}
