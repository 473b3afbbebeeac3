package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrCodeEU/facefolio/pkg/api"
	"github.com/MrCodeEU/facefolio/pkg/logging"
	"github.com/MrCodeEU/facefolio/pkg/resolver"
)

const (
	shutdownTimeout = 30 * time.Second
	janitorInterval = time.Minute
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the FaceFolio HTTP API.
Photos are uploaded to /api/process-photo, labelled faces are confirmed
through /api/finalize-and-sort, and Prometheus metrics are served at /metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	logging.Infof("Gallery loaded: %d people, %d embeddings",
		len(a.gallery.Names()), a.gallery.Lookup().Len())

	janitor := resolver.NewJanitor(a.service, cfg.SessionTTL())
	go janitor.Run(ctx, janitorInterval)

	server := api.NewServer(a.service, serverConfig(cfg))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
		case <-ctx.Done():
			return
		}
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Errorf("Error during shutdown: %v", err)
		}
	}()

	fmt.Printf("Starting FaceFolio on http://%s\n", server.Addr())
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
