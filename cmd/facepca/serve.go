package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrCodeEU/facepca/pkg/logging"
	"github.com/MrCodeEU/facepca/pkg/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve recognition and annotation over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}

	p, err := newPipeline(true)
	if err != nil {
		return err
	}

	// Evaluate up front; requests then hit the cache.
	if _, err := p.cache.Summary(p.corpus); err != nil {
		logging.WithError(err).Warn("Initial evaluation failed")
	}

	srv := server.New(cfg, p.annotator, p.cache)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
