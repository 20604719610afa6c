package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"costtrack/pkg/metrics"
	"costtrack/pkg/persistence"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose Prometheus metrics and keep the analytics rollup fresh",
	Long: `serve runs until interrupted: it exposes the recorder's llm_* series at
/metrics for a Prometheus instance to scrape, and rebuilds the analytics
rollup every analytics.refresh_interval. Embed pkg/ledger in the same
process to have its recordings scraped from here.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

//nolint:gochecknoinits // cobra command registration
func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":9464", "metrics listen address")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, cleanup, err := openDatabase()
	if err != nil {
		return err
	}
	defer cleanup()

	server := metrics.NewExpositionServer(serveAddr)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	fmt.Printf("metrics exposed at http://%s/metrics\n", serveAddr)

	interval := cfg.Analytics.RefreshInterval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	fmt.Printf("analytics rollup refreshing every %s\n", interval)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			n, err := persistence.Ops().RefreshAnalytics()
			if err != nil {
				fmt.Fprintf(os.Stderr, "analytics refresh failed: %v\n", err)
				continue
			}
			fmt.Printf("analytics rollup rebuilt: %d rows\n", n)
		case err := <-serverErr:
			return err
		case <-stop:
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		}
	}
}
