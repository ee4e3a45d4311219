package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okulev/facs/pkg/api"
	"github.com/okulev/facs/pkg/config"
	"github.com/okulev/facs/pkg/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the reports API",
	Long:  `Expose the accumulated benchmark reports over HTTP.`,
	RunE:  serveAPI,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serveAPI(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cfg.Results.Database.Driver == "" {
		return fmt.Errorf("results.database.driver is required to serve reports")
	}

	st, err := store.New(log, storeConfig(cfg))
	if err != nil {
		return fmt.Errorf("opening report store: %w", err)
	}
	defer func() { _ = st.Close() }()

	srv := api.NewServer(log, &cfg.API, st)

	if err := srv.Start(cmd.Context()); err != nil {
		return fmt.Errorf("starting api server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.WithField("signal", sig).Info("Received shutdown signal")

	return srv.Stop()
}
