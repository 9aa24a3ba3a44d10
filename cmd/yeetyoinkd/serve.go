package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sunsided/yeet-yoink/internal/config"
	"github.com/sunsided/yeet-yoink/internal/errors"
	"github.com/sunsided/yeet-yoink/internal/server"
)

var serveDrainTimeout time.Duration

var cmdServe = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay HTTP server",
	RunE:  runServe,
}

func init() {
	cmdServe.Flags().DurationVar(&serveDrainTimeout, "drain-timeout", 30*time.Second,
		"how long to wait for in-flight uploads and distribution to finish during shutdown")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(globalOpts.configPath)
	if err != nil {
		return errors.Wrap(err, "loading configuration")
	}

	srv, err := server.New(cfg)
	if err != nil {
		return errors.Wrap(err, "starting server")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrap(err, "serving")
		}
		return nil
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), serveDrainTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx, serveDrainTimeout); err != nil {
		return errors.Wrap(err, "shutting down")
	}
	return nil
}
