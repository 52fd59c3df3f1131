package main

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

	"missiontracker/internal/api"
	"missiontracker/internal/notify"
)

var (
	flagAPIAddr string
	flagStart   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the tracking daemon and its control API",
	RunE:  runDaemon,
}

func init() {
	runCmd.Flags().StringVar(&flagAPIAddr, "api", envString("TRACKER_API_ADDR", ":8440"), "Control API listen address. Env: TRACKER_API_ADDR")
	runCmd.Flags().BoolVar(&flagStart, "start", envBool("TRACKER_START", false), "Start tracking immediately instead of waiting for the API. Env: TRACKER_START")
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	logger := newLogger()
	ctx := cmd.Context()

	eng, st, err := buildEngine(ctx, logger, notify.NewLog(logger))
	if err != nil {
		return err
	}
	defer st.Close()

	// Resume tracking if it was active before the restart.
	if flagStart || eng.Session().Tracking() {
		eng.Start()
	}

	srv := &http.Server{
		Addr:    flagAPIAddr,
		Handler: api.NewServer(eng, logger).Router(),
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("control api listening", "addr", flagAPIAddr)
		errCh <- srv.ListenAndServe()
	}()

	sigc := make(chan os.Signal, 2)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigc:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			eng.Stop()
			return fmt.Errorf("api server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	eng.Stop()
	return nil
}
