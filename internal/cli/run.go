package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ponytojas/airlog/config"
	"github.com/ponytojas/airlog/internal/database"
	"github.com/ponytojas/airlog/internal/logging"
	"github.com/ponytojas/airlog/internal/metrics"
	"github.com/ponytojas/airlog/internal/pipeline"
	"github.com/ponytojas/airlog/internal/serial"
	"github.com/ponytojas/airlog/internal/version"
)

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Read the sensor and store readings until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), opts)
		},
	}
}

// runDaemon returns an error only for startup failures; once the pipeline is
// running it stops on SIGINT/SIGTERM or when ctx is cancelled.
func runDaemon(ctx context.Context, opts *options) error {
	cfg, found, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, opts.verbose)
	if err != nil {
		return err
	}

	log.WithField("version", version.GetVersion()).Info("Starting airlog...")
	if !found {
		log.Info("No config file found, using environment variables and defaults")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithField("driver", cfg.Store.Driver).Info("Initializing reading store...")
	store, err := database.Open(ctx, cfg, time.Now, log)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer store.Close()

	log.WithFields(logrus.Fields{
		"device":       cfg.Serial.Device,
		"baud_rate":    cfg.Serial.BaudRate,
		"read_timeout": cfg.Serial.ReadTimeout,
	}).Info("Opening sensor...")
	port, err := serial.Open(serial.Config{
		Device:      cfg.Serial.Device,
		BaudRate:    cfg.Serial.BaudRate,
		ReadTimeout: cfg.Serial.ReadTimeout,
		Delimiter:   cfg.Serial.Delimiter,
	})
	if err != nil {
		return fmt.Errorf("failed to open sensor: %w", err)
	}
	defer port.Close()

	// Unblock a pending read as soon as we are asked to stop.
	go func() {
		<-ctx.Done()
		port.Close()
	}()

	m := metrics.New()
	if cfg.Metrics.ListenAddress != "" {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.ListenAddress, log); err != nil {
				log.WithError(err).Error("Metrics server stopped")
			}
		}()
	}

	p := pipeline.New(port, store,
		pipeline.WithInterval(cfg.Pipeline.Interval),
		pipeline.WithLogger(log),
		pipeline.WithMetrics(m),
	)

	err = p.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info("Shutting down...")
		return nil
	}
	log.WithError(err).Error("Reading pipeline stopped")
	return fmt.Errorf("pipeline stopped: %w", err)
}
