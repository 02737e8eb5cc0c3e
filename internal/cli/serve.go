package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/burnwatch/burnwatch/internal/config"
	"github.com/burnwatch/burnwatch/internal/engine"
	"github.com/burnwatch/burnwatch/internal/pkg/logger"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	cmd.Flags().String("declarations", "", "path to the targets declarations file")
	cmd.Flags().Duration("tick-interval", 0, "periodic re-evaluation interval")
	_ = viper.BindPFlag("declarations", cmd.Flags().Lookup("declarations"))
	_ = viper.BindPFlag("tick_interval", cmd.Flags().Lookup("tick-interval"))

	return cmd
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Flags override the environment.
	if v := viper.GetString("log_level"); v != "" {
		cfg.Logging.Level = v
	}
	if v := viper.GetString("log_format"); v != "" {
		cfg.Logging.Format = v
	}
	if v := viper.GetString("declarations"); v != "" {
		cfg.Engine.DeclarationsPath = v
	}
	if v := viper.GetDuration("tick_interval"); v > 0 {
		cfg.Engine.TickInterval = v
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	eng, err := engine.New(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		return err
	}
	log.Info("Burnwatch started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Ops.ShutdownTimeout)
	defer shutdownCancel()
	return eng.Shutdown(shutdownCtx)
}
