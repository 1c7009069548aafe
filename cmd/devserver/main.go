package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tjfontaine/streamchat/internal/pkg/config"
	"github.com/tjfontaine/streamchat/internal/server"
	"github.com/tjfontaine/streamchat/internal/telemetry"
)

var (
	configPath string
	port       int
	failOn     string
)

var rootCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run the reference chat stream server",
	Long: `devserver answers chat requests with a streamed echo of the message.

Every stream opens with a session event, continues with one message event per
word and ends with done. Messages containing the fail-on word end with an
error event instead. GET ?message= and POST {"message": ...} are both served.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the configuration file")
	rootCmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (overrides devserver.port)")
	rootCmd.Flags().StringVar(&failOn, "fail-on", "", "Word that makes a reply end with an error event")
}

func run(cmd *cobra.Command, args []string) error {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port != 0 {
		cfg.DevServer.Port = port
	}
	if failOn != "" {
		cfg.DevServer.FailOn = failOn
	}

	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if strings.EqualFold(cfg.Log.Level, "debug") {
		opts.Level = slog.LevelDebug
	}
	var logger *slog.Logger
	if strings.EqualFold(cfg.Log.Format, "json") {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, opts))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	slog.SetDefault(logger)

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer("streamchat-devserver", os.Stderr, logger)
		if err != nil {
			return fmt.Errorf("initialize tracer: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()
	}

	delay, err := cfg.DevServer.DelayDuration()
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Port:   cfg.DevServer.Port,
		Path:   cfg.Server.Path,
		Token:  cfg.DevServer.Token,
		Delay:  delay,
		FailOn: cfg.DevServer.FailOn,
	}, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("reference server ready",
		slog.Int("port", cfg.DevServer.Port),
		slog.String("path", cfg.Server.Path),
		slog.Bool("auth", cfg.DevServer.Token != ""))
	return srv.Start(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
