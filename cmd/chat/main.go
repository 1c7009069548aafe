package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tjfontaine/streamchat/internal/pkg/config"
	"github.com/tjfontaine/streamchat/internal/telemetry"
)

var (
	// Global flags
	configPath   string
	transportFlg string
	baseURL      string
	token        string
	conversation string
	logLevel     string

	cfg    *config.Config
	logger *slog.Logger
)

// rootCmd starts an interactive chat session.
var rootCmd = &cobra.Command{
	Use:   "chat",
	Short: "Stream chat replies from an agent backend",
	Long: `chat sends messages to a streaming chat backend and prints the reply as it
arrives. The session issued by the server is remembered so later messages
continue the same conversation.

Interactive commands:
  /stop     abort the reply in progress (also Ctrl+C)
  /session  show the current session
  /new      forget the session and start a new conversation
  /history  print the transcript
  /stats    show token counts for the transcript
  /quit     exit`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load .env file if it exists
		_ = godotenv.Load()

		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return err
		}
		if transportFlg != "" {
			loaded.Transport.Kind = transportFlg
		}
		if baseURL != "" {
			loaded.Server.BaseURL = baseURL
		}
		if token != "" {
			loaded.Auth.Token = token
		}
		if logLevel != "" {
			loaded.Log.Level = logLevel
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded
		logger = newLogger(cfg.Log, os.Stderr)
		slog.SetDefault(logger)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			return a.interactive(cmd.Context(), os.Stdin, cmd.OutOrStdout())
		})
	},
}

// sendCmd sends one message and prints the reply.
var sendCmd = &cobra.Command{
	Use:   "send [message]",
	Short: "Send a single message and print the streamed reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			return a.sendOnce(cmd.Context(), joinArgs(args), cmd.OutOrStdout())
		})
	},
}

// historyCmd prints archived messages of a conversation.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the archived transcript of a conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withApp(cmd.Context(), func(a *app) error {
			return a.printArchive(cmd.Context(), limit, cmd.OutOrStdout())
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().StringVarP(&transportFlg, "transport", "t", "", "Transport kind: post or eventsource")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Backend base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Bearer token")
	rootCmd.PersistentFlags().StringVar(&conversation, "conversation", "", "Archive key for the transcript")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	historyCmd.Flags().Int("limit", 50, "Maximum number of messages to print (0 for all)")

	rootCmd.AddCommand(sendCmd, historyCmd)
}

// withApp wires the configured components, runs fn and releases them.
func withApp(ctx context.Context, fn func(*app) error) error {
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer("streamchat", os.Stderr, logger)
		if err != nil {
			return fmt.Errorf("initialize tracer: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()
	}

	a, err := newApp(ctx, cfg, conversation, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
