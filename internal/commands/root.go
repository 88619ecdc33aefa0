// Package commands provides the sonar CLI.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/comigor/sonar-go/internal/auth"
	"github.com/comigor/sonar-go/internal/chat"
	"github.com/comigor/sonar-go/internal/config"
	"github.com/comigor/sonar-go/internal/history"
	"github.com/comigor/sonar-go/internal/llm"
	"github.com/comigor/sonar-go/internal/logger"
	"github.com/comigor/sonar-go/internal/models"
)

var (
	// Global flags
	configFlag   string
	modelFlag    string
	logLevelFlag string

	// Version info (set at build time)
	Version = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "sonar",
	Short: "Chat with OpenAI-compatible language models from the terminal",
	Long: `sonar sends prompts to an OpenAI-compatible chat completion API and
reveals the replies with a typewriter animation.

Examples:
  sonar chat                      Start the interactive chat
  sonar ask "What is Go?"         Send a single prompt
  sonar serve                     Expose a conversation over HTTP
  sonar history sessions          List saved sessions of the signed-in user`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if logLevelFlag != "" {
			logger.SetLevel(logLevelFlag)
		}
	},
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Path to config file (default ./config.yaml or $CONFIG_PATH)")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "Model to use for this run")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.Version = Version

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
}

// app is everything a command needs to run a conversation.
type app struct {
	cfg      *config.Config
	ctrl     *chat.Controller
	identity *auth.Identity
	store    *history.Store
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.L.Warn("history close error", "error", err)
		}
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevelFlag == "" {
		logger.SetLevel(cfg.Log.Level)
	}
	return cfg, nil
}

// setup wires configuration, the completion client, the identity provider and,
// for signed-in users with history enabled, the session recorder.
func setup(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateLLM(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &app{cfg: cfg}
	a.identity = auth.Resolve(ctx, auth.FromConfig(cfg.Identity))

	var opts []chat.Option
	if cfg.History.Enabled && a.identity != nil {
		store, account, err := openAccount(ctx, cfg, a.identity)
		if err != nil {
			logger.L.Warn("history unavailable; chat will not be saved", "error", err)
		} else {
			a.store = store
			opts = append(opts, chat.WithRecorder(history.NewSessionRecorder(store, account)))
		}
	}

	catalog := models.FromConfig(cfg.Models)
	a.ctrl = chat.New(llm.NewClient(cfg.LLM), catalog, cfg.LLM, opts...)
	if modelFlag != "" {
		if err := a.ctrl.SelectModel(modelFlag); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func openAccount(ctx context.Context, cfg *config.Config, id *auth.Identity) (*history.Store, history.Account, error) {
	store, err := history.Open(ctx, cfg.History.DBPath)
	if err != nil {
		return nil, history.Account{}, err
	}
	account, err := store.UpsertAccount(ctx, history.Account{
		ExternalUID: id.UID,
		Email:       id.Email,
		DisplayName: id.DisplayName,
		Provider:    cfg.Identity.Provider,
	})
	if err != nil {
		store.Close()
		return nil, history.Account{}, err
	}
	return store, account, nil
}
