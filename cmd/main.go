package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/satriahrh/arunika/speakerid/adapters/speaker"
	"github.com/satriahrh/arunika/speakerid/domain/repositories"
	"github.com/satriahrh/arunika/speakerid/internal/config"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "speakerid",
		Short:         "Streaming speaker identification service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.Bool("debug", false, "Enable development logging")
	flags.Bool("mock", false, "Use the in-process mock identification service")
	flags.StringSlice("mock-profiles", nil, "Enrolled profile ids of the mock service")
	flags.String("speaker-endpoint", "", "Speaker recognition API base URL")
	flags.String("speaker-api-key", "", "Speaker recognition API key")
	flags.Duration("poll-interval", 0, "Delay before each operation status poll")
	flags.Int("poll-retries", 0, "Number of status polls before giving up")
	flags.Duration("dispatch-interval", 0, "Pause between dispatch loop iterations")

	rootCmd.AddCommand(serveCommand(), identifyCommand(), streamCommand())
	return rootCmd
}

// loadConfig resolves settings from .env, the environment and the command flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	config.LoadDotEnv()

	v := config.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	return config.Load(v)
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newSpeakerService builds the remote identification capability and its profile lister
func newSpeakerService(cfg *config.Config, logger *zap.Logger) (repositories.SpeakerIdentifier, repositories.ProfileLister, error) {
	if cfg.Speaker.Mock {
		logger.Info("Using mock speaker identification", zap.Strings("profiles", cfg.Speaker.MockProfiles))
		mock := speaker.NewMockIdentifier(logger, cfg.Speaker.MockProfiles...)
		return mock, mock, nil
	}

	client, err := speaker.NewHTTPIdentifier(speaker.Config{
		APIKey:   cfg.Speaker.APIKey,
		Endpoint: cfg.Speaker.Endpoint,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create speaker identification client: %w", err)
	}
	return client, client, nil
}
