package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/m3rciful/kitwatch/core/app"
	"github.com/m3rciful/kitwatch/core/bootstrap"
	"github.com/m3rciful/kitwatch/core/buildinfo"
	coreconfig "github.com/m3rciful/kitwatch/core/config"
	"github.com/m3rciful/kitwatch/core/logger"
	coretelegram "github.com/m3rciful/kitwatch/core/telegram"
)

// ConfigEnvVar names the environment variable holding the config file path.
const ConfigEnvVar = "CONFIG_PATH"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand creates the kitwatch command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "kitwatch",
		Short:         "Telegram bot for device subscription lookups and renewal reminders",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", os.Getenv(ConfigEnvVar),
		"YAML config file (env "+ConfigEnvVar+"); environment variables override it")

	serve := newServeCommand(opts)
	// A bare "kitwatch" serves.
	cmd.Args = cobra.NoArgs
	cmd.RunE = serve.RunE

	cmd.AddCommand(serve)
	cmd.AddCommand(newScanCommand(opts))
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func newServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot, the reminder scheduler and the HTTP endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return Run(Options{
				ConfigPath: opts.ConfigPath,
				Bootstrap:  bootstrapApp,
			})
		},
	}
}

func bootstrapApp(ctx context.Context, cfg *coreconfig.Config) (TelegramApp, error) {
	infra, err := bootstrap.Run(ctx, bootstrap.Options{Config: cfg})
	if err != nil {
		return nil, err
	}
	bot, err := coretelegram.NewBot(cfg)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}
	a, err := app.New(cfg, infra, bot)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}
	return a, nil
}

func newScanCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run one reminder pass and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := coreconfig.Load(opts.ConfigPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			defer func() { _ = logger.Shutdown() }()

			ctx := cmd.Context()
			infra, err := bootstrap.Run(ctx, bootstrap.Options{Config: cfg})
			if err != nil {
				return err
			}
			defer infra.Close()

			bot, err := coretelegram.NewBot(cfg)
			if err != nil {
				return err
			}
			dispatcher := app.NewDispatcher(cfg)
			defer dispatcher.Close()

			report, err := app.RunScan(ctx, cfg, infra, coretelegram.NewChannel(bot, dispatcher))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "records=%d due=%d sent=%d failed=%d skipped=%d took=%s\n",
				report.Records, report.Due, report.Sent, report.Failed, report.Skipped, report.Took)
			return err
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "kitwatch "+buildinfo.String())
			return err
		},
	}
}
