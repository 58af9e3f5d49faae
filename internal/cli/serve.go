package cli

import (
	"cmp"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/soyeahso/colloquy/internal/config"
	"github.com/soyeahso/colloquy/internal/logging"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var override config.GatewayConfig

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"gateway"},
		Short:   "Run the discussion gateway until interrupted",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadServeConfig(override)
			if err != nil {
				return err
			}

			serveLog, logFile, err := logging.Open(logging.Options{
				Level: cmp.Or(logLevel, cfg.Logging.Level),
				Style: cfg.Logging.ConsoleStyle,
				File:  cfg.Logging.File,
			})
			if err != nil {
				return err
			}
			defer logFile.Close()

			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating data directories: %w", err)
			}
			// config.get/config.set work on the file as written, not the
			// defaulted struct.
			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				serveLog.Warn().Err(err).Msg("config file unreadable, config.get will see an empty tree")
				raw = map[string]any{}
			}

			a, err := buildApp(cfg, paths, serveLog)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, ok := a.selector.Active(); !ok {
				serveLog.Warn().Msg("no personality selected, new_discussion will be refused")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.server(raw).Start(ctx)
		},
	}

	cmd.Flags().IntVar(&override.Port, "port", 0, "listen on this port instead of gateway.port")
	cmd.Flags().StringVar(&override.Bind, "bind", "", "bind mode: auto, lan, loopback or custom")
	return cmd
}

// loadServeConfig loads and validates the config with command-line
// overrides applied. Every issue is logged before the error is returned.
func loadServeConfig(override config.GatewayConfig) (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	cfg.Gateway.Port = cmp.Or(override.Port, cfg.Gateway.Port)
	cfg.Gateway.Bind = cmp.Or(override.Bind, cfg.Gateway.Bind)

	issues := config.Validate(&cfg)
	for _, issue := range issues {
		log.Error().Str("path", issue.Path).Msg(issue.Message)
	}
	if len(issues) > 0 {
		return cfg, fmt.Errorf("config has %d problem(s)", len(issues))
	}
	return cfg, nil
}
