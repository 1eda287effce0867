package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soyeahso/scoutbot/internal/config"
	"github.com/soyeahso/scoutbot/internal/logging"
)

func newRunCmd() *cobra.Command {
	var (
		port int
		bind string
		web  bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the configured channels and serve users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}
			if web {
				cfg.Gateway.Enabled = true
			}

			if issues := config.Validate(&cfg); len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}
			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("creating data directories: %w", err)
			}

			runLog, closer, err := runLogger(cfg)
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, paths, runLog)
			if err != nil {
				return err
			}
			defer a.close()
			return a.run(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")
	cmd.Flags().BoolVar(&web, "web", false, "enable the web chat gateway")

	return cmd
}

// loadConfig reads the config file at paths.Config.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, fmt.Errorf("loading %s: %w", paths.Config, err)
	}
	return cfg, nil
}

// runLogger builds the long-running logger from config. --log-level wins
// over logging.level.
func runLogger(cfg config.Config) (*logging.Logger, io.Closer, error) {
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	l, closer, err := logging.NewWithOptions(logging.Options{
		Level:        level,
		ConsoleStyle: cfg.Logging.ConsoleStyle,
		File:         cfg.Logging.File,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return l, closer, nil
}
