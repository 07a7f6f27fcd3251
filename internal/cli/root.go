package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"modelbridge/internal/config"
)

// env holds what PersistentPreRunE resolved for the running command.
type env struct {
	cfg *Config
	fc  config.Config
	log zerolog.Logger
}

// open starts an engine session for one command.
func (e *env) open() *session { return fnOpenSession(e.fc, e.log) }

// Run executes the CLI with args. It returns an error instead of exiting,
// enabling reuse from tests.
func Run(ctx context.Context, args []string, cfg *Config) error {
	root := buildRootCmdWith(cfg)
	root.SetArgs(args)
	root.SetOut(cfg.stdout())
	root.SetErr(cfg.stderr())
	return root.ExecuteContext(ctx)
}

// buildRootCmdWith constructs the command tree bound to cfg.
func buildRootCmdWith(cfg *Config) *cobra.Command {
	e := &env{cfg: cfg, log: zerolog.Nop()}
	root := &cobra.Command{
		Use:           "modelbridge",
		Short:         "Bridge between a model-serving engine and its UI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags -> Config
	root.PersistentFlags().StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "Config file (.yaml, .yml, .json, .toml)")
	root.PersistentFlags().StringVar(&cfg.EngineURL, "engine-url", cfg.EngineURL, "Engine HTTP base URL (defaults MODELBRIDGE_ENGINE_URL or "+config.DefaultEngineURL+")")
	root.PersistentFlags().StringVar(&cfg.SocketURL, "socket-url", cfg.SocketURL, "Engine push socket base URL (derived from --engine-url when empty)")
	root.PersistentFlags().StringVar(&cfg.LogLvl, "log-level", cfg.LogLvl, "Log level: debug|info|warn|error|off, add ',json' for JSON output")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		fc, err := cfg.resolve(os.LookupEnv)
		if err != nil {
			return err
		}
		e.fc = fc
		e.log = newLogger(cfg.stderr(), fc.LogLevel)
		return nil
	}

	root.AddCommand(
		newServeCmd(e),
		newWatchCmd(e),
		newHealthCmd(e),
		newModelsCmd(e),
	)
	return root
}

func newHealthCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "health",
		Short:   "Probe the engine's health endpoint with retries",
		Example: "  modelbridge health --engine-url http://127.0.0.1:39281",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := e.open()
			defer s.close()
			if err := s.healthz(cmd.Context()); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "engine healthy")
			return err
		},
	}
}
