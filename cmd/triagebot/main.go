package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"triagebot/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:           "triagebot",
		Short:         "triagebot: Discord request, modmail and ticket-link bot",
		Long:          "triagebot routes Discord messages to request intake, testing requests, internal progress notes, modmail and ticket commands.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, _ := cmd.Flags().GetString("log-level")
			format, _ := cmd.Flags().GetString("log-format")
			l, err := newLogger(level, format)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ~/.triagebot/config.yaml)")
	root.PersistentFlags().String("log-level", "", "logging level: debug|info|warn|error (overrides logging.level)")
	root.PersistentFlags().String("log-format", "", "logging format: text|json (overrides logging.format)")

	root.AddCommand(runCmd())
	root.AddCommand(initCmd())
	root.AddCommand(configCmd())
	root.AddCommand(classifyCmd())
	root.AddCommand(auditCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(versionCmd())
	return root
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the config file with the logging flags bound, so a flag
// beats the environment, which beats the file. The global logger is rebuilt
// from the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	// Unset flags must not shadow the file or the defaults with "".
	for key, name := range map[string]string{"logging.level": "log-level", "logging.format": "log-format"} {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			_ = v.BindPFlag(key, f)
		}
	}

	cfgPath := resolveConfigPath()
	cfg, err := config.LoadWithViper(v, cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w (run 'triagebot init' to create one)", cfgPath, err)
	}

	l, err := newLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	logger = l
	return cfg, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "triagebot v%s (%s/%s, %s)\n", version, runtime.GOOS, runtime.GOARCH, runtime.Version())
		},
	}
}
