package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"triagebot/internal/channel"
	"triagebot/internal/config"
	"triagebot/internal/store"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your triagebot installation",
		Long: `Verifies that the configuration, database, Discord token and metrics
port are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("triagebot doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'triagebot init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := loadConfig(cmd)
			if err != nil {
				printFail("Config validation", err.Error())
				fmt.Printf("\n%d passed, 1 failed\n", passed)
				return fmt.Errorf("config invalid")
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Channel overlaps
			if overlaps := cfg.Overlaps(); len(overlaps) > 0 {
				for _, o := range overlaps {
					printWarn("Channel overlap", o)
					warned++
				}
			} else {
				printPass("Channel overlap", "none")
				passed++
			}

			// 4. Database writable
			if cfg.Storage.Enabled {
				if schema, err := checkDatabase(cfg.Storage.DBPath); err != nil {
					printFail("Database", err.Error())
					failed++
				} else {
					printPass("Database", fmt.Sprintf("%s (schema v%d)", cfg.Storage.DBPath, schema))
					passed++
				}
			} else {
				printWarn("Database", "storage disabled, state is lost on restart")
				warned++
			}

			// 5. Discord token
			switch {
			case cfg.Discord.Token == "":
				printFail("Discord token", "not set (discord.token or "+config.EnvPrefix+"_DISCORD_TOKEN)")
				failed++
			case offline:
				printWarn("Discord token", "set, not verified (--offline)")
				warned++
			default:
				if name, err := checkDiscord(cfg.Discord.Token); err != nil {
					printFail("Discord token", err.Error())
					failed++
				} else {
					printPass("Discord token", "authenticated as "+name)
					passed++
				}
			}

			// 6. Metrics port
			if cfg.Metrics.Enabled {
				if err := checkListen(cfg.Metrics.Listen); err != nil {
					printWarn("Metrics listen", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Listen, err))
					warned++
				} else {
					printPass("Metrics listen", cfg.Metrics.Listen+" available")
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running triagebot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\ntriagebot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! triagebot is ready to run.\n")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "skip checks that contact Discord")
	return cmd
}

// checkDatabase opens the store, which applies pending migrations, and
// reports the resulting schema version.
func checkDatabase(dbPath string) (int, error) {
	st, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return 0, err
	}
	defer st.Close()
	return st.SchemaVersion()
}

func checkDiscord(token string) (string, error) {
	d, err := channel.NewDiscord(channel.DiscordConfig{Token: token, Logger: logger})
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	u, err := d.BotUser(ctx)
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

func checkListen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
