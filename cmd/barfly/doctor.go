package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"barfly/internal/backend"
	"barfly/internal/config"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your barfly installation",
		Long: `Verifies that barfly's configuration, message log, database, and
completion backend are reachable. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("barfly doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nCreate %s before running barfly.\n", cfgPath)
				return fmt.Errorf("1 check(s) failed")
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				fmt.Printf("\nResults: %d passed, 1 failed\n", passed)
				return fmt.Errorf("1 check(s) failed")
			}
			printPass("Config validation", "valid")
			passed++

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			// 3. Message log reachable
			if err := checkLog(ctx, cfg.Log); err != nil {
				printFail("Message log", err.Error())
				failed++
			} else {
				printPass("Message log", fmt.Sprintf("%s (%d stream(s))", cfg.Log.Addr, len(cfg.Log.Streams)))
				passed++
			}

			// 4. Database writable
			if err := checkDatabase(cfg.Store.DBPath); err != nil {
				printFail("Database", err.Error())
				failed++
			} else {
				printPass("Database", cfg.Store.DBPath)
				passed++
			}

			// 5. Completion backend reachable. A dead backend is a warning, not
			// a failure: the rule-based fallback keeps replies flowing.
			b := backend.NewOpenAI(backend.Config{
				APIKey:  cfg.Backend.APIKey,
				APIBase: cfg.Backend.APIBase,
				Model:   cfg.Backend.Model,
				Timeout: cfg.Backend.Timeout(),
				Logger:  logger,
			})
			if err := b.Healthy(ctx); err != nil {
				printWarn("Backend", fmt.Sprintf("unreachable (fallback replies only): %v", err))
				warned++
			} else {
				printPass("Backend", cfg.Backend.APIBase)
				passed++
			}

			// 6. Knowledge providers configured
			for name, p := range map[string]config.ProviderConfig{
				"oddsfeed":  cfg.Knowledge.OddsFeed,
				"venuebuzz": cfg.Knowledge.VenueBuzz,
			} {
				if !p.Enabled {
					continue
				}
				if p.BaseURL == "" {
					printWarn("Provider: "+name, "enabled but no baseUrl configured")
					warned++
				} else {
					printPass("Provider: "+name, p.BaseURL)
					passed++
				}
			}

			// 7. Gateway credentials present
			switch cfg.Gateway.Kind {
			case "telegram":
				printPass("Gateway", "telegram token configured")
				passed++
			case "discord":
				printPass("Gateway", "discord token configured")
				passed++
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running barfly.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nbarfly should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! barfly is ready to run.\n")
			}
			return nil
		},
	}
}

func checkLog(ctx context.Context, cfg config.LogConfig) error {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cannot reach %s: %w", cfg.Addr, err)
	}
	return nil
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}

	// Try a write.
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")

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
