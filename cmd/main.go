package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/NgigiN/finboard/internal/api"
	"github.com/NgigiN/finboard/internal/config"
	"github.com/NgigiN/finboard/internal/discord"
	"github.com/NgigiN/finboard/internal/ledger"
	"github.com/NgigiN/finboard/internal/storage"
)

var (
	configPath string
	userFlag   string
)

var rootCmd = &cobra.Command{
	Use:           "finboard",
	Short:         "Personal finance ledger",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and, when configured, the Discord bot",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Check cached balances against the journal; exits non-zero on drift",
	Args:  cobra.NoArgs,
	RunE:  runReconcile,
}

var errDrift = errors.New("balances out of sync with history")

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a config file (yaml, json or toml)")
	reconcileCmd.Flags().StringVarP(&userFlag, "user", "u", "", "user to reconcile (defaults to ledger.default_user)")

	rootCmd.AddCommand(serveCmd, migrateCmd, reconcileCmd)
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("Error loading .env file: %v", err)
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "finboard: %v\n", err)
		os.Exit(1)
	}
}

func openLedger() (*config.Config, *storage.Database, *ledger.Service, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	db, err := storage.Open(storage.Options{
		Path:        cfg.Database.Path,
		LogMode:     cfg.Database.LogMode,
		MaxAttempts: cfg.Ledger.MaxAttempts,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize the database: %w", err)
	}
	svc := ledger.NewService(db, ledger.Options{
		DefaultAccount: cfg.Ledger.DefaultAccount,
		Location:       cfg.Location(),
	})
	return cfg, db, svc, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, db, svc, err := openLedger()
	if err != nil {
		return err
	}
	defer db.Close()

	srv := api.NewServer(svc, cfg.Ledger.DefaultUser)
	if cfg.HTTP.Metrics {
		srv.EnableMetrics()
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Printf("HTTP API listening on %s", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var bot *discord.Bot
	if cfg.BotEnabled() {
		bot, err = discord.NewBot(cfg.Discord, svc, ledger.UserContext{UserID: cfg.Ledger.DefaultUser}, cfg.Location())
		if err != nil {
			return fmt.Errorf("failed to initialize the discord bot: %w", err)
		}
		if err := bot.Start(); err != nil {
			return fmt.Errorf("failed to start bot: %w", err)
		}
		log.Println("Bot is running...")
	}

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	select {
	case <-sc:
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	if bot != nil {
		bot.Stop()
		log.Println("Bot stopped.")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	_, db, _, err := openLedger()
	if err != nil {
		return err
	}
	defer db.Close()
	fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg, db, svc, err := openLedger()
	if err != nil {
		return err
	}
	defer db.Close()

	user := userFlag
	if user == "" {
		user = cfg.Ledger.DefaultUser
	}
	accounts, funds, err := svc.ReconcileAll(cmd.Context(), ledger.UserContext{UserID: user})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	drift := 0
	report := func(kind string, recs []ledger.Reconciliation) {
		for _, r := range recs {
			status := "ok"
			if !r.Consistent {
				status = "DRIFT"
				drift++
			}
			fmt.Fprintf(out, "%-7s %-5s %-24s cached=%s computed=%s\n", kind, status, r.Name, r.Cached, r.Computed)
		}
	}
	report("account", accounts)
	report("fund", funds)

	if drift > 0 {
		return fmt.Errorf("%w: %d documents", errDrift, drift)
	}
	return nil
}
