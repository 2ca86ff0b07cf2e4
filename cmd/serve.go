package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/herdwatch/herdwatch/internal/api"
	"github.com/herdwatch/herdwatch/internal/api/auth"
	"github.com/herdwatch/herdwatch/internal/database"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the herdwatch server",
	Long:  `Start the herdwatch server to receive sensor uploads and serve the dashboard.`,
	Example: `herdwatch serve --config config.yml
herdwatch serve -c /path/to/config.yml --log-level debug
`,
	Run: startServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func startServer(cmd *cobra.Command, _ []string) {
	cfg := loadConfig()
	if err := cfg.ValidateServer(); err != nil {
		log.Fatalf("invalid server config: %v", err)
	}

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	defer db.Close() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.HasBootstrapAdmin() {
		if _, err := auth.EnsureAdmin(ctx, db, cfg.Bootstrap.AdminUsername, cfg.Bootstrap.AdminPassword); err != nil {
			log.Fatalf("failed to create initial admin: %v", err)
		}
	} else if n, err := db.CountAccounts(ctx); err == nil && n == 0 {
		log.Warn("no accounts exist yet, create one with 'herdwatch user add'")
	}

	server, err := api.New(cfg, db)
	if err != nil {
		log.Fatalf("failed to create API server: %v", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run()
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	log.Info("herdwatch started successfully")
	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", "error", err)
	}
}
