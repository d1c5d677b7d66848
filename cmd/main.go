package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dnacommunity/backend/internal/account"
	"github.com/dnacommunity/backend/internal/admin"
	"github.com/dnacommunity/backend/internal/api"
	"github.com/dnacommunity/backend/internal/certificate"
	"github.com/dnacommunity/backend/internal/config"
	"github.com/dnacommunity/backend/internal/daemon"
	"github.com/dnacommunity/backend/internal/docstore"
	"github.com/dnacommunity/backend/internal/docstore/memory"
	"github.com/dnacommunity/backend/internal/docstore/postgres"
	"github.com/dnacommunity/backend/internal/logger"
	"github.com/dnacommunity/backend/internal/monitoring"
	"github.com/dnacommunity/backend/internal/notifications"
	"github.com/dnacommunity/backend/internal/qa"
	"github.com/dnacommunity/backend/internal/reward"
	"github.com/dnacommunity/backend/internal/seed"
	"github.com/dnacommunity/backend/internal/social"
	"github.com/dnacommunity/backend/internal/storage"
	"github.com/dnacommunity/backend/internal/telemetry"
	"github.com/dnacommunity/backend/internal/user"
	"github.com/dnacommunity/backend/internal/validator"
	"github.com/dnacommunity/backend/internal/workshop"

	"github.com/gofiber/fiber/v2"
	fiberpostgres "github.com/gofiber/storage/postgres/v3"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
	appName = "dnacommunity"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "DNA Community API server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")

	cmd.AddCommand(serveCmd(&configPath))
	cmd.AddCommand(migrateCmd(&configPath))
	cmd.AddCommand(seedCmd(&configPath))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})

	return cmd
}

func serveCmd(configPath *string) *cobra.Command {
	var migrateFirst bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if migrateFirst {
				cfg.Store.AutoMigrate = true
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().BoolVar(&migrateFirst, "migrate", false, "Apply pending migrations before starting")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Providers must exist before the logger attaches its OTel handler.
	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	log := logger.New(cfg, os.Stdout)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.Error("Failed to shut down telemetry", "error", err)
		}
	}()

	store, limiterStorage, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("Redis unreachable, rate limiting of auth attempts disabled", "addr", cfg.Redis.Addr, "error", err)
			redisClient = nil
		}
	}

	files, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to set up certificate storage: %w", err)
	}

	var renderer certificate.Renderer = certificate.NewTemplRenderer(files)
	if cfg.Storage.Placeholder {
		renderer = certificate.NewPlaceholderRenderer()
	}

	metrics := monitoring.NewMetrics()

	tokens := account.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	accounts := account.NewManager(log, store, tokens, account.NewRateLimiter(redisClient), cfg.Auth.BcryptCost)
	users := user.NewManager(log, store)
	follows := social.NewManager(log, store)
	notifier := notifications.NewManager(log, store, metrics)
	questions := qa.NewManager(log, store, &notifier)
	certs := certificate.NewManager(log, store, renderer, metrics)
	workshops := workshop.NewManager(log, store, &notifier, &certs, metrics, workshop.Policy{
		CutoffWindow:     cfg.Enrollment.CutoffWindow,
		PromoteWaitlist:  cfg.Enrollment.PromoteWaitlist,
		EnrollXP:         cfg.Enrollment.EnrollXP,
		CompleteXP:       cfg.Enrollment.CompleteXP,
		DayReminderLead:  cfg.Reminders.DayLead,
		HourReminderLead: cfg.Reminders.HourLead,
	})
	rewards := reward.NewManager(log, store, &notifier, metrics)
	admins := admin.NewManager(log, store)

	deps := api.Dependencies{
		Logger:         log,
		Store:          store,
		Redis:          redisClient,
		Metrics:        metrics,
		Validator:      validator.New(),
		LimiterStorage: limiterStorage,
		Accounts:       &accounts,
		Users:          &users,
		Social:         &follows,
		QA:             &questions,
		Notifications:  &notifier,
		Workshops:      &workshops,
		Rewards:        &rewards,
		Certificates:   &certs,
		Admin:          &admins,
	}
	if local, ok := files.(*storage.LocalStorage); ok && !cfg.Storage.Placeholder {
		deps.FilesDir = local.BasePath()
	}
	app := api.New(cfg, deps)

	manager := daemon.NewDaemonManager(log)
	if cfg.Reminders.Enabled {
		task, err := daemon.ReminderTask(&workshops, cfg.Reminders.Schedule, log)
		if err != nil {
			return err
		}
		manager.Add("workshop-reminders", task)
	}
	manager.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		addr := cfg.Server.Host + ":" + cfg.Server.Port
		log.Info("Starting HTTP server", "addr", addr, "store", cfg.Store.Driver)
		errCh <- app.Listen(addr)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server stopped: %w", err)
		}
	}

	log.Info("Shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error("Error shutting down HTTP server", "error", err)
	}
	manager.Wait()
	log.Info("Shutdown complete")
	return nil
}

// openStore returns the document store for cfg.Store.Driver and, for
// postgres, a shared storage for the request limiter.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (docstore.Store, fiber.Storage, error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		log.Warn("Using the in-memory document store, data is lost on restart")
		return memory.New(), nil, nil
	}

	dsn := cfg.DatabaseURL()
	if cfg.Store.AutoMigrate {
		if err := runMigrations(log, dsn, func(m *postgres.Migrator) error { return m.Up(0) }); err != nil {
			return nil, nil, err
		}
	}

	store, err := postgres.Connect(ctx, log, dsn, cfg.Database.MaxOpenConns)
	if err != nil {
		return nil, nil, err
	}

	limiterStorage := fiberpostgres.New(fiberpostgres.Config{
		ConnectionURI: dsn,
		Table:         "rate_limits",
		Reset:         false,
	})
	return store, limiterStorage, nil
}

func runMigrations(log *slog.Logger, dsn string, fn func(m *postgres.Migrator) error) error {
	m, err := postgres.NewMigrator(log, dsn)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Error("Failed to close migrator", "error", err)
		}
	}()
	return fn(m)
}

func migrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres document schema",
	}

	withMigrator := func(fn func(m *postgres.Migrator, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log := logger.New(cfg, os.Stdout)
			return runMigrations(log, cfg.DatabaseURL(), func(m *postgres.Migrator) error {
				return fn(m, args)
			})
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up [steps]",
		Short: "Apply all pending migrations, or the given number of steps",
		Args:  cobra.MaximumNArgs(1),
		RunE: withMigrator(func(m *postgres.Migrator, args []string) error {
			n, err := optionalInt(args)
			if err != nil {
				return err
			}
			return m.Up(n)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back the given number of migrations, one by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: withMigrator(func(m *postgres.Migrator, args []string) error {
			n, err := optionalInt(args)
			if err != nil {
				return err
			}
			return m.Down(n)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the current migration version",
		RunE: withMigrator(func(m *postgres.Migrator, _ []string) error {
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			fmt.Printf("version %d (dirty: %t)\n", version, dirty)
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the migration version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: withMigrator(func(m *postgres.Migrator, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			return m.Force(version)
		}),
	})

	return cmd
}

func seedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create demo accounts and a starter reward catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Store.Driver == config.StoreDriverMemory {
				return errors.New("seeding the in-memory store has no lasting effect, set STORE_DRIVER=postgres")
			}
			log := logger.New(cfg, os.Stdout)

			store, _, err := openStore(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer store.Close()

			tokens := account.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
			accounts := account.NewManager(log, store, tokens, nil, cfg.Auth.BcryptCost)
			users := user.NewManager(log, store)
			admins := admin.NewManager(log, store)
			notifier := notifications.NewManager(log, store, nil)
			rewards := reward.NewManager(log, store, &notifier, nil)

			seeder := seed.NewSeeder(log, &accounts, &users, &admins, &rewards)
			result, err := seeder.Run(cmd.Context(), seed.DefaultAccounts, seed.DefaultRewards)
			if err != nil {
				return err
			}

			fmt.Printf("Created %d users (%d already existed) and %d rewards\n", result.UsersCreated, result.UsersSkipped, result.RewardsCreated)
			fmt.Printf("All demo accounts use the password %q\n", seed.DefaultPassword)
			return nil
		},
	}
}

func optionalInt(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid step count %q: %w", args[0], err)
	}
	if n < 0 {
		return 0, errors.New("step count cannot be negative")
	}
	return n, nil
}
