package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medclaims/medclaims/internal/config"
	"github.com/medclaims/medclaims/internal/domain/claim"
	"github.com/medclaims/medclaims/internal/domain/eligibility"
	"github.com/medclaims/medclaims/internal/domain/pipeline"
	"github.com/medclaims/medclaims/internal/domain/plan"
	"github.com/medclaims/medclaims/internal/domain/user"
	"github.com/medclaims/medclaims/internal/platform/auth"
	"github.com/medclaims/medclaims/internal/platform/cache"
	"github.com/medclaims/medclaims/internal/platform/db"
	"github.com/medclaims/medclaims/internal/platform/metrics"
	"github.com/medclaims/medclaims/internal/platform/middleware"
	"github.com/medclaims/medclaims/internal/platform/x12"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "claims-server",
		Short: "Insurance claims API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the claims API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			if err := migrator.EnsureMigrationsTable(ctx); err != nil {
				return err
			}
			migrations, err := migrator.LoadMigrations()
			if err != nil {
				return err
			}
			applied, err := migrator.AppliedVersions(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("%-10s %-40s %s\n", "VERSION", "NAME", "STATUS")
			for _, m := range migrations {
				status := "pending"
				if applied[m.Version] {
					status = "applied"
				}
				fmt.Printf("%-10d %-40s %s\n", m.Version, m.Name, status)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	metrics.Init()

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(metrics.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Health and metrics stay outside auth.
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// API group: auth, then per-user rate limiting.
	apiV1 := e.Group("/api/v1")
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// -- Wire domain services --

	cacheStore := cache.NewMemoryStore()
	cacheCtx, cacheCancel := context.WithCancel(ctx)
	defer cacheCancel()
	cacheStore.StartCleanup(cacheCtx, time.Minute)

	planRepo := plan.NewPlanRepoPG(pool)
	planSvc := plan.NewService(planRepo, cacheStore, logger)
	plan.NewHandler(planSvc).RegisterRoutes(apiV1)

	inTx := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.RunInTx(ctx, pool, fn)
	}
	claimRepo := claim.NewClaimRepoPG(pool)
	claimSvc := claim.NewService(claimRepo, planRepo, inTx, logger)
	claim.NewHandler(claimSvc).RegisterRoutes(apiV1)

	eligSvc := eligibility.NewService(planRepo, cacheStore, claimSvc, cfg.EligibilityCacheTTL, logger)
	eligibility.NewHandler(eligSvc).RegisterRoutes(apiV1)

	userRepo := user.NewUserRepoPG(pool)
	delims := x12.Delimiters{
		Element: cfg.EDIElementSeparator[0],
		Segment: cfg.EDISegmentTerminator[0],
	}
	partners := pipeline.TradingPartners{
		Submitter:       x12.Party{Name: cfg.EDISenderName, ID: cfg.EDISenderID},
		Receiver:        x12.Party{Name: cfg.EDIReceiverName, ID: cfg.EDIReceiverID},
		BillingProvider: x12.Party{Name: cfg.BillingProviderName, ID: cfg.BillingProviderNPI},
	}
	// Control numbers restart from a time-derived seed so interchanges from a
	// restarted server do not repeat recent numbers.
	seed := uint32(time.Now().Unix() % 500_000_000)
	pipeSvc, err := pipeline.NewService(claimSvc, eligSvc, planRepo, userRepo, delims, partners, seed, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid EDI delimiter configuration")
	}
	pipeline.NewHandler(pipeSvc).RegisterRoutes(apiV1)

	// Start server
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	return nil
}
