package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/bedflow/internal/config"
	"github.com/ehr/bedflow/internal/domain/bed"
	"github.com/ehr/bedflow/internal/domain/discharge"
	"github.com/ehr/bedflow/internal/domain/ledger"
	"github.com/ehr/bedflow/internal/domain/queue"
	"github.com/ehr/bedflow/internal/domain/turnover"
	"github.com/ehr/bedflow/internal/platform/auth"
	"github.com/ehr/bedflow/internal/platform/db"
	"github.com/ehr/bedflow/internal/platform/events"
	"github.com/ehr/bedflow/internal/platform/lock"
	"github.com/ehr/bedflow/internal/platform/metrics"
	"github.com/ehr/bedflow/internal/platform/middleware"
	"github.com/ehr/bedflow/internal/platform/operation"
	"github.com/ehr/bedflow/internal/platform/reporting"
	"github.com/ehr/bedflow/internal/platform/sandbox"
	"github.com/ehr/bedflow/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "bedflow-server",
		Short: "Bed lifecycle and discharge reconciliation server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bedflow API server",
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

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate postgres with a demo bed board",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.StorageDriver != config.StoragePostgres {
				return fmt.Errorf("seed writes to postgres; set STORAGE_DRIVER=%s", config.StoragePostgres)
			}
			logger := newLogger(cfg.Env)

			seedCfg := sandbox.DefaultSeedConfig()
			seedCfg.BedsPerDepartment, _ = cmd.Flags().GetInt("beds")
			seedCfg.QueuedPatients, _ = cmd.Flags().GetInt("queued")
			seedCfg.Seed, _ = cmd.Flags().GetInt64("seed")
			if seedCfg.Seed == 0 {
				seedCfg.Seed = time.Now().UnixNano()
			}
			if depts, _ := cmd.Flags().GetStringSlice("departments"); len(depts) > 0 {
				seedCfg.Departments = depts
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			svcs, err := newServices(cfg, pool, lock.NewMemoryLocker(cfg.LockWait), logger)
			if err != nil {
				return err
			}

			seeder := sandbox.NewSeeder(seedCfg, svcs.seedTargets())
			seeder.SetLogger(logger)
			res, err := seeder.Seed(ctx)
			if err != nil {
				return fmt.Errorf("seed failed: %w", err)
			}
			fmt.Printf("Seeded %d beds (%d occupied, %d cleaning, %d maintenance), %d queued, %d ledger entries in %s.\n",
				res.Beds, res.Occupied, res.Cleaning, res.Maintenance, res.Queued, res.LedgerEntries, res.Duration)
			return nil
		},
	}
	cmd.Flags().Int("beds", 8, "Beds per department")
	cmd.Flags().Int("queued", 5, "Patients left waiting in the queue")
	cmd.Flags().Int64("seed", 0, "Random seed, 0 uses the clock")
	cmd.Flags().StringSlice("departments", nil, "Departments to create")
	return cmd
}

func connect(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required for migrations")
	}
	return db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
}

// services is the wired domain layer shared by serve and seed.
type services struct {
	beds      *bed.Service
	queue     *queue.Service
	tracker   *turnover.Tracker
	ledger    *ledger.Service
	discharge *discharge.Service
}

func (s *services) seedTargets() sandbox.Targets {
	return sandbox.Targets{Beds: s.beds, Queue: s.queue, Ledger: s.ledger}
}

// newServices builds the domain services over postgres, or over in-memory
// repositories when pool is nil.
func newServices(cfg *config.Config, pool *pgxpool.Pool, locker lock.Locker, logger zerolog.Logger) (*services, error) {
	classMinutes, err := cfg.ClassMinutes()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	var (
		bedRepo      bed.BedRepository
		patientRepo  bed.PatientRepository
		turnoverRepo turnover.Repository
		queueRepo    queue.Repository
		ledgerRepo   ledger.Repository
		reportRepo   discharge.ReportRepository
		tx           db.Transactor
	)
	if pool != nil {
		bedRepo = bed.NewBedRepoPG(pool)
		patientRepo = bed.NewPatientRepoPG(pool)
		turnoverRepo = turnover.NewRepoPG(pool)
		queueRepo = queue.NewRepoPG(pool)
		ledgerRepo = ledger.NewRepoPG(pool)
		reportRepo = discharge.NewRepoPG(pool)
		tx = db.NewPGTransactor(pool)
	} else {
		bedRepo = bed.NewMemoryBedRepo()
		patientRepo = bed.NewMemoryPatientRepo()
		turnoverRepo = turnover.NewMemoryRepo()
		queueRepo = queue.NewMemoryRepo()
		ledgerRepo = ledger.NewMemoryRepo()
		reportRepo = discharge.NewMemoryRepo()
		tx = db.NopTransactor{}
	}

	tracker := turnover.NewTracker(turnoverRepo, cfg.TurnoverDefaultMinutes, classMinutes)

	queueSvc := queue.NewService(queueRepo, patientRepo)
	queueSvc.SetLogger(logger)

	bedSvc := bed.NewService(bedRepo, patientRepo, tracker, queueSvc, tx, locker)
	bedSvc.SetLogger(logger)

	ledgerSvc := ledger.NewService(ledgerRepo)

	dischargeSvc := discharge.NewService(bedRepo, patientRepo, tracker, ledgerSvc.Reader(), reportRepo, discharge.Config{
		WindowPadding:     cfg.ReportWindowPadding,
		FallbackLimit:     cfg.ReportFallbackLimit,
		AdmissionFallback: cfg.ReportAdmissionFallback,
		Location:          loc,
		CacheTTL:          cfg.ReportCacheTTL,
	})
	dischargeSvc.SetLogger(logger)

	return &services{
		beds:      bedSvc,
		queue:     queueSvc,
		tracker:   tracker,
		ledger:    ledgerSvc,
		discharge: dischargeSvc,
	}, nil
}

// instrument attaches metrics and the event publisher to the services that
// emit them.
func (s *services) instrument(m *metrics.Metrics, pub events.Publisher) {
	s.beds.SetMetrics(m)
	s.beds.SetPublisher(pub)
	s.queue.SetMetrics(m)
	s.discharge.SetMetrics(m)
	s.discharge.SetPublisher(pub)
}

// server bundles the echo instance with the resources it owns.
type server struct {
	echo     *echo.Echo
	services *services
	registry *operation.Registry
	relay    *events.Relay
	closers  []func()
}

func (s *server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func newServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*server, error) {
	srv := &server{}

	// Storage
	var pool *pgxpool.Pool
	if cfg.StorageDriver == config.StoragePostgres {
		var err error
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		srv.closers = append(srv.closers, pool.Close)
		logger.Info().Msg("connected to database")
	} else {
		logger.Warn().Msg("using in-memory storage; state is lost on restart")
	}

	// Redis
	var rdb *redis.Client
	if cfg.LockBackend == config.BackendRedis || cfg.EventsBackend == config.BackendRedis {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			srv.Close()
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			srv.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		srv.closers = append(srv.closers, func() { _ = rdb.Close() })
		logger.Info().Msg("connected to redis")
	}

	var locker lock.Locker = lock.NewMemoryLocker(cfg.LockWait)
	if cfg.LockBackend == config.BackendRedis {
		locker = lock.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockWait)
	}

	svcs, err := newServices(cfg, pool, locker, logger)
	if err != nil {
		srv.Close()
		return nil, err
	}
	srv.services = svcs

	// Events
	hub := events.NewHub(logger)
	var publisher events.Publisher = hub
	if cfg.EventsBackend == config.BackendRedis {
		publisher = events.NewRedisPublisher(rdb, cfg.EventsChannel)
		srv.relay = events.NewRelay(rdb, cfg.EventsChannel, hub, logger)
	}

	m := metrics.New()
	svcs.instrument(m, publisher)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = middleware.NewValidator()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(m.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(echomw.BodyLimit("2M"))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Auth middleware
	if cfg.ResolvedAuthMode() == config.AuthModeDevelopment {
		logger.Warn().Msg("development auth: unauthenticated requests run as admin")
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
			"storage": cfg.StorageDriver,
		})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	} else {
		e.GET("/health/db", db.HealthHandler(nil))
	}
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	events.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(e)

	// API group
	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           middleware.DefaultRateLimitConfig().IdleTTL,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	bed.NewHandler(svcs.beds).RegisterRoutes(apiV1)
	turnover.NewHandler(svcs.tracker).RegisterRoutes(apiV1)
	queue.NewHandler(svcs.queue).RegisterRoutes(apiV1)
	ledger.NewHandler(svcs.ledger).RegisterRoutes(apiV1)
	discharge.NewHandler(svcs.discharge).RegisterRoutes(apiV1)

	// Named operations
	registry := operation.NewRegistry()
	registry.SetLogger(logger)
	bed.RegisterOperations(registry, svcs.beds)
	queue.RegisterOperations(registry, svcs.queue)
	turnover.RegisterOperations(registry, svcs.tracker)
	ledger.RegisterOperations(registry, svcs.ledger)
	discharge.RegisterOperations(registry, svcs.discharge)
	operation.NewHTTPHandler(registry).RegisterRoutes(apiV1)
	srv.registry = registry

	if pool != nil {
		reporting.NewHandler(reporting.PoolExecutor(pool)).RegisterRoutes(apiV1)
	}

	if cfg.IsDev() {
		sandboxGroup := apiV1.Group("/sandbox", auth.RequireRole(auth.RoleAdmin))
		sandbox.NewSeedHandler(svcs.seedTargets()).RegisterRoutes(sandboxGroup)
	}

	srv.echo = e
	return srv, nil
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Logger
	logger := newLogger(cfg.Env)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	srv, err := newServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}
	defer srv.Close()

	if srv.relay != nil {
		go func() {
			if err := srv.relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("event relay stopped")
			}
		}()
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("storage", cfg.StorageDriver).Msg("starting server")
		if err := srv.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.echo.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
