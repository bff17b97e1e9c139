package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/seatledger/internal/audit"
	"github.com/MarkoPoloResearchLab/seatledger/internal/auth"
	"github.com/MarkoPoloResearchLab/seatledger/internal/bookingapi"
	"github.com/MarkoPoloResearchLab/seatledger/internal/cache/rediscache"
	"github.com/MarkoPoloResearchLab/seatledger/internal/oplog"
	"github.com/MarkoPoloResearchLab/seatledger/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/seatledger/internal/store/memstore"
	"github.com/MarkoPoloResearchLab/seatledger/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/seatledger/pkg/seats"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	envPrefix = "SEATD"

	flagDatabaseURL        = "database-url"
	flagStoreBackend       = "store-backend"
	flagListenAddr         = "listen-addr"
	flagJWTSecret          = "jwt-secret"
	flagJWTIssuer          = "jwt-issuer"
	flagJWTTTL             = "jwt-ttl"
	flagAdminAPIKey        = "admin-api-key"
	flagAllowedOrigins     = "allowed-origins"
	flagRedisURL           = "redis-url"
	flagBookingCacheTTL    = "booking-cache-ttl"
	flagReserveMaxAttempts = "reserve-max-attempts"
	flagReserveRetryDelay  = "reserve-retry-delay"
	flagRequestTimeout     = "request-timeout"
	flagAuditInterval      = "audit-interval"

	backendGorm   = "gorm"
	backendPgx    = "pgx"
	backendMemory = "memory"

	defaultDatabaseURL     = "sqlite:///tmp/seatledger.db"
	defaultListenAddr      = ":8080"
	defaultJWTIssuer       = "seatledger"
	defaultJWTTTL          = time.Hour
	defaultAllowedOrigins  = "http://localhost:3000"
	defaultBookingCacheTTL = 10 * time.Minute
	defaultRequestTimeout  = 5 * time.Second
)

type runtimeConfig struct {
	DatabaseURL        string
	StoreBackend       string
	ListenAddr         string
	JWTSecret          string
	JWTIssuer          string
	JWTTTL             time.Duration
	AdminAPIKey        string
	AllowedOrigins     []string
	RedisURL           string
	BookingCacheTTL    time.Duration
	ReserveMaxAttempts int
	ReserveRetryDelay  time.Duration
	RequestTimeout     time.Duration
	AuditInterval      time.Duration
}

// storeBackend bundles a seat store with the user store living next to it.
type storeBackend struct {
	seats   seats.Store
	users   auth.UserStore
	cleanup func() error
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "seatd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "seatd",
		Short:         "Train seat booking HTTP server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, viper.New(), cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	flags := cmd.Flags()
	flags.String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL URL or SQLite path")
	flags.String(flagStoreBackend, backendGorm, "store backend: gorm, pgx or memory")
	flags.String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	flags.String(flagJWTSecret, "", "HMAC secret for session tokens")
	flags.String(flagJWTIssuer, defaultJWTIssuer, "session token issuer")
	flags.Duration(flagJWTTTL, defaultJWTTTL, "session token lifetime")
	flags.String(flagAdminAPIKey, "", "API key required by admin routes")
	flags.String(flagAllowedOrigins, defaultAllowedOrigins, "comma-separated CORS origins")
	flags.String(flagRedisURL, "", "optional redis URL for the booking cache")
	flags.Duration(flagBookingCacheTTL, defaultBookingCacheTTL, "booking cache entry lifetime")
	flags.Int(flagReserveMaxAttempts, seats.DefaultReserveMaxAttempts, "attempts per reservation on write conflicts")
	flags.Duration(flagReserveRetryDelay, seats.DefaultReserveRetryDelay, "base backoff between reservation attempts")
	flags.Duration(flagRequestTimeout, defaultRequestTimeout, "per-request storage deadline")
	flags.Duration(flagAuditInterval, 0, "seat ledger audit interval, 0 disables")

	return cmd
}

// loadConfig resolves every flag from, in order, the command line, SEATD_*
// environment variables and the flag default.
func loadConfig(cmd *cobra.Command, v *viper.Viper, cfg *runtimeConfig) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(v.GetString(flagStoreBackend)))
	cfg.ListenAddr = v.GetString(flagListenAddr)
	cfg.JWTSecret = v.GetString(flagJWTSecret)
	cfg.JWTIssuer = v.GetString(flagJWTIssuer)
	cfg.JWTTTL = v.GetDuration(flagJWTTTL)
	cfg.AdminAPIKey = v.GetString(flagAdminAPIKey)
	cfg.AllowedOrigins = bookingapi.ParseAllowedOrigins(v.GetString(flagAllowedOrigins))
	cfg.RedisURL = strings.TrimSpace(v.GetString(flagRedisURL))
	cfg.BookingCacheTTL = v.GetDuration(flagBookingCacheTTL)
	cfg.ReserveMaxAttempts = v.GetInt(flagReserveMaxAttempts)
	cfg.ReserveRetryDelay = v.GetDuration(flagReserveRetryDelay)
	cfg.RequestTimeout = v.GetDuration(flagRequestTimeout)
	cfg.AuditInterval = v.GetDuration(flagAuditInterval)

	switch cfg.StoreBackend {
	case backendGorm, backendPgx:
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("database url is required for the %s backend", cfg.StoreBackend)
		}
	case backendMemory:
	default:
		return fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("jwt secret is required")
	}
	if strings.TrimSpace(cfg.AdminAPIKey) == "" {
		return fmt.Errorf("admin api key is required")
	}
	if cfg.ReserveMaxAttempts < 1 {
		return fmt.Errorf("reserve max attempts must be at least 1, got %d", cfg.ReserveMaxAttempts)
	}
	if cfg.AuditInterval < 0 {
		return fmt.Errorf("audit interval must not be negative")
	}
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := backend.cleanup(); closeErr != nil {
			logger.Warn("store close", zap.Error(closeErr))
		}
	}()

	options := []seats.ServiceOption{
		seats.WithOperationLogger(oplog.New(logger)),
		seats.WithRetryPolicy(seats.RetryPolicy{
			MaxAttempts: cfg.ReserveMaxAttempts,
			BaseDelay:   cfg.ReserveRetryDelay,
		}),
	}
	if cfg.RedisURL != "" {
		redisClient, err := rediscache.Dial(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("booking cache: %w", err)
		}
		defer func() { _ = redisClient.Close() }()
		options = append(options, seats.WithBookingCache(rediscache.New(redisClient, cfg.BookingCacheTTL)))
		logger.Info("booking cache enabled", zap.Duration("ttl", cfg.BookingCacheTTL))
	}

	clock := func() int64 { return time.Now().UTC().Unix() }
	seatService, err := seats.NewService(backend.seats, clock, options...)
	if err != nil {
		return fmt.Errorf("seat service init: %w", err)
	}

	authService, err := auth.NewService(backend.users, auth.Config{
		SigningKey: []byte(cfg.JWTSecret),
		Issuer:     cfg.JWTIssuer,
		TokenTTL:   cfg.JWTTTL,
	}, time.Now)
	if err != nil {
		return fmt.Errorf("auth service init: %w", err)
	}

	if cfg.AuditInterval > 0 {
		runner, err := audit.NewRunner(seatService, logger)
		if err != nil {
			return err
		}
		scheduler, err := runner.Schedule(cfg.AuditInterval)
		if err != nil {
			return err
		}
		defer func() { _ = scheduler.Shutdown() }()
		logger.Info("seat ledger audit scheduled", zap.Duration("interval", cfg.AuditInterval))
	}

	return bookingapi.Run(ctx, bookingapi.Config{
		ListenAddr:     cfg.ListenAddr,
		AllowedOrigins: cfg.AllowedOrigins,
		AdminAPIKey:    cfg.AdminAPIKey,
		RequestTimeout: cfg.RequestTimeout,
	}, seatService, authService, logger)
}

func openBackend(ctx context.Context, cfg *runtimeConfig) (storeBackend, error) {
	switch cfg.StoreBackend {
	case backendMemory:
		store := memstore.New()
		return storeBackend{seats: store, users: store, cleanup: func() error { return nil }}, nil
	case backendPgx:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return storeBackend{}, fmt.Errorf("database open: %w", err)
		}
		store := pgstore.New(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return storeBackend{}, fmt.Errorf("ensure schema: %w", err)
		}
		return storeBackend{seats: store, users: store, cleanup: func() error { pool.Close(); return nil }}, nil
	default:
		db, cleanup, _, err := gormstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return storeBackend{}, fmt.Errorf("database open: %w", err)
		}
		if err := gormstore.Migrate(db); err != nil {
			_ = cleanup()
			return storeBackend{}, err
		}
		store := gormstore.New(db)
		return storeBackend{seats: store, users: store, cleanup: cleanup}, nil
	}
}
