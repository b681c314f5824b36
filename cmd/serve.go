package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vibast-solutions/ms-go-record-locks/app/controller"
	grpcserver "github.com/vibast-solutions/ms-go-record-locks/app/grpc"
	"github.com/vibast-solutions/ms-go-record-locks/app/lock"
	"github.com/vibast-solutions/ms-go-record-locks/app/middleware"
	"github.com/vibast-solutions/ms-go-record-locks/app/queue"
	"github.com/vibast-solutions/ms-go-record-locks/app/repository"
	"github.com/vibast-solutions/ms-go-record-locks/app/service"
	types "github.com/vibast-solutions/ms-go-record-locks/app/types"
	"github.com/vibast-solutions/ms-go-record-locks/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  "Start both HTTP (Echo) and gRPC servers for the record lock service.",
	Run:   runServe,
}

// init registers the serve command.
func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe wires dependencies and starts HTTP and gRPC servers.
func runServe(_ *cobra.Command, _ []string) {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	logger := newLogger(cfg)

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	rdb, err := openRedis(cfg)
	if err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	store, err := buildLockStore(cfg, rdb, logger)
	if err != nil {
		logger.Fatalf("Failed to build lock store: %v", err)
	}

	var events service.EventPublisher
	if cfg.EventsEnabled {
		events = queue.NewLockEventProducer(rdb)
	}

	lockService := service.NewLockService(
		store,
		repository.NewRecordRepository(db),
		repository.NewLockHistoryRepository(db),
		events,
		logger,
	)

	identityMW, resolver, err := buildIdentity(cfg)
	if err != nil {
		logger.Fatalf("Failed to configure authentication: %v", err)
	}
	limiter := middleware.NewHolderLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	lockController := controller.NewLockController(lockService, logger)
	e := setupHTTPServer(lockController, identityMW, limiter)

	grpcServer, lis, err := setupGRPCServer(cfg, grpcserver.NewServer(lockService, logger),
		grpcserver.IdentityInterceptor(resolver),
		grpcserver.RateLimitInterceptor(limiter),
	)
	if err != nil {
		logger.Fatalf("Failed to listen on gRPC port: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go lock.RunSweeper(ctx, store, cfg.LockSweepInterval, logger, lockService.RecordExpired)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTPHost, cfg.HTTPPort)
		logger.Infof("Starting HTTP server on %s", httpAddr)
		if err := e.Start(httpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	go func() {
		logger.Infof("Starting gRPC server on %s", lis.Addr())
		if err := grpcServer.Serve(lis); err != nil {
			logger.Fatalf("gRPC server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("HTTP shutdown error: %v", err)
	}
	grpcServer.GracefulStop()

	logger.Info("Server stopped")
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MySQLMaxOpen)
	db.SetMaxIdleConns(cfg.MySQLMaxIdle)
	db.SetConnMaxLifetime(cfg.MySQLMaxLife)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func openRedis(cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// buildLockStore picks the lock table backend.
func buildLockStore(cfg *config.Config, rdb *redis.Client, logger logrus.FieldLogger) (lock.Store, error) {
	opts := []lock.Option{lock.WithLease(cfg.LockLease), lock.WithLogger(logger)}
	switch cfg.LockBackend {
	case config.LockBackendRedis:
		return lock.NewRedisStore(rdb, opts...), nil
	case config.LockBackendMemory:
		return lock.NewMemoryStore(opts...), nil
	default:
		return nil, fmt.Errorf("unsupported LOCK_BACKEND: %s", cfg.LockBackend)
	}
}

// buildIdentity returns the HTTP identity middleware and the gRPC token resolver.
// Gateway mode returns a nil resolver so the gRPC interceptor trusts identity metadata.
func buildIdentity(cfg *config.Config) (echo.MiddlewareFunc, middleware.IdentityResolver, error) {
	switch cfg.AuthMode {
	case config.AuthModeGateway:
		return middleware.GatewayIdentity(), nil, nil
	case config.AuthModeTokens:
		tokens, err := middleware.ParseStaticTokens(cfg.AuthTokens)
		if err != nil {
			return nil, nil, err
		}
		if len(tokens) == 0 {
			return nil, nil, errors.New("AUTH_TOKENS is empty")
		}
		return middleware.Identity(tokens), tokens, nil
	default:
		return nil, nil, fmt.Errorf("unsupported AUTH_MODE: %s", cfg.AuthMode)
	}
}

// setupHTTPServer configures the Echo HTTP server and routes.
func setupHTTPServer(lockController *controller.LockController, identityMW echo.MiddlewareFunc, limiter *middleware.HolderLimiter) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	records := e.Group("/records", identityMW, middleware.RateLimit(limiter))
	records.POST("/:id/lock", lockController.Acquire)
	records.PUT("/:id/lock", lockController.Renew)
	records.DELETE("/:id/lock", lockController.Release)
	records.GET("/:id/lock/status", lockController.Status)
	records.GET("/:id/lock/history", lockController.History)
	records.PATCH("/:id/status", lockController.ChangeStatus)

	return e
}

// setupGRPCServer builds the gRPC server and listener.
func setupGRPCServer(cfg *config.Config, lockServer *grpcserver.Server, interceptors ...grpc.UnaryServerInterceptor) (*grpc.Server, net.Listener, error) {
	grpcAddr := net.JoinHostPort(cfg.GRPCHost, cfg.GRPCPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return nil, nil, err
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))
	types.RegisterLockServiceServer(grpcServer, lockServer)

	return grpcServer, lis, nil
}
