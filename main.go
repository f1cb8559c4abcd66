package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/face-gateway/internal/auth"
	"github.com/example/face-gateway/internal/config"
	"github.com/example/face-gateway/internal/faceapi"
	"github.com/example/face-gateway/internal/grpcserver"
	"github.com/example/face-gateway/internal/handlers"
	"github.com/example/face-gateway/internal/logging"
	"github.com/example/face-gateway/internal/middleware"
	"github.com/example/face-gateway/internal/repository"
	"github.com/example/face-gateway/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.Server.Mode)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var repo usecase.AuditRepository
	if cfg.Database.Enabled() {
		db := initDatabase(ctx, cfg.Database, cfg.Server.Mode, logger)
		requestLogs := repository.NewRequestLogRepository(db, logger)
		if err := requestLogs.AutoMigrate(ctx); err != nil {
			logger.Fatal("auto migrate failed", zap.Error(err))
		}
		repo = requestLogs
	} else {
		logger.Info("DATABASE_DSN not set, request audit disabled")
	}

	var cache usecase.Cache
	if cfg.Redis.Enabled() {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		redisClient := initRedis(redisCtx, cfg.Redis, logger)
		redisCancel()
		defer redisClient.Close()
		cache = usecase.NewRedisCache(redisClient)
	} else {
		logger.Info("REDIS_ADDR not set, response cache disabled")
	}

	client := faceapi.NewHTTPClient(cfg.FaceAPI, logger)
	defer client.CloseIdleConnections()
	logger.Info("face recognition backend configured", zap.String("base_url", cfg.FaceAPI.BaseURL))

	uc := usecase.NewFaceUseCase(client, repo, cache, logger, usecase.Options{
		DefaultThreshold: &cfg.Server.DefaultThreshold,
		CacheTTL:         cfg.Redis.TTL,
	})

	switch cfg.Server.Mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		gin.SetMode(cfg.Server.Mode)
	}
	r := gin.New()
	r.MaxMultipartMemory = cfg.Server.MaxUploadBytes
	r.Use(
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Recovery(logger),
		middleware.CORS(cfg.Server.AllowedOrigins),
	)

	var guards []gin.HandlerFunc
	if cfg.Auth.Enabled() {
		guards = append(guards, auth.JWTMiddleware(cfg.Auth.JWTSecret, cfg.Auth.JWTAudience))
	} else {
		logger.Warn("JWT_SECRET not set, API is unauthenticated")
	}
	handlers.RegisterRoutes(r, handlers.NewHandler(uc, logger, cfg.Server.MaxUploadBytes), guards...)

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	if cfg.Health.Enabled() {
		healthServer, err := startHealthServer(runCtx, cfg.Health, client, logger)
		if err != nil {
			logger.Fatal("failed to start gRPC health server", zap.Error(err))
		}
		defer healthServer.Stop()
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("face gateway listening", zap.String("addr", cfg.Server.Addr))
	if err := serveHTTPServer(server, cfg.Server.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initDatabase(ctx context.Context, cfg config.DatabaseConfig, mode string, zapLogger *zap.Logger) *gorm.DB {
	level := gormlogger.Warn
	if mode == gin.DebugMode {
		level = gormlogger.Info
	}
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{Logger: gormlogger.Default.LogMode(level)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, cfg config.RedisConfig, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func startHealthServer(ctx context.Context, cfg config.HealthConfig, checker grpcserver.HealthChecker, logger *zap.Logger) (*grpcserver.HealthServer, error) {
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return nil, logging.NewOperationError("grpcserver.listen", "", err)
	}

	srv := grpcserver.NewHealthServer(checker, logger)
	go srv.Run(ctx, cfg.CheckInterval)
	go func() {
		if err := srv.Serve(lis); err != nil {
			logger.Error("gRPC health server stopped", zap.Error(err))
		}
	}()
	return srv, nil
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
