package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	health "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pribylovaa/carelink-auth/internal/config"
	httpapi "github.com/pribylovaa/carelink-auth/internal/http"
	"github.com/pribylovaa/carelink-auth/internal/http/middleware"
	"github.com/pribylovaa/carelink-auth/internal/interceptors"
	"github.com/pribylovaa/carelink-auth/internal/service"
	"github.com/pribylovaa/carelink-auth/internal/storage/mongo"
	"github.com/pribylovaa/carelink-auth/internal/storage/postgres"
	"github.com/pribylovaa/carelink-auth/internal/storage/redis"
	guardrpc "github.com/pribylovaa/carelink-auth/internal/transport/grpc"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting application", slog.String("env", cfg.Env))

	if err := run(cfg, log); err != nil {
		log.Error("service_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	log.Info("service_stopped")
}

func run(cfg *config.Config, log *slog.Logger) error {
	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	// Подключения к хранилищам с таймаутом.
	connCtx, connCancel := context.WithTimeout(rootCtx, 10*time.Second)
	defer connCancel()

	str, err := postgres.New(connCtx, cfg.DB.DatabaseURL)
	if err != nil {
		return err
	}
	defer str.Close()
	log.Info("postgres_connected")

	registry, err := redis.New(connCtx, cfg.Redis.RedisURL, cfg.Redis.KeyPrefix)
	if err != nil {
		return err
	}
	defer registry.Close()
	log.Info("redis_connected")

	opts := []service.Option{
		service.WithStoreTimeout(cfg.Timeouts.Store),
		service.WithRevocationFailClosed(cfg.Auth.RevocationFailClosed),
	}

	if cfg.Audit.MongoURL != "" {
		events, err := mongo.New(connCtx, cfg.Audit.MongoURL, mongo.DefaultRetention)
		if err != nil {
			return err
		}
		defer func() { _ = events.Close(context.Background()) }()

		opts = append(opts, service.WithEvents(events))
		log.Info("audit_journal_connected")
	} else {
		log.Info("audit_journal_disabled")
	}
	connCancel()

	// Сервисный слой.
	codec, err := service.NewCodec(cfg.Auth, nil)
	if err != nil {
		return err
	}

	srvc := service.New(str, registry, codec, cfg.Auth, opts...)
	guard := service.NewGuard(codec, registry, service.NewOrgScope(cfg.Auth.SuperRole), opts...)
	log.Info("service_initialized")

	var ready atomic.Bool

	// HTTP: публичные auth-эндпоинты, пробы, метрики.
	httpAddr := cfg.HTTP.Addr()
	httpSrv := &http.Server{
		Addr: httpAddr,
		Handler: httpapi.NewRouter(srvc, guard, httpapi.Options{
			Logger:       log,
			Timeout:      cfg.Timeouts.Request,
			Ready:        &ready,
			LoginLimiter: middleware.NewRateLimiter(cfg.RateLimit.LoginRPS, cfg.RateLimit.LoginBurst),
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpc_prometheus.EnableHandlingTimeHistogram()

	// gRPC: внутренний Guard для соседних сервисов.
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			interceptors.Recover(log),
			interceptors.UnaryLoggingInterceptor(log),
			interceptors.WithTimeout(cfg.Timeouts.Request),
			grpc_prometheus.UnaryServerInterceptor,
		),
		grpc.ChainStreamInterceptor(
			grpc_prometheus.StreamServerInterceptor,
		),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	guardrpc.RegisterGuardService(grpcServer, guardrpc.NewGuardServer(guard))

	// Рефлексия — только в local/dev.
	if cfg.Env == envLocal || cfg.Env == envDev {
		reflection.Register(grpcServer)
	}
	grpc_prometheus.Register(grpcServer)

	grpcAddr := cfg.GRPC.Addr()
	listener, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return err
	}

	startRefreshJanitor(rootCtx, str, log, cfg.Janitor.Period, cfg.Janitor.Retention)

	serveErrCh := make(chan error, 2)
	go func() {
		log.Info("http_listen_start", slog.String("addr", httpAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
	}()
	go func() {
		log.Info("grpc_listen_start", slog.String("addr", grpcAddr))
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serveErrCh <- err
		}
	}()

	// Сервис готов: health -> SERVING и readiness.
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	ready.Store(true)

	var serveErr error
	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case serveErr = <-serveErrCh:
		log.Error("serve_failed", slog.String("err", serveErr.Error()))
	}

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	ready.Store(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("grpc_stopped")
	case <-shutdownCtx.Done():
		log.Warn("grpc_force_stop")
		grpcServer.Stop()
	}

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_shutdown_failed", slog.String("err", err.Error()))
	}

	return serveErr
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	switch env {
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
