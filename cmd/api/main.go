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

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"orbitdesk.io/internal/auth"
	"orbitdesk.io/internal/config"
	"orbitdesk.io/internal/grpcauth"
	"orbitdesk.io/internal/httpapi"
	"orbitdesk.io/internal/migrate"
	"orbitdesk.io/internal/obs"
	"orbitdesk.io/internal/store/memory"
	"orbitdesk.io/internal/store/pg"
)

func main() {
	log := obs.Logger()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	if !obs.SetLevel(cfg.LogLevel) {
		log.WithField("level", cfg.LogLevel).Warn("unknown log level, keeping info")
	}
	obs.Init(cfg.Version)

	store, closeStore, err := openStore(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("open store")
	}
	defer closeStore()

	svc, err := auth.NewService(store,
		auth.WithSigningSecret(cfg.SessionSecret),
		auth.WithIssuer(cfg.Issuer),
		auth.WithSessionTTL(cfg.SessionTTL),
		auth.WithTOTPIssuer(cfg.TOTPIssuer),
		auth.WithSecondFactorBudget(cfg.SecondFactorAttempts, cfg.SecondFactorWindow),
	)
	if err != nil {
		log.WithError(err).Fatal("configure auth service")
	}

	api := httpapi.New(svc, cfg.Version,
		httpapi.WithRateLimit(cfg.RatePerSecond, cfg.RateBurst),
		httpapi.WithTrustedProxies(cfg.TrustedProxies),
	)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	authn := grpcauth.New(svc, auth.NewGate(store))
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(authn.Unary()),
		grpc.ChainStreamInterceptor(authn.Stream()),
	)
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	pingCtx, stopPings := context.WithCancel(context.Background())
	defer stopPings()
	go grpcauth.NewReadiness(healthServer, store.Ping).Run(pingCtx, cfg.ReadinessInterval)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.WithError(err).WithField("addr", cfg.GRPCAddr).Fatal("grpc listen")
	}

	log.WithFields(logrus.Fields{
		"version":   cfg.Version,
		"http_addr": srv.Addr,
		"grpc_addr": lis.Addr().String(),
	}).Info("starting orbit identity api")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http listen")
		}
	}()
	go func() {
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.WithError(err).Fatal("grpc serve")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stopPings()
	healthServer.Shutdown()
	grpcServer.GracefulStop()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	log.Info("stopped")
}

// openStore picks Postgres when a DSN is configured and the in-memory store
// otherwise.
func openStore(cfg config.Config, log *logrus.Logger) (auth.Store, func(), error) {
	if cfg.DSN == "" {
		log.Warn("ORBIT_PG_DSN not set, using in-memory store")
		return memory.New(), func() {}, nil
	}
	st, err := pg.Open(cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	if cfg.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		mgr := migrate.NewManager(st.DB(), migrate.Embedded(), migrate.WithLogger(log))
		if err := mgr.Up(ctx); err != nil {
			_ = st.Close()
			return nil, nil, err
		}
	}
	return st, func() { _ = st.Close() }, nil
}
