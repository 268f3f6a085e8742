package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	wsapi "github.com/yusin8/WERO/internal/api/ws"
	"github.com/yusin8/WERO/internal/app"
	"github.com/yusin8/WERO/internal/config"
	"github.com/yusin8/WERO/internal/events"
	apihttp "github.com/yusin8/WERO/internal/http"
	"github.com/yusin8/WERO/internal/observability"
	"github.com/yusin8/WERO/internal/observability/metrics"
	"github.com/yusin8/WERO/internal/service/session"
)

const (
	healthService   = "voice.gateway.Session"
	shutdownTimeout = 15 * time.Second
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	if err := run(); err != nil {
		log.Error().Err(err).Msg("Voice gateway stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("Voice gateway stopped")
}

func run() error {
	cfg := config.Load()
	application := app.New(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Publisher for turn events, with separate topics for completed and failed turns
	publisher := events.New(&events.Config{
		Enabled:       cfg.Kafka.Enabled,
		Brokers:       cfg.Kafka.Brokers,
		TopicTurns:    cfg.Kafka.TopicTurns,
		TopicFailures: cfg.Kafka.TopicFailures,
		Principal:     cfg.Kafka.Principal,
	})
	defer publisher.Close()

	pipe, err := application.BuildPipeline(ctx, publisher)
	if err != nil {
		return err
	}
	defer pipe.Close()

	ws := wsapi.New(wsapi.Config{
		Limits: session.Limits{
			MaxAudioBytes:    cfg.SegmentLimits.MaxAudioBytes,
			MaxAudioDuration: cfg.SegmentLimits.MaxAudioDuration,
			DefaultRate:      cfg.Capture.SampleRate,
		},
	}, pipe)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           apihttp.NewRouter(application, ws),
		ReadHeaderTimeout: 10 * time.Second,
	}
	obs := observability.NewServer(cfg.Service.MetricsAddr, application.Ready)

	var (
		grpcServer   *grpc.Server
		healthServer *health.Server
	)
	if cfg.Service.GRPCHealthPort != "" {
		grpcServer = grpc.NewServer(
			grpc.UnaryInterceptor(observability.UnaryServerInterceptor(metrics.DefaultMetrics)),
			grpc.StreamInterceptor(observability.StreamServerInterceptor(metrics.DefaultMetrics)),
		)
		healthServer = health.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
		// Enable gRPC reflection for debugging tools like grpcurl
		reflection.Register(grpcServer)
	}

	var lis net.Listener
	if grpcServer != nil {
		if lis, err = net.Listen("tcp", ":"+cfg.Service.GRPCHealthPort); err != nil {
			return fmt.Errorf("listen grpc health: %w", err)
		}
	}

	if err := application.Start(); err != nil {
		return err
	}
	obs.Start()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", httpServer.Addr).Msg("Voice gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if grpcServer != nil {
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		healthServer.SetServingStatus(healthService, grpc_health_v1.HealthCheckResponse_SERVING)
		g.Go(func() error {
			log.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server listening")
			return grpcServer.Serve(lis)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		application.Shutdown()
		if healthServer != nil {
			healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
			healthServer.SetServingStatus(healthService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := httpServer.Shutdown(shutdownCtx)
		ws.Close()
		if grpcServer != nil {
			grpcServer.GracefulStop()
		}
		if oerr := obs.Shutdown(shutdownCtx); oerr != nil {
			log.Warn().Err(oerr).Msg("Observability server shutdown failed")
		}
		return err
	})

	return g.Wait()
}
