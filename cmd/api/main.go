package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-auth-otp/internal/application/credential"
	"github.com/go-auth-otp/internal/application/notification"
	"github.com/go-auth-otp/internal/application/otp"
	"github.com/go-auth-otp/internal/application/session"
	"github.com/go-auth-otp/internal/application/token"
	"github.com/go-auth-otp/internal/config"
	"github.com/go-auth-otp/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-auth-otp/internal/infrastructure/jwt"
	"github.com/go-auth-otp/internal/infrastructure/memory"
	redisinfra "github.com/go-auth-otp/internal/infrastructure/redis"
	"github.com/go-auth-otp/internal/infrastructure/smtp"
	"github.com/go-auth-otp/internal/infrastructure/sns"
	"github.com/go-auth-otp/internal/metrics"
	transporthttp "github.com/go-auth-otp/internal/transport/http"
	"github.com/go-auth-otp/internal/transport/http/handler"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"
)

// backend is the set of stores selected by STORE_BACKEND.
type backend struct {
	verifications otp.Store
	revocations   token.RevocationStore
	credentials   credential.Service
	probes        []handler.Probe
	close         func()
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}

	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)})))
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	stores, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.close()

	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		return fmt.Errorf("jwt provider: %w", err)
	}

	notifier, err := newNotifier(ctx, cfg)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	sessions := session.NewService(session.ServiceDeps{
		Credentials: stores.credentials,
		OTP: otp.NewService(otp.ServiceDeps{
			Store: stores.verifications,
			Config: otp.Config{
				Length:      cfg.OTPLength,
				TTL:         cfg.OTPTTL,
				MaxAttempts: cfg.OTPMaxAttempts,
			},
		}),
		Tokens: token.NewService(token.ServiceDeps{
			Signer:                jwtProvider,
			Revocations:           stores.revocations,
			AccessTTL:             cfg.AccessTokenTTL,
			RefreshTTL:            cfg.RefreshTokenTTL,
			RevokeRefreshOnLogout: cfg.LogoutRevokeRefresh,
		}),
		Notifier:    notifier,
		Metrics:     metrics.NewRecorder(registry),
		CallTimeout: cfg.CallTimeout,
	})

	router := transporthttp.NewRouter(ctx, cfg, &transporthttp.Deps{
		Sessions: sessions,
		Gatherer: registry,
		Probes:   stores.probes,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv, "backend", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

// openBackend wires the stores. The redis backend keeps pending codes and
// revocations in Redis and identities in DynamoDB.
func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		rdb, err := redisinfra.NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		identities, err := openDynamo(ctx, cfg)
		if err != nil {
			_ = rdb.Close()
			return nil, err
		}
		ping := handler.Probe{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}
		return &backend{
			verifications: redisinfra.NewVerificationStore(rdb, cfg.RedisPrefix),
			revocations:   redisinfra.NewRevocationStore(rdb, cfg.RedisPrefix),
			credentials:   credential.NewService(credential.ServiceDeps{IdentityRepo: dynamo.NewIdentityRepo(identities, cfg.DynamoTables.Identities)}),
			probes:        []handler.Probe{ping, dynamoProbe(identities, cfg.DynamoTables.Identities)},
			close:         func() { _ = rdb.Close() },
		}, nil

	case config.BackendDynamo:
		client, err := openDynamo(ctx, cfg)
		if err != nil {
			return nil, err
		}
		tables := cfg.DynamoTables
		return &backend{
			verifications: dynamo.NewVerificationStore(client, tables.PendingVerifications),
			revocations:   dynamo.NewRevocationStore(client, tables.Revocations),
			credentials:   credential.NewService(credential.ServiceDeps{IdentityRepo: dynamo.NewIdentityRepo(client, tables.Identities)}),
			probes:        []handler.Probe{dynamoProbe(client, tables.Identities, tables.PendingVerifications, tables.Revocations)},
			close:         func() {},
		}, nil

	default:
		slog.Warn("using in-memory stores; state is lost on restart")
		verifications := memory.NewVerificationStore()
		revocations := memory.NewRevocationStore()
		b := &backend{
			verifications: verifications,
			revocations:   revocations,
			credentials:   credential.NewService(credential.ServiceDeps{IdentityRepo: memory.NewIdentityRepo()}),
			close:         func() {},
		}
		if cfg.ReapInterval > 0 {
			reaper := memory.NewReaper(cfg.ReapInterval, verifications, revocations)
			reaper.Start()
			b.close = reaper.Close
		}
		return b, nil
	}
}

func openDynamo(ctx context.Context, cfg *config.Config) (dynamo.API, error) {
	client, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	// Creates the tables if they don't exist.
	dynamo.Bootstrap(ctx, client, cfg.DynamoTables)
	return client, nil
}

func dynamoProbe(client dynamo.API, tables ...string) handler.Probe {
	return handler.Probe{
		Name:  "dynamodb",
		Check: func(ctx context.Context) error { return dynamo.Ping(ctx, client, tables...) },
	}
}

func newNotifier(ctx context.Context, cfg *config.Config) (notification.Service, error) {
	deps := notification.ServiceDeps{
		Mailer:  smtp.NewMailer(cfg),
		Limiter: rate.NewLimiter(rate.Limit(cfg.NotifyRate), cfg.NotifyBurst),
		CodeTTL: cfg.OTPTTL,
	}
	if cfg.SMSEnabled {
		sender, err := sns.NewSender(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("sns sender: %w", err)
		}
		deps.SMS = sender
	}
	return notification.NewService(deps), nil
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
