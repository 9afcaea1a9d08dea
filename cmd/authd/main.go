// Command authd runs the MaintainPro authentication service.
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

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	authcore "github.com/maintainpro/authcore"
	"github.com/maintainpro/authcore/audit"
	"github.com/maintainpro/authcore/config"
	"github.com/maintainpro/authcore/httpapi"
	"github.com/maintainpro/authcore/jwt"
	"github.com/maintainpro/authcore/metrics"
	"github.com/maintainpro/authcore/mfa"
	"github.com/maintainpro/authcore/security"
	"github.com/maintainpro/authcore/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "authd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(ctx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis connected")
	}

	m := metrics.New()

	builder := authcore.New().
		WithConfig(engineConfig(cfg)).
		WithUserProvider(authcore.NewMemoryUserProvider()).
		WithMFASender(mfa.NewLogSender(log)).
		WithMetrics(m).
		WithLogger(log)
	if redisClient != nil {
		builder = builder.WithRedis(redisClient)
	}
	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()
	m.RegisterAuditDropped(engine.AuditDropped)

	srv, err := httpapi.NewServer(engine, log, []byte(cfg.CSRFSecret))
	if err != nil {
		return err
	}

	sweeper := startSweeps(engine, cfg, log)
	defer sweeper.Stop()

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("authd listening")
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

func newLogger(cfg *config.AppConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("parse log level: %w", err)
	}

	var log zerolog.Logger
	if cfg.Environment == "development" {
		log = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		log = zerolog.New(os.Stdout)
	}
	return log.Level(level).With().Timestamp().Str("service", "authd").Logger(), nil
}

// engineConfig maps the file/env configuration onto the engine's layers.
func engineConfig(cfg *config.AppConfig) authcore.Config {
	ec := authcore.DefaultConfig()

	ec.Password.Memory = cfg.Password.Memory
	ec.Password.Time = cfg.Password.Time
	ec.Password.Parallelism = cfg.Password.Parallelism
	ec.Password.Pepper = []byte(cfg.Password.Pepper)
	ec.PasswordPolicy.MinLength = cfg.Password.MinLength
	ec.PasswordPolicy.MinScore = cfg.Password.MinScore
	ec.PasswordPolicy.PreviousHashCount = cfg.Password.HistorySize

	ec.JWT = jwt.Config{
		AccessSecret:  []byte(cfg.JWT.AccessSecret),
		RefreshSecret: []byte(cfg.JWT.RefreshSecret),
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
	}

	ec.Session = session.Config{
		TTL:              cfg.Session.TTL,
		RememberMeTTL:    cfg.Session.RememberMeTTL,
		MaxPerUser:       cfg.Session.MaxPerUser,
		SuspiciousIPs:    cfg.Session.SuspiciousIPs,
		SuspiciousWindow: cfg.Session.SuspiciousWindow,
	}

	ec.Lockout = security.LockoutConfig{
		MaxAttempts:     cfg.Lockout.MaxAttempts,
		LockoutDuration: cfg.Lockout.LockoutDuration,
		CounterTTL:      cfg.Lockout.CounterTTL,
	}

	ec.RateLimit = security.RateLimitConfig{
		RequestsPerSecond: float64(cfg.RateLimit.LoginPerMinute) / 60,
		Burst:             cfg.RateLimit.LoginBurst,
		IdleEviction:      10 * time.Minute,
	}

	ec.Audit = audit.DispatcherConfig{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}

	ec.MFAIssuer = cfg.MFA.Issuer
	ec.MFASealKey = []byte(cfg.MFA.SealKey)
	ec.MFAChallengeTTL = cfg.MFA.ChallengeTTL

	return ec
}

// startSweeps schedules the periodic maintenance jobs: session expiry,
// detector and limiter state trimming, and audit retention.
func startSweeps(engine *authcore.Engine, cfg *config.AppConfig, log zerolog.Logger) *cron.Cron {
	c := cron.New()

	mustAdd(c, "@every 5m", func() {
		n, err := engine.Sessions().SweepExpired(context.Background())
		if err != nil {
			log.Warn().Err(err).Msg("session sweep failed")
			return
		}
		if n > 0 {
			log.Debug().Int("removed", n).Msg("expired sessions swept")
		}
	})

	mustAdd(c, "@every 10m", func() {
		engine.Threat().Sweep()
	})

	mustAdd(c, "@hourly", func() {
		cutoff := time.Now().Add(-cfg.Audit.Retention)
		n, err := engine.Auditor().Prune(context.Background(), cutoff)
		if err != nil {
			log.Warn().Err(err).Msg("audit prune failed")
			return
		}
		if n > 0 {
			log.Debug().Int("removed", n).Msg("audit entries pruned")
		}
	})

	c.Start()
	return c
}

func mustAdd(c *cron.Cron, spec string, fn func()) {
	if _, err := c.AddFunc(spec, fn); err != nil {
		panic(fmt.Sprintf("cron spec %q: %v", spec, err))
	}
}
