package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/gamma-omg/timewise-go/internal/pkg/env"
	"github.com/gamma-omg/timewise-go/internal/pkg/middleware"
	"github.com/gamma-omg/timewise-go/internal/pkg/router"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/attendance"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/config"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/employee"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/lock"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/oauth"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/otc"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/provider"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/rest"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/service"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/session"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/store"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/tenant"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/token"
	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/wfm"
	"github.com/redis/go-redis/v9"
)

const tokenIssuer = "timewise"

type gate interface {
	Acquire(ctx context.Context, key string) (lock.Release, error)
}

type codeProvider interface {
	CreateCode(ctx context.Context, e otc.Entry) (string, error)
	RedeemCode(ctx context.Context, code string) (otc.Entry, error)
}

// backends holds the storage selected by configuration. Closers run in
// reverse order on shutdown.
type backends struct {
	rdb      *redis.Client
	db       *sql.DB
	sessions session.Store
	gate     gate
	mirror   attendance.Mirror
	codes    codeProvider
	closers  []func() error
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			slog.Error("failed to close backend", "error", err)
		}
	}
}

func (b *backends) ping(ctx context.Context) error {
	if b.rdb != nil {
		if err := b.rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
	}
	if b.db != nil {
		if err := b.db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
	}
	return nil
}

func usesRedis(cfg config.Config) bool {
	return cfg.Session.Backend == config.BackendRedis ||
		cfg.Lock.Backend == config.BackendRedis ||
		cfg.OTC.Backend == config.BackendRedis
}

func openBackends(cfg config.Config) (*backends, error) {
	b := &backends{}

	if usesRedis(cfg) {
		b.rdb = redis.NewClient(&redis.Options{
			Addr:     net.JoinHostPort(cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, b.rdb.Close)
	}

	switch cfg.Session.Backend {
	case config.BackendMemory:
		m := session.NewMemory(cfg.Session.MaxKeys, cfg.Session.TTL)
		b.sessions = m
		b.closers = append(b.closers, func() error { m.Close(); return nil })
	case config.BackendRedis:
		b.sessions = session.NewRedis(b.rdb, cfg.Redis.Prefix+"session:", cfg.Session.TTL)
	case config.BackendFile:
		f, err := session.NewFile(cfg.Session.Dir, cfg.Session.TTL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to open session dir: %w", err)
		}
		b.sessions = f
	default:
		b.Close()
		return nil, fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}

	switch cfg.Lock.Backend {
	case config.BackendLocal:
		b.gate = lock.NewLocal()
	case config.BackendRedis:
		b.gate = lock.NewRedis(b.rdb, cfg.Redis.Prefix+"lock:", cfg.Lock.TTL)
	default:
		b.Close()
		return nil, fmt.Errorf("unknown lock backend %q", cfg.Lock.Backend)
	}

	switch cfg.Mirror.Backend {
	case config.BackendSession:
		b.mirror = attendance.NewStoreMirror(b.sessions)
	case config.BackendPostgres:
		db, err := store.NewPostgresDB(store.PostgresConfig{
			Host:     cfg.DB.Host,
			Port:     cfg.DB.Port,
			User:     cfg.DB.User,
			Password: cfg.DB.Password,
			DB:       cfg.DB.Name,
			SSLMode:  cfg.DB.SSLMode,
		})
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to connect to db: %w", err)
		}
		b.db = db
		b.closers = append(b.closers, db.Close)
		b.mirror = store.NewPostgresStore(db)
	default:
		b.Close()
		return nil, fmt.Errorf("unknown mirror backend %q", cfg.Mirror.Backend)
	}

	switch cfg.OTC.Backend {
	case config.BackendLocal:
		b.codes = otc.NewLocal(cfg.OTC.TTL)
	case config.BackendRedis:
		b.codes = otc.NewRedis(b.rdb, cfg.Redis.Prefix+"otc:", cfg.OTC.TTL)
	default:
		b.Close()
		return nil, fmt.Errorf("unknown otc backend %q", cfg.OTC.Backend)
	}

	return b, nil
}

func run(ctx context.Context) error {
	if err := env.Load(); err != nil {
		return fmt.Errorf("failed to load env: %w", err)
	}

	slog.Info("starting timewise service")

	cfg := config.FromEnv()
	b, err := openBackends(cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	auth := oauth.NewAuthenticator()
	if err := registerProviders(ctx, auth, cfg); err != nil {
		return fmt.Errorf("failed to register oauth providers: %w", err)
	}

	remote := wfm.NewClient(wfm.Config{
		SearchURL:       cfg.WFM.SearchURL,
		TaskURL:         cfg.WFM.TaskURL,
		UserSearchURL:   cfg.WFM.UserSearchURL,
		UserSearchToken: cfg.WFM.UserSearchToken,
		Timeout:         cfg.WFM.Timeout,
	})

	att := attendance.NewService(
		attendance.WithRemote(remote),
		attendance.WithMirror(b.mirror),
		attendance.WithGate(b.gate),
		attendance.WithTimeZone(cfg.Attendance.TimeZone),
		attendance.WithRadius(cfg.Attendance.RadiusMeters),
		attendance.WithLocationTimeout(cfg.Attendance.LocationTimeout),
	)

	tokens := token.NewJWTIssuer(token.JwtConfig{
		Secret: token.Secret(cfg.Session.Secret),
		Issuer: tokenIssuer,
		TTL:    cfg.Session.TTL,
	})

	srv := service.NewTimewise(
		service.WithAuthenticator(auth),
		service.WithTenants(tenant.NewResolver(remote)),
		service.WithEmployees(employee.NewChecker(remote, employee.WithPhoneRegion(cfg.WFM.PhoneRegion))),
		service.WithAttendance(att),
		service.WithTokens(tokens),
		service.WithOTC(b.codes),
		service.WithSessions(b.sessions),
		service.WithAppRedirect(cfg.AppURL),
	)

	rt := router.New()
	rt.Use(middleware.Recover(), middleware.Log())
	rt.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rt.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := b.ping(r.Context()); err != nil {
			slog.Warn("readiness check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	v1 := rt.SubRouter("/api/v1")
	v1.Handle("/", rest.NewAPI(srv, tokens))

	httpSrv := &http.Server{
		Addr:         cfg.HTTP.ListenAddr,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		Handler:      rt,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func registerProviders(ctx context.Context, auth *oauth.Authenticator, cfg config.Config) error {
	line, err := provider.NewLine(ctx, provider.LineConfig{
		ChannelID:     cfg.Line.ChannelID,
		ChannelSecret: cfg.Line.ChannelSecret,
		RedirectURL:   cfg.Line.RedirectURL,
		VerifyIDToken: cfg.Line.VerifyIDToken,
		Timeout:       cfg.WFM.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create line oauth provider: %w", err)
	}

	return auth.Use("line", line)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		slog.Error("timewise service terminated with error", "error", err)
		os.Exit(1)
	}
}
