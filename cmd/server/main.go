package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/access"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/auth"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/config"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/httpapi"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/invitation"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/notify"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/onboarding"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/securelog"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/stage"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/storage"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/storage/sqlite"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/telemetry"
	"github.com/bureauboudoir-web/boudoir-bloom-theme-sub004/internal/user"
)

func main() {
	if err := run(); err != nil {
		log.Printf("fatal: %v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}

	logger, err := securelog.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: "bloom-server",
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	storeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	store, err := openStore(storeCtx, cfg)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	return serve(ctx, cfg, store, logger)
}

func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	if cfg.StoreDriver == config.DriverSQLite {
		return sqlite.Open(ctx, cfg.SQLitePath)
	}
	return storage.NewPostgresStore(ctx, cfg.DBURL)
}

// newNotifier picks Redis when an address is configured and the log
// otherwise. The returned close func is never nil.
func newNotifier(ctx context.Context, cfg config.Config, logger *securelog.Logger) (notify.Notifier, func(), error) {
	if cfg.RedisAddr == "" {
		return notify.LogNotifier{Log: logger}, func() {}, nil
	}
	rdb, err := notify.NewRedisClient(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, func() {}, err
	}
	n, err := notify.NewRedisNotifier(rdb, cfg.RedisChannel)
	if err != nil {
		_ = rdb.Close()
		return nil, func() {}, err
	}
	return n, func() { _ = rdb.Close() }, nil
}

func loadCatalog(path string) (*onboarding.Catalog, error) {
	if path == "" {
		return onboarding.DefaultCatalog(), nil
	}
	return onboarding.LoadCatalogFile(path)
}

// serve owns store from here on and closes it before returning.
func serve(ctx context.Context, cfg config.Config, store storage.Store, logger *securelog.Logger) (err error) {
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = store.Close(closeCtx)
	}()

	migrateCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := store.Migrate(migrateCtx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	catalog, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load step catalog: %w", err)
	}

	notifier, closeNotifier, err := newNotifier(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init notifier: %w", err)
	}
	defer closeNotifier()
	events := notify.NewDispatcher(notifier, logger, 5*time.Second)
	defer events.Wait()

	userService := user.NewService(store.Users())
	authService := auth.NewService(userService)
	invitationService := invitation.NewService(store.Invitations(), store.Deliveries(), userService, authService, events, logger)
	invitationService.SetTTL(cfg.InvitationTTL)
	accessService := access.NewService(store.Creators(), events)
	onboardingService := onboarding.NewService(store.Onboarding(), catalog, accessService, access.Policy{})
	triageService := stage.NewService(store.Triage())

	api := httpapi.NewHandler(userService, authService, invitationService, accessService, onboardingService, triageService, logger, cfg.AdminToken)
	mux := http.NewServeMux()
	api.Register(mux)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if cfg.TLSCertPath != "" && cfg.TLSKeyPath != "" {
			logger.Info("listening with TLS", "addr", cfg.ListenAddr)
			errCh <- srv.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
			return
		}
		logger.Info("listening", "addr", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err = <-errCh
	case err = <-errCh:
	}

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
