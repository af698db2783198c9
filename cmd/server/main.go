package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/nonetomourn-server/internal/assets"
	"github.com/DoyleJ11/nonetomourn-server/internal/config"
	"github.com/DoyleJ11/nonetomourn-server/internal/httpapi"
	"github.com/DoyleJ11/nonetomourn-server/internal/hub"
	"github.com/DoyleJ11/nonetomourn-server/internal/logger"
	"github.com/DoyleJ11/nonetomourn-server/internal/store"
	"github.com/DoyleJ11/nonetomourn-server/internal/store/gormstore"
	"github.com/DoyleJ11/nonetomourn-server/internal/store/memstore"
	"github.com/DoyleJ11/nonetomourn-server/internal/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, flush, err := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer flush()

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", zap.Error(err))
		flush()
		os.Exit(1)
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.EnsureItem(ctx, store.Item{Name: cfg.StartingItem, AssetPath: cfg.StartingAsset}); err != nil {
		return err
	}

	// The hub outlives the signal context so requests still draining during
	// shutdown can reach their sessions.
	h := hub.NewHub(context.Background(), st, hub.Config{
		Rules:        cfg.WaveRules(),
		StartingItem: cfg.StartingItem,
		PasswordCost: cfg.PasswordCost,
		EndedTTL:     cfg.EndedSessionTTL,
		Log:          log.Named("hub"),
	})
	defer h.Shutdown()
	if _, err := h.Restore(ctx); err != nil {
		return fmt.Errorf("restore sessions: %w", err)
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	srv := &http.Server{
		Handler: httpapi.SetupRoutes(h, assets.New(os.DirFS(cfg.AssetDir), st), log.Named("http")),
	}
	log.Info("listening", zap.String("addr", ln.Addr().String()), zap.String("store", cfg.StoreDriver))
	err = serve(ctx, srv, ln, cfg.ShutdownTimeout, log)
	h.Shutdown()
	return err
}

// serve runs srv on ln until ctx is done, then drains in-flight requests for
// at most timeout.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, timeout time.Duration, log *zap.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (store.Store, error) {
	switch strings.ToLower(cfg.StoreDriver) {
	case config.DriverPostgres:
		return gormstore.Open(ctx, cfg.DatabaseURL, log)
	case config.DriverMemory:
		return memstore.New(), nil
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		return sqlite.Open(ctx, cfg.SQLitePath)
	}
}
