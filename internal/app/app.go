// Package app wires configuration, storage and the domain services into a
// runnable back office.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/beesaferoot/buildops/internal/accounting"
	"github.com/beesaferoot/buildops/internal/banking"
	"github.com/beesaferoot/buildops/internal/changefeed"
	"github.com/beesaferoot/buildops/internal/config"
	"github.com/beesaferoot/buildops/internal/construction"
	"github.com/beesaferoot/buildops/internal/database"
	"github.com/beesaferoot/buildops/internal/disposition"
	"github.com/beesaferoot/buildops/internal/documents"
	"github.com/beesaferoot/buildops/internal/httpapi"
	"github.com/beesaferoot/buildops/internal/investors"
	"github.com/beesaferoot/buildops/internal/migration"
	"github.com/beesaferoot/buildops/internal/pipeline"
	"github.com/beesaferoot/buildops/internal/records"
	"github.com/beesaferoot/buildops/internal/reports"
	"github.com/beesaferoot/buildops/internal/workflow"
)

type App struct {
	Config   *config.Config
	Log      *zap.Logger
	DB       *gorm.DB
	Hub      *changefeed.Hub
	Services httpapi.Services

	store documents.BlobStore
}

// New opens the database and blob store and builds every service. Events
// are queued on the hub, which only delivers them while Serve runs.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := database.Open(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	store, err := documents.NewBlobStore(ctx, cfg.Storage)
	if err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("failed to open document store: %w", err)
	}

	hub := changefeed.NewHub(log)
	wf := workflow.NewEngine(db, log, hub)
	acct := accounting.NewService(db, log, hub)
	cons := construction.NewService(db, log, hub, wf)
	inv := investors.NewService(db, log, hub)

	return &App{
		Config: cfg,
		Log:    log,
		DB:     db,
		Hub:    hub,
		store:  store,
		Services: httpapi.Services{
			Pipeline:     pipeline.NewService(db, log, hub, wf),
			Construction: cons,
			Workflow:     wf,
			Accounting:   acct,
			Banking:      banking.NewService(db, log, hub),
			Investors:    inv,
			Disposition:  disposition.NewService(db, log, hub, wf),
			Documents:    documents.NewService(db, log, hub, store, cfg.Storage.MaxUploadBytes, cfg.Storage.ShareTTL),
			Reports:      reports.NewBuilder(db, log, acct, cons, inv),
			Links:        records.NewLinks(db),
			Hub:          hub,
		},
	}, nil
}

// Migrator returns a migrator over the baseline and the configured
// migrations directory.
func (a *App) Migrator() (*migration.Migrator, error) {
	return NewMigrator(a.DB, a.Log, a.Config.Migrations.Dir)
}

func NewMigrator(db *gorm.DB, log *zap.Logger, dir string) (*migration.Migrator, error) {
	migs, err := migration.All(dir)
	if err != nil {
		return nil, err
	}
	return migration.NewMigrator(db, log, migs...), nil
}

// Serve listens on the configured address until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Config.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Config.Server.Addr, err)
	}
	return a.ServeListener(ctx, ln)
}

// ServeListener runs the HTTP server and the change feed hub on ln. When
// ctx is cancelled the server drains for up to the shutdown timeout.
func (a *App) ServeListener(ctx context.Context, ln net.Listener) error {
	handler, err := httpapi.NewRouter(a.DB, a.Log, a.Services, a.Config.Server)
	if err != nil {
		_ = ln.Close()
		return err
	}
	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
		ErrorLog:     zap.NewStdLog(a.Log.Named("http")),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.Log.Info("listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.Log.Info("shutting down", zap.Duration("timeout", a.Config.Server.ShutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close releases the database connection and the blob store client.
func (a *App) Close() error {
	var errs []error
	if c, ok := a.store.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, database.Close(a.DB))
	_ = a.Log.Sync()
	return errors.Join(errs...)
}
