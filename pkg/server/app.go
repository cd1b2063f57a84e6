package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	domrepo "LOBFuse/internal/domain/repository"
	"LOBFuse/internal/runner"
	pkgch "LOBFuse/pkg/clickhouse"
	"LOBFuse/pkg/config"
	xhttp "LOBFuse/pkg/http"
	applogger "LOBFuse/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	l           *applogger.Logger
	runner      *runner.Runner
	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
	chClient    *pkgch.Client
	publisher   domrepo.RecordPublisher
	audit       domrepo.AuditLog
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	run *runner.Runner,
	handler xhttp.Handler,
	chClient *pkgch.Client,
	publisher domrepo.RecordPublisher,
	audit domrepo.AuditLog,
) *App {
	return &App{
		cfg:         cfg,
		l:           l,
		runner:      run,
		httpHandler: handler,
		chClient:    chClient,
		publisher:   publisher,
		audit:       audit,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	if err := a.runner.Run(ctx); err != nil {
		a.l.Error("pipeline start error", applogger.Error(err))
		return err
	}
	a.l.Info("pipeline started",
		applogger.String("run_id", a.cfg.RunID),
		applogger.String("symbol", a.cfg.Feed.Symbol),
	)

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown stops ingestion, drains the merger, then closes everything else.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	// feed first, then merger drain; the runner sequences the two phases
	if err := a.runner.Stop(ctx); err != nil {
		a.l.Warn("pipeline stop error", applogger.Error(err))
	}

	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.l.Warn("publisher close error", applogger.Error(err))
		}
	}
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			a.l.Warn("audit close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return nil
}
