package frontend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/addonbump/addonbump/pkg/config"
	"github.com/addonbump/addonbump/pkg/report"
	"github.com/addonbump/addonbump/pkg/types"
	"github.com/addonbump/addonbump/pkg/update"
)

const shutdownTimeout = 10 * time.Second

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Runner performs one update run.
type Runner interface {
	Run(ctx context.Context, opts update.Options) (*types.RunSummary, error)
}

type errorResponse struct {
	Error string `json:"error"`
}

// Frontend is the daemon surface: a cron schedule and an HTTP trigger, both
// funnelled into the same Runner.
type Frontend struct {
	runner Runner
	base   update.Options
	listen string

	echo *echo.Echo
	cron *cron.Cron

	mu   sync.Mutex
	last *types.RunSummary
}

// New wires the HTTP routes and registers the schedule. An empty schedule
// disables periodic runs.
func New(runner Runner, cfg config.DaemonConfig, base update.Options) (*Frontend, error) {
	f := &Frontend{
		runner: runner,
		base:   base,
		listen: cfg.Listen,
		echo:   echo.New(),
		cron: cron.New(
			cron.WithParser(scheduleParser),
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log.StandardLogger()))),
		),
	}

	if cfg.Schedule != "" {
		if _, err := f.cron.AddFunc(cfg.Schedule, f.scheduledRun); err != nil {
			return nil, fmt.Errorf("invalid daemon.schedule %q: %w", cfg.Schedule, err)
		}
	}

	f.echo.HideBanner = true
	f.echo.HidePort = true
	f.echo.Use(middleware.Recover())
	f.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			log.WithField("status", v.Status).Debugf("%s %s", v.Method, v.URI)
			return nil
		},
	}))

	f.echo.GET("/healthz", f.handleHealth)
	f.echo.POST("/run", f.handleRun)
	f.echo.GET("/runs/last", f.handleLast)
	return f, nil
}

// Handler exposes the HTTP routes.
func (f *Frontend) Handler() http.Handler {
	return f.echo
}

// Serve starts the schedule and the HTTP server and blocks until ctx is done.
// A running update is allowed to finish before Serve returns.
func (f *Frontend) Serve(ctx context.Context) error {
	f.cron.Start()
	log.Infof("daemon listening on %s", f.listen)

	errCh := make(chan error, 1)
	go func() {
		if err := f.echo.Start(f.listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := f.echo.Shutdown(shutdownCtx); err != nil {
		log.Warnf("failed to shut down http server: %v", err)
	}
	<-f.cron.Stop().Done()
	return serveErr
}

func (f *Frontend) scheduledRun() {
	summary, err := f.runner.Run(context.Background(), f.base)
	f.record(summary)
	switch {
	case errors.Is(err, update.ErrRunInProgress):
		log.Info("scheduled run skipped, another run is in progress")
	case err != nil:
		log.Errorf("scheduled run failed: %v", err)
	}
}

func (f *Frontend) record(s *types.RunSummary) {
	if s == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = s
}

func (f *Frontend) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (f *Frontend) handleRun(c echo.Context) error {
	opts, err := ParseOptions(c, f.base)
	if err != nil {
		return c.JSON(http.StatusBadRequest, &errorResponse{Error: err.Error()})
	}

	// The run outlives a client that hangs up.
	summary, err := f.runner.Run(context.WithoutCancel(c.Request().Context()), opts)
	if errors.Is(err, update.ErrRunInProgress) {
		return c.JSON(http.StatusConflict, &errorResponse{Error: err.Error()})
	}
	f.record(summary)
	if summary == nil {
		if err == nil {
			err = errors.New("run produced no summary")
		}
		return c.JSON(http.StatusInternalServerError, &errorResponse{Error: err.Error()})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, report.View(summary))
	}
	return c.JSON(http.StatusOK, report.View(summary))
}

func (f *Frontend) handleLast(c echo.Context) error {
	f.mu.Lock()
	last := f.last
	f.mu.Unlock()
	if last == nil {
		return c.JSON(http.StatusNotFound, &errorResponse{Error: "no run recorded yet"})
	}
	return c.JSON(http.StatusOK, report.View(last))
}
