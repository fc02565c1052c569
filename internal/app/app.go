package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const defaultShutdownTimeout = 10 * time.Second

// Worker is a background loop that runs until its context is cancelled.
type Worker struct {
	Name string
	Run  func(ctx context.Context) error
}

// App runs the HTTP server next to the background workers. The first failure
// stops everything.
type App struct {
	echo            *echo.Echo
	addr            string
	workers         []Worker
	ShutdownTimeout time.Duration
}

func New(e *echo.Echo, addr string, workers ...Worker) *App {
	return &App{echo: e, addr: addr, workers: workers, ShutdownTimeout: defaultShutdownTimeout}
}

func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logrus.WithField("addr", a.addr).Infof("%s starting", serviceName)
		if err := a.echo.Start(a.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.ShutdownTimeout)
		defer cancel()

		logrus.Info("shutting down HTTP server")
		if err := a.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	for _, w := range a.workers {
		w := w
		g.Go(func() error {
			if err := w.Run(ctx); err != nil {
				return fmt.Errorf("%s: %w", w.Name, err)
			}
			logrus.WithField("worker", w.Name).Debug("worker exited")
			return nil
		})
	}

	return g.Wait()
}
