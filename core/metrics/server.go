package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/m3rciful/suggestbot/core/logger"
)

// ShutdownTimeout bounds graceful shutdown of the metrics server.
const ShutdownTimeout = 5 * time.Second

// NewHandler builds the echo instance serving metrics at path and a liveness probe at /healthz.
func NewHandler(m *Metrics, path string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET(path, echo.WrapHandler(promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})))
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return e
}

// Serve runs the metrics endpoint on listen until ctx is done.
func Serve(ctx context.Context, m *Metrics, listen, path string) error {
	e := NewHandler(m, path)

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, logger.CompMetrics, "server.start", slog.String("listen", listen), slog.String("path", path))
		errCh <- e.Start(listen)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn(ctx, logger.CompMetrics, "server.shutdown", logger.Err(err))
		return err
	}
	logger.Info(ctx, logger.CompMetrics, "server.stop")
	return nil
}
