package telegram

import (
	"github.com/m3rciful/suggestbot/core/metrics"
	"github.com/m3rciful/suggestbot/core/telegram/middleware"
)

// DefaultMiddlewares builds the shared middleware chain for bots.
// The first entry is the outermost wrapper.
func DefaultMiddlewares(m *metrics.Metrics) []Middleware {
	return []Middleware{
		{Name: "recover", Use: middleware.RecoverMiddleware},
		{Name: "logger", Use: middleware.LoggerMiddleware},
		{Name: "metrics", Use: middleware.UpdateMetrics(m)},
	}
}
