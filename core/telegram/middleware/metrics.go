package middleware

import (
	"github.com/m3rciful/suggestbot/core/metrics"

	tele "gopkg.in/telebot.v4"
)

// UpdateMetrics counts every incoming update by kind.
func UpdateMetrics(m *metrics.Metrics) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			m.ObserveUpdate(UpdateKind(c))
			return next(c)
		}
	}
}
