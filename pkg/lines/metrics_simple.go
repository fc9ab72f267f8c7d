//go:build !prometheus
// +build !prometheus

package lines

import (
	"sync/atomic"
)

// metricsCollector облегченная версия сборщика метрик без внешних
// зависимостей. Полная Prometheus версия включается build-тегом
// prometheus (см. metrics.go).
type metricsCollector struct {
	callsStarted atomic.Uint64
	callsFailed  atomic.Uint64
	callsEnded   atomic.Uint64
	holdTimeouts atomic.Uint64
	activeLines  atomic.Int64
}

func newMetricsCollector() *metricsCollector {
	return &metricsCollector{}
}

func (c *metricsCollector) CallStarted()         { c.callsStarted.Add(1) }
func (c *metricsCollector) CallFailed()          { c.callsFailed.Add(1) }
func (c *metricsCollector) CallEnded()           { c.callsEnded.Add(1) }
func (c *metricsCollector) HoldTimeout()         { c.holdTimeouts.Add(1) }
func (c *metricsCollector) SetActiveLines(n int) { c.activeLines.Store(int64(n)) }

// MetricsSnapshot снимок счетчиков для диагностики
type MetricsSnapshot struct {
	CallsStarted uint64
	CallsFailed  uint64
	CallsEnded   uint64
	HoldTimeouts uint64
	ActiveLines  int64
}

// Metrics возвращает снимок счетчиков менеджера
func (m *Manager) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		CallsStarted: m.metrics.callsStarted.Load(),
		CallsFailed:  m.metrics.callsFailed.Load(),
		CallsEnded:   m.metrics.callsEnded.Load(),
		HoldTimeouts: m.metrics.holdTimeouts.Load(),
		ActiveLines:  m.metrics.activeLines.Load(),
	}
}
