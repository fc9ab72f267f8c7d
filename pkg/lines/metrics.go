//go:build prometheus
// +build prometheus

package lines

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metricsCollector экспортирует метрики многолинейного менеджера
// в Prometheus. Активируется build-тегом prometheus; без тега
// используется облегченная версия на атомарных счетчиках.
type metricsCollector struct {
	callsStarted prometheus.Counter
	callsFailed  prometheus.Counter
	callsEnded   prometheus.Counter
	holdTimeouts prometheus.Counter
	activeLines  prometheus.Gauge
}

var (
	collectorOnce sync.Once
	collector     *metricsCollector
)

// newMetricsCollector возвращает общий для процесса collector:
// промежуточные метрики регистрируются в default registry один раз
func newMetricsCollector() *metricsCollector {
	collectorOnce.Do(func() {
		collector = buildCollector()
	})
	return collector
}

func buildCollector() *metricsCollector {
	return &metricsCollector{
		callsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "call_control",
			Subsystem: "lines",
			Name:      "calls_started_total",
			Help:      "Количество успешно установленных вызовов",
		}),
		callsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "call_control",
			Subsystem: "lines",
			Name:      "calls_failed_total",
			Help:      "Количество неудачных попыток вызова",
		}),
		callsEnded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "call_control",
			Subsystem: "lines",
			Name:      "calls_ended_total",
			Help:      "Количество завершенных вызовов",
		}),
		holdTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "call_control",
			Subsystem: "lines",
			Name:      "hold_timeouts_total",
			Help:      "Количество hold/unhold без подтверждения транспорта",
		}),
		activeLines: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "call_control",
			Subsystem: "lines",
			Name:      "active_lines",
			Help:      "Текущее количество занятых линий",
		}),
	}
}

func (c *metricsCollector) CallStarted()       { c.callsStarted.Inc() }
func (c *metricsCollector) CallFailed()        { c.callsFailed.Inc() }
func (c *metricsCollector) CallEnded()         { c.callsEnded.Inc() }
func (c *metricsCollector) HoldTimeout()       { c.holdTimeouts.Inc() }
func (c *metricsCollector) SetActiveLines(n int) { c.activeLines.Set(float64(n)) }
