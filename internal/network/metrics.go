package network

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics содержит метрики моста рендера
type Metrics struct {
	connections prometheus.Gauge
	sent        *prometheus.CounterVec
	received    *prometheus.CounterVec
	sentBytes   prometheus.Counter
	dropped     prometheus.Counter
	errors      *prometheus.CounterVec
}

// NewMetrics создаёт метрики и регистрирует их в reg. reg == nil оставляет их незарегистрированными.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bridge",
			Name:      "connections",
			Help:      "Подключённые клиенты рендера.",
		}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridge",
			Name:      "messages_sent_total",
			Help:      "Сообщения, поставленные в очередь клиентам, по типам.",
		}, []string{"type"}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridge",
			Name:      "messages_received_total",
			Help:      "Сообщения, полученные от клиентов, по типам.",
		}, []string{"type"}),
		sentBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bridge",
			Name:      "sent_bytes_total",
			Help:      "Объём отправленных данных.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bridge",
			Name:      "slow_clients_dropped_total",
			Help:      "Клиенты, отключённые из-за переполнения очереди отправки.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bridge",
			Name:      "protocol_errors_total",
			Help:      "Ошибки разбора входящих сообщений.",
		}, []string{"reason"}),
	}

	if reg != nil {
		reg.MustRegister(m.connections, m.sent, m.received, m.sentBytes, m.dropped, m.errors)
	}
	return m
}
