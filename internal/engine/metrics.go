package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics - Prometheus-метрики движка.
//
// * voxel_steps_total - выполненные шаги
// * voxel_step_duration_seconds - длительность шага
// * voxel_interactions_total{action,outcome} - попытки разрушения/установки
// * voxel_blocks - непустые воксели в мире
// * voxel_saves_total{trigger,result} - сохранения
// * voxel_respawns_total - возвраты на спавн после падения
type Metrics struct {
	steps        prometheus.Counter
	stepDuration prometheus.Histogram
	interactions *prometheus.CounterVec
	blocks       prometheus.Gauge
	saves        *prometheus.CounterVec
	respawns     prometheus.Counter
}

// NewMetrics создаёт метрики и регистрирует их в reg. reg == nil оставляет их незарегистрированными.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Name:      "steps_total",
			Help:      "Число выполненных шагов симуляции.",
		}),
		stepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "voxel",
			Name:      "step_duration_seconds",
			Help:      "Длительность одного шага симуляции.",
			Buckets:   []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
		}),
		interactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxel",
			Name:      "interactions_total",
			Help:      "Попытки разрушения и установки блоков по исходам.",
		}, []string{"action", "outcome"}),
		blocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voxel",
			Name:      "blocks",
			Help:      "Количество непустых вокселей в мире.",
		}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxel",
			Name:      "saves_total",
			Help:      "Сохранения мира по источнику и результату.",
		}, []string{"trigger", "result"}),
		respawns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voxel",
			Name:      "respawns_total",
			Help:      "Возвраты игрока на спавн после падения.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.steps, m.stepDuration, m.interactions, m.blocks, m.saves, m.respawns)
	}
	return m
}

// ObserveSave учитывает результат сохранения
func (m *Metrics) ObserveSave(trigger string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.saves.WithLabelValues(trigger, result).Inc()
}
