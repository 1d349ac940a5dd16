package observability

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"rico/core/events"
)

type eventMetrics struct {
	emitted   *prometheus.CounterVec
	transfers *prometheus.CounterVec
	sale      *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking structured events. The
// registry is itself an events.Emitter and can be placed in a Fanout.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "rico",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of emitted events segmented by type.",
			}, []string{"type"}),
			transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "rico",
				Subsystem: "events",
				Name:      "transfers_total",
				Help:      "Count of asset transfers segmented by asset.",
			}, []string{"asset"}),
			sale: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "rico",
				Subsystem: "events",
				Name:      "sale_transfers_total",
				Help:      "Count of sale audit transfers segmented by kind and delivery.",
			}, []string{"kind", "delivered"}),
		}
		prometheus.MustRegister(eventRegistry.emitted, eventRegistry.transfers, eventRegistry.sale)
	})
	return eventRegistry
}

// Emit implements events.Emitter.
func (m *eventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	m.emitted.WithLabelValues(evt.EventType()).Inc()
	switch e := evt.(type) {
	case events.Transfer:
		m.RecordTransfer(e.Asset)
	case events.SaleTransferRecorded:
		m.sale.WithLabelValues(e.Kind, strconv.FormatBool(e.Delivered)).Inc()
	}
}

// RecordTransfer increments the transfer counter for the supplied asset ticker.
func (m *eventMetrics) RecordTransfer(asset string) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(labelAsset(asset)).Inc()
}
