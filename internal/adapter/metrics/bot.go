package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/LittleAndi/AndiBanterBot/internal/domain"
)

// BotMetrics records dispatcher and transport outcomes. It implements
// app.Recorder.
type BotMetrics struct {
	eventsReceived   *prometheus.CounterVec
	eventsFailed     *prometheus.CounterVec
	eventsDropped    *prometheus.CounterVec
	decisions        *prometheus.CounterVec
	deliveries       *prometheus.CounterVec
	reconnects       prometheus.Counter
	reconnectBackoff prometheus.Gauge
	breakerState     *prometheus.GaugeVec
}

func NewBotMetrics(reg prometheus.Registerer) *BotMetrics {
	factory := promauto.With(reg)
	m := &BotMetrics{
		eventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Events accepted by the dispatcher, by kind.",
		}, []string{"kind"}),
		eventsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_failed_total",
			Help:      "Events whose handler returned an error or panicked, by kind.",
		}, []string{"kind"}),
		eventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped because the dispatcher was saturated, by kind.",
		}, []string{"kind"}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Response policy decisions, by decision.",
		}, []string{"decision"}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Outbound chat messages, by mode and result.",
		}, []string{"mode", "result"}),
		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "eventsub_reconnects_total",
			Help:      "EventSub websocket redials after a lost session.",
		}),
		reconnectBackoff: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "eventsub_reconnect_backoff_seconds",
			Help:      "Backoff before the latest EventSub websocket redial.",
		}),
		breakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state by component (0=closed, 1=half-open, 2=open).",
		}, []string{"component"}),
	}
	return m
}

func (m *BotMetrics) EventReceived(kind domain.EventKind) {
	m.eventsReceived.WithLabelValues(string(kind)).Inc()
}

func (m *BotMetrics) EventFailed(kind domain.EventKind) {
	m.eventsFailed.WithLabelValues(string(kind)).Inc()
}

func (m *BotMetrics) EventDropped(kind domain.EventKind) {
	m.eventsDropped.WithLabelValues(string(kind)).Inc()
}

func (m *BotMetrics) Decision(kind domain.DecisionKind) {
	m.decisions.WithLabelValues(kind.String()).Inc()
}

func (m *BotMetrics) Delivered(mode string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.deliveries.WithLabelValues(mode, result).Inc()
}

// Reconnect observes one EventSub websocket redial.
func (m *BotMetrics) Reconnect(backoff time.Duration) {
	m.reconnects.Inc()
	m.reconnectBackoff.Set(backoff.Seconds())
}

// BreakerState returns a state-change observer for the named component.
func (m *BotMetrics) BreakerState(component string) func(state string) {
	return func(state string) {
		m.breakerState.WithLabelValues(component).Set(breakerStateValue(state))
	}
}

func breakerStateValue(state string) float64 {
	switch state {
	case "closed":
		return 0
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return -1
	}
}
