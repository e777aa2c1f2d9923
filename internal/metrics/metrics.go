package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "realtime"

// Metrics holds the client's Prometheus collectors.
type Metrics struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	registered bool

	framesReceived  prometheus.Counter
	malformedFrames prometheus.Counter
	transportErrors prometheus.Counter
	reconnects      prometheus.Counter
	state           *prometheus.GaugeVec

	routedEvents   *prometheus.CounterVec
	droppedEvents  *prometheus.CounterVec
	protocolErrors *prometheus.CounterVec

	archivedEvents prometheus.Counter
	archiveErrors  prometheus.Counter
}

func newCounter(subsystem, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

func newCounterVec(subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// New creates the collectors. They are not registered until Register.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		registerer:      registerer,
		framesReceived:  newCounter("connection", "frames_received_total", "Total text frames received from the transport"),
		malformedFrames: newCounter("connection", "malformed_frames_total", "Total frames dropped because they could not be decoded"),
		transportErrors: newCounter("connection", "transport_errors_total", "Total errors reported by the transport"),
		reconnects:      newCounter("connection", "reconnects_total", "Total automatic reconnect attempts"),
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "connection",
				Name:      "state",
				Help:      "Current connection state (1 for the active state)",
			},
			[]string{"state"},
		),
		routedEvents:   newCounterVec("router", "events_total", "Total events routed, by destination", []string{"kind"}),
		droppedEvents:  newCounterVec("router", "dropped_events_total", "Total events dropped, by reason", []string{"reason"}),
		protocolErrors: newCounterVec("router", "protocol_errors_total", "Total protocol errors raised, by code", []string{"code"}),
		archivedEvents: newCounter("archive", "events_total", "Total events written to the archive"),
		archiveErrors:  newCounter("archive", "errors_total", "Total failed archive batch inserts"),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.framesReceived,
		m.malformedFrames,
		m.transportErrors,
		m.reconnects,
		m.state,
		m.routedEvents,
		m.droppedEvents,
		m.protocolErrors,
		m.archivedEvents,
		m.archiveErrors,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// FrameReceived counts one inbound frame.
func (m *Metrics) FrameReceived() {
	if m == nil {
		return
	}
	m.framesReceived.Inc()
}

// MalformedFrame counts one undecodable frame.
func (m *Metrics) MalformedFrame() {
	if m == nil {
		return
	}
	m.malformedFrames.Inc()
}

// TransportError counts one transport error.
func (m *Metrics) TransportError() {
	if m == nil {
		return
	}
	m.transportErrors.Inc()
}

// Reconnect counts one automatic reconnect attempt.
func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

// ObserveState marks state as the current connection state.
func (m *Metrics) ObserveState(state string) {
	if m == nil {
		return
	}
	m.state.Reset()
	m.state.WithLabelValues(state).Set(1)
}

// EventRouted counts one event delivered to kind ("internal" or "channel").
func (m *Metrics) EventRouted(kind string) {
	if m == nil {
		return
	}
	m.routedEvents.WithLabelValues(kind).Inc()
}

// EventDropped counts one event dropped for reason.
func (m *Metrics) EventDropped(reason string) {
	if m == nil {
		return
	}
	m.droppedEvents.WithLabelValues(reason).Inc()
}

// ProtocolError counts one protocol error with the given code name.
func (m *Metrics) ProtocolError(code string) {
	if m == nil {
		return
	}
	m.protocolErrors.WithLabelValues(code).Inc()
}

// EventsArchived counts n events written to the archive.
func (m *Metrics) EventsArchived(n int) {
	if m == nil {
		return
	}
	m.archivedEvents.Add(float64(n))
}

// ArchiveError counts one failed archive insert.
func (m *Metrics) ArchiveError() {
	if m == nil {
		return
	}
	m.archiveErrors.Inc()
}
