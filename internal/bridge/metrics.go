package bridge

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the bridge-side prometheus instruments. A nil *Metrics is
// valid and records nothing, which keeps tests quiet.
type Metrics struct {
	agentsConnected prometheus.Gauge
	requestsTotal   prometheus.Counter
	requestFailures prometheus.Counter
	requestTimeouts prometheus.Counter
	agentEvictions  prometheus.Counter
	bytesSent       prometheus.Counter
	bytesReceived   prometheus.Counter
}

// NewMetrics registers the bridge instruments with reg (nil means the
// default registerer).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		agentsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kite_agents_connected",
			Help: "Number of agents currently registered",
		}),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kite_agent_requests_total",
			Help: "Total requests dispatched to agents",
		}),
		requestFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kite_agent_request_failures_total",
			Help: "Agent requests that failed (transport or remote rejection)",
		}),
		requestTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kite_agent_request_timeouts_total",
			Help: "Agent requests that exceeded the dispatch timeout",
		}),
		agentEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kite_agent_evictions_total",
			Help: "Agents removed from the registry after transport failures",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kite_agent_bytes_sent_total",
			Help: "Payload bytes dispatched to agents",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kite_agent_bytes_received_total",
			Help: "Payload bytes received back from agents",
		}),
	}
	reg.MustRegister(
		m.agentsConnected,
		m.requestsTotal,
		m.requestFailures,
		m.requestTimeouts,
		m.agentEvictions,
		m.bytesSent,
		m.bytesReceived,
	)
	return m
}

func (m *Metrics) setAgents(n int) {
	if m != nil {
		m.agentsConnected.Set(float64(n))
	}
}

func (m *Metrics) incRequests() {
	if m != nil {
		m.requestsTotal.Inc()
	}
}

func (m *Metrics) incFailures() {
	if m != nil {
		m.requestFailures.Inc()
	}
}

func (m *Metrics) incTimeouts() {
	if m != nil {
		m.requestTimeouts.Inc()
	}
}

func (m *Metrics) incEvictions() {
	if m != nil {
		m.agentEvictions.Inc()
	}
}

func (m *Metrics) addBytes(sent, received int) {
	if m != nil {
		m.bytesSent.Add(float64(sent))
		m.bytesReceived.Add(float64(received))
	}
}
