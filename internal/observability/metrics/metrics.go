package metrics

import "github.com/prometheus/client_golang/prometheus"

// ChatMetrics exposes counters/histograms for the chat reply pipeline.
type ChatMetrics struct {
	repliesTotal      *prometheus.CounterVec
	llmLatency        *prometheus.HistogramVec
	leadsCreatedTotal *prometheus.CounterVec
	feedEventsTotal   *prometheus.CounterVec
}

func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		repliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "chat",
			Name:      "replies_total",
			Help:      "Total chat replies produced",
		}, []string{"role", "status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "concierge",
			Subsystem: "chat",
			Name:      "llm_latency_seconds",
			Help:      "Latency of LLM completions",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		leadsCreatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "leads",
			Name:      "created_total",
			Help:      "Total leads created or refreshed",
		}, []string{"origin"}),
		feedEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "feed",
			Name:      "events_total",
			Help:      "Total change feed events published",
		}, []string{"table", "action"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.repliesTotal, m.llmLatency, m.leadsCreatedTotal, m.feedEventsTotal)
	return m
}

func (m *ChatMetrics) ObserveReply(role, status string) {
	if m == nil {
		return
	}
	m.repliesTotal.WithLabelValues(role, status).Inc()
}

func (m *ChatMetrics) ObserveLLMLatency(provider string, seconds float64) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(provider).Observe(seconds)
}

func (m *ChatMetrics) ObserveLeadCreated(origin string) {
	if m == nil {
		return
	}
	m.leadsCreatedTotal.WithLabelValues(origin).Inc()
}

func (m *ChatMetrics) ObserveFeedEvent(table, action string) {
	if m == nil {
		return
	}
	m.feedEventsTotal.WithLabelValues(table, action).Inc()
}
