package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the daemon's prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	MessagesSent         prometheus.Counter
	MessagesRead         prometheus.Counter
	ConversationsCreated *prometheus.CounterVec
	DirectoryRefreshes   prometheus.Counter
	WebhookDeliveries    *prometheus.CounterVec
	HTTPRequests         *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "huddle_messages_sent_total",
			Help: "Messages appended to conversation feeds.",
		}),
		MessagesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "huddle_messages_read_total",
			Help: "Messages marked read by a recipient.",
		}),
		ConversationsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_conversations_created_total",
			Help: "Conversations created, by kind.",
		}, []string{"kind"}),
		DirectoryRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "huddle_directory_refreshes_total",
			Help: "Directory snapshot refreshes triggered by roster changes.",
		}),
		WebhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_webhook_deliveries_total",
			Help: "Webhook delivery attempts, by outcome.",
		}, []string{"outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_http_requests_total",
			Help: "HTTP requests served, by route and status code.",
		}, []string{"route", "code"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.MessagesSent,
		m.MessagesRead,
		m.ConversationsCreated,
		m.DirectoryRefreshes,
		m.WebhookDeliveries,
		m.HTTPRequests,
	)
	return m
}

// Handler exposes the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
