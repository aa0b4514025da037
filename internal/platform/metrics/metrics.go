package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	CodesDelivered  prometheus.Counter
	QuotaRejections prometheus.Counter
	Escalations     prometheus.Counter
	MailSeen        prometheus.Counter
	MailIgnored     prometheus.Counter
	PendingRequests prometheus.Gauge
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		CodesDelivered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "codegate_codes_delivered_total",
			Help: "Login codes delivered to requesters",
		}),
		QuotaRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "codegate_quota_rejections_total",
			Help: "Deliveries refused because the requester hit the daily limit",
		}),
		Escalations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "codegate_escalations_total",
			Help: "Codes escalated to the owner for manual resolution",
		}),
		MailSeen: promauto.NewCounter(prometheus.CounterOpts{
			Name: "codegate_mail_messages_total",
			Help: "Mailbox messages handed to the matcher",
		}),
		MailIgnored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "codegate_mail_ignored_total",
			Help: "Mailbox messages discarded as noise or codeless",
		}),
		PendingRequests: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "codegate_pending_requests",
			Help: "Pending requests currently awaiting a code",
		}),
	}
}

// The increment helpers tolerate a nil receiver so tests can run services
// without registering collectors on the default registry.

func (m *Metrics) IncDelivered() {
	if m != nil {
		m.CodesDelivered.Inc()
	}
}

func (m *Metrics) IncQuotaRejected() {
	if m != nil {
		m.QuotaRejections.Inc()
	}
}

func (m *Metrics) IncEscalated() {
	if m != nil {
		m.Escalations.Inc()
	}
}

func (m *Metrics) IncMailSeen() {
	if m != nil {
		m.MailSeen.Inc()
	}
}

func (m *Metrics) IncMailIgnored() {
	if m != nil {
		m.MailIgnored.Inc()
	}
}

func (m *Metrics) SetPending(n int) {
	if m != nil {
		m.PendingRequests.Set(float64(n))
	}
}
