// Package metrics declares the Prometheus series exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ComplaintsCreated counts stored complaints by intake channel.
	ComplaintsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grievance_complaints_created_total",
		Help: "Complaints stored, by source channel",
	}, []string{"source"})

	// EvidenceVerdicts counts evidence uploads by outcome: accept, reject, fail_open.
	EvidenceVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grievance_evidence_verdicts_total",
		Help: "Evidence gate outcomes",
	}, []string{"outcome"})

	// Notifications counts citizen and official notifications by channel and result.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grievance_notifications_total",
		Help: "Notification attempts by channel and result",
	}, []string{"channel", "result"})

	EmailCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grievance_email_cycles_total",
		Help: "Email agent polling cycles by result",
	}, []string{"result"})

	EmailMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grievance_email_messages_total",
		Help: "Unseen emails handled by outcome",
	}, []string{"outcome"})

	EmailCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "grievance_email_cycle_duration_seconds",
		Help:    "Duration of one email polling cycle",
		Buckets: prometheus.DefBuckets,
	})

	// AuditCalls counts audit call lifecycle events: started, failed, resolved.
	AuditCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grievance_audit_calls_total",
		Help: "Audit call lifecycle events",
	}, []string{"event"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grievance_http_requests_total",
		Help: "HTTP requests by route and status",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "grievance_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)
