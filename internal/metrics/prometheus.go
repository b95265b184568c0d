package metrics

import "github.com/prometheus/client_golang/prometheus"

// PrometheusService implements Service on top of a Prometheus registry.
type PrometheusService struct {
	jobsConsumedTotal  prometheus.Counter
	sentTotal          prometheus.Counter
	failedTotal        *prometheus.CounterVec
	retriedTotal       prometheus.Counter
	throttledTotal     *prometheus.CounterVec
	deadLetteredTotal  *prometheus.CounterVec
	usageRecordedTotal prometheus.Counter
	sendDuration       prometheus.Histogram
}

// NewPrometheus constructs and registers the worker's collectors.
func NewPrometheus(reg prometheus.Registerer) *PrometheusService {
	s := &PrometheusService{
		jobsConsumedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "delivery_jobs_consumed_total",
			Help: "Number of job records consumed from the jobs topic.",
		}),
		sentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "delivery_messages_sent_total",
			Help: "Number of messages successfully dispatched to the provider.",
		}),
		failedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "delivery_messages_failed_total",
			Help: "Number of permanently failed messages by classified outcome.",
		}, []string{"outcome"}),
		retriedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "delivery_attempts_retried_total",
			Help: "Number of send attempts retried after a throttling signal.",
		}),
		throttledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "delivery_throttled_total",
			Help: "Number of throttling events by scope (local or provider).",
		}, []string{"scope"}),
		deadLetteredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "delivery_dead_lettered_total",
			Help: "Number of jobs published to the dead-letter topic by failure type.",
		}, []string{"failure_type"}),
		usageRecordedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "delivery_usage_recorded_total",
			Help: "Number of billable usage increments booked.",
		}),
		sendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "delivery_send_duration_seconds",
			Help:    "Duration of provider send calls.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		s.jobsConsumedTotal,
		s.sentTotal,
		s.failedTotal,
		s.retriedTotal,
		s.throttledTotal,
		s.deadLetteredTotal,
		s.usageRecordedTotal,
		s.sendDuration,
	)
	return s
}

func (s *PrometheusService) IncJobsConsumed() { s.jobsConsumedTotal.Inc() }
func (s *PrometheusService) IncSent()         { s.sentTotal.Inc() }

func (s *PrometheusService) IncFailed(outcome string) {
	s.failedTotal.WithLabelValues(outcome).Inc()
}

func (s *PrometheusService) IncRetried() { s.retriedTotal.Inc() }

func (s *PrometheusService) IncThrottled(scope string) {
	s.throttledTotal.WithLabelValues(scope).Inc()
}

func (s *PrometheusService) IncDeadLettered(failureType string) {
	s.deadLetteredTotal.WithLabelValues(failureType).Inc()
}

func (s *PrometheusService) IncUsageRecorded() { s.usageRecordedTotal.Inc() }

func (s *PrometheusService) ObserveSendDuration(seconds float64) {
	s.sendDuration.Observe(seconds)
}
