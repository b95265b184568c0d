// Package metrics exposes delivery counters for operators. The worker takes
// the Service interface so tests and minimal deployments can run without a
// Prometheus registry.
package metrics

// Service records delivery events.
type Service interface {
	IncJobsConsumed()
	IncSent()
	IncFailed(outcome string)
	IncRetried()
	IncThrottled(scope string)
	IncDeadLettered(failureType string)
	IncUsageRecorded()
	ObserveSendDuration(seconds float64)
}

// NewNoop returns a Service that records nothing.
func NewNoop() Service {
	return &noopService{}
}

type noopService struct{}

func (*noopService) IncJobsConsumed()            {}
func (*noopService) IncSent()                    {}
func (*noopService) IncFailed(string)            {}
func (*noopService) IncRetried()                 {}
func (*noopService) IncThrottled(string)         {}
func (*noopService) IncDeadLettered(string)      {}
func (*noopService) IncUsageRecorded()           {}
func (*noopService) ObserveSendDuration(float64) {}
