package resizer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	invocations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "image_resizer",
		Name:      "invocations_total",
		Help:      "Resize invocations started.",
	})
	invocationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "image_resizer",
		Name:      "invocation_failures_total",
		Help:      "Resize invocations that failed; the notification is redelivered.",
	})
	derivativesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "image_resizer",
		Name:      "derivatives_written_total",
		Help:      "Derivative objects written, pass-through copies included.",
	})
)
