package reconciler

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// deviceOperations counts every controller and appliance call a pass makes,
// by operation and result. Probes that find a device alive count as success.
var deviceOperations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "registrar_device_operations_total",
		Help: "Number of per-device operations by operation and result.",
	},
	[]string{"operation", "result"},
)

func init() {
	prometheus.MustRegister(
		deviceOperations,
	)
}

func observe(step Step, err error) {
	result := resultSuccess
	if err != nil {
		result = resultFailure
	}
	deviceOperations.WithLabelValues(string(step), result).Inc()
}
