package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var editorOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "photobatch_editor_operations_total",
	Help: "Total batch editor load/save operations by outcome",
}, []string{"operation", "outcome"})
