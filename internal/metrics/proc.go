// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var procTerminate = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mediafetch_proc_terminate_total",
	Help: "Signals sent to external process groups",
}, []string{"signal", "result"}) // result=sent|esrch|error

// IncProcTerminate records a signal delivery attempt to a process group.
func IncProcTerminate(signal, result string) {
	procTerminate.WithLabelValues(signal, result).Inc()
}
