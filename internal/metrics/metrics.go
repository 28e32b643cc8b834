package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hybrid_backup"

var (
	// runsTotal counts finished runs. Labels: status (success, failed)
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "run",
		Name:      "total",
		Help:      "Total finished backup runs by terminal status",
	}, []string{"status"})

	// runDuration measures wall time of a full run. Labels: status
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "run",
		Name:      "duration_seconds",
		Help:      "Backup run duration in seconds",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	}, []string{"status"})

	// runsRejected counts attempts turned away by the run lock. Labels: trigger (schedule, manual)
	runsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "run",
		Name:      "rejected_total",
		Help:      "Backup attempts rejected because a run was already in progress",
	}, []string{"trigger"})

	// recordsTotal counts synchronized records. Labels: collection, result (processed, failed)
	recordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "records_total",
		Help:      "Source records synchronized by collection and result",
	}, []string{"collection", "result"})

	orphansReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "run",
		Name:      "orphans_reclaimed_total",
		Help:      "Stale running entries marked failed on lock acquisition",
	})

	reportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "report",
		Name:      "total",
		Help:      "Weekly report runs by result",
	}, []string{"result"})
)

// ObserveRun records a finished run.
func ObserveRun(status string, seconds float64) {
	runsTotal.WithLabelValues(status).Inc()
	runDuration.WithLabelValues(status).Observe(seconds)
}

func RunRejected(trigger string) {
	runsRejected.WithLabelValues(trigger).Inc()
}

// ObserveCollection adds the counts of one collection pass. Messages are
// reported under their own collection label.
func ObserveCollection(collection string, processed, failed int) {
	recordsTotal.WithLabelValues(collection, "processed").Add(float64(processed))
	recordsTotal.WithLabelValues(collection, "failed").Add(float64(failed))
}

func OrphansReclaimed(n int) {
	orphansReclaimed.Add(float64(n))
}

func ObserveReport(err error) {
	result := "success"
	if err != nil {
		result = "failed"
	}
	reportsTotal.WithLabelValues(result).Inc()
}
