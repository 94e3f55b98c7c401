package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	UploadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lakecharts_uploads_total",
		Help: "Total survey uploads that passed validation and were staged",
	})
	UploadRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lakecharts_upload_rejected_total",
		Help: "Total survey uploads rejected by validation",
	}, []string{"reason"})
	CommitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lakecharts_commits_total",
		Help: "Total successful tile commits",
	})
	CommitFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lakecharts_commit_failures_total",
		Help: "Total commit transactions rolled back",
	})
	CommitDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lakecharts_commit_duration_ms",
		Help:    "Commit transaction duration in milliseconds",
		Buckets: []float64{5, 10, 20, 50, 100, 200, 500, 1000, 2000},
	})
	StagedSessionsMissTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lakecharts_staged_sessions_miss_total",
		Help: "Commit attempts against unknown or expired upload sessions",
	})
)

func init() {
	prometheus.MustRegister(UploadsTotal)
	prometheus.MustRegister(UploadRejectedTotal)
	prometheus.MustRegister(CommitsTotal)
	prometheus.MustRegister(CommitFailuresTotal)
	prometheus.MustRegister(CommitDurationMs)
	prometheus.MustRegister(StagedSessionsMissTotal)
}

// Handler exposes the default registry for Prometheus scrapes.
func Handler() http.Handler {
	return promhttp.Handler()
}
