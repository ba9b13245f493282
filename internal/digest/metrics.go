package digest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tubedigest",
		Subsystem: "digest",
		Name:      "batch_runs_total",
		Help:      "Number of notification batch runs started",
	})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tubedigest",
		Subsystem: "digest",
		Name:      "batch_duration_seconds",
		Help:      "Notification batch run duration in seconds",
		Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	channelResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tubedigest",
		Subsystem: "digest",
		Name:      "channel_resolutions_total",
		Help:      "Channel feed resolutions by outcome",
	}, []string{"status"})

	emailsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tubedigest",
		Subsystem: "digest",
		Name:      "emails_sent_total",
		Help:      "Digest email deliveries by outcome",
	}, []string{"status"})
)
