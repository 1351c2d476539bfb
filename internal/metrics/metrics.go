package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CapturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photobooth_captures_total",
		Help: "Total number of captures, by kind (single, strip) and status",
	}, []string{"kind", "status"})

	CaptureDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "photobooth_capture_duration_seconds",
		Help:    "Wall time of a capture, countdown and inter-shot delays included",
		Buckets: []float64{0.1, 0.5, 1, 2, 4, 8, 16, 32},
	}, []string{"kind"})

	FilterDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "photobooth_filter_duration_seconds",
		Help:    "Time spent applying a filter to one frame",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	}, []string{"filter"})

	FramesAcquiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photobooth_frames_acquired_total",
		Help: "Total number of frames read from the camera stream",
	})

	GalleryItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "photobooth_gallery_items",
		Help: "Number of artifacts currently held in the session gallery",
	})

	BusyRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photobooth_busy_rejections_total",
		Help: "Capture requests refused because another capture was running",
	})
)
