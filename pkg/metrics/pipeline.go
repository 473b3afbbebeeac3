package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline metrics.
var (
	PhotosProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "photos_processed_total",
			Help:      "Photos run through detection, by outcome",
		},
		[]string{"outcome"}, // "ok" / "detection_failed" / "error"
	)

	Faces = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faces_total",
			Help:      "Detected faces, by resolution",
		},
		[]string{"result"}, // "identified" / "unidentified" / "duplicate"
	)

	MatchDistance = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_distance",
			Help:      "Cosine distance from each face to its nearest gallery embedding",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	Finalizations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finalizations_total",
			Help:      "Finalize calls, by outcome",
		},
		[]string{"outcome"}, // "ok" / "partial" / "rejected" / "not_found" / "error"
	)

	Filings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filings_total",
			Help:      "Photo copies filed into collections, by result",
		},
		[]string{"result"}, // "ok" / "failed"
	)

	GalleryEmbeddings = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gallery_embeddings",
			Help:      "Embeddings currently held in the gallery",
		},
	)

	SessionsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_expired_total",
			Help:      "Sessions dropped by the janitor after their TTL",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(PhotosProcessed)
	prometheus.MustRegister(Faces)
	prometheus.MustRegister(MatchDistance)
	prometheus.MustRegister(Finalizations)
	prometheus.MustRegister(Filings)
	prometheus.MustRegister(GalleryEmbeddings)
	prometheus.MustRegister(SessionsExpired)
}
