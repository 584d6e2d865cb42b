package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ModelBuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "movierec_model_build_duration_seconds",
			Help:    "Time to fit the vector space model and similarity matrix",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	ModelBuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movierec_model_builds_total",
			Help: "Total model build attempts",
		},
		[]string{"status"},
	)

	ModelMovies = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "movierec_model_movies",
			Help: "Movies covered by the current similarity matrix",
		},
	)

	ModelVocabularyTerms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "movierec_model_vocabulary_terms",
			Help: "Terms in the fitted vocabulary",
		},
	)

	RecommendationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "movierec_recommendation_duration_seconds",
			Help:    "Recommendation latency in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"kind"},
	)

	RecommendationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movierec_recommendations_total",
			Help: "Recommendation requests by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movierec_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movierec_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	Sessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "movierec_sessions",
			Help: "Recommendation sessions held in memory",
		},
	)

	MoviesIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "movierec_movies_ingested_total",
			Help: "Movies ingested into the catalog by outcome",
		},
		[]string{"status"},
	)
)

func Init() {
	prometheus.MustRegister(ModelBuildDuration)
	prometheus.MustRegister(ModelBuildsTotal)
	prometheus.MustRegister(ModelMovies)
	prometheus.MustRegister(ModelVocabularyTerms)
	prometheus.MustRegister(RecommendationDuration)
	prometheus.MustRegister(RecommendationsTotal)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(Sessions)
	prometheus.MustRegister(MoviesIngested)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
