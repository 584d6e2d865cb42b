// Package lifecycle owns the fitted recommendation model: when it is built,
// when it goes stale, and how a rebuilt model replaces the old one.
//
// A Model is never mutated after it is published. Rebuilds assemble a new
// Model off to the side and swap a single pointer, so readers always see an
// index and matrix from the same corpus.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/movie-recommender/backend/internal/features"
	"github.com/movie-recommender/backend/internal/metrics"
	"github.com/movie-recommender/backend/internal/similarity"
	"github.com/movie-recommender/backend/internal/storage/models"
	"github.com/movie-recommender/backend/internal/vectorspace"
	"github.com/movie-recommender/backend/pkg/logger"
	"github.com/movie-recommender/backend/pkg/utils"
)

const DefaultStaleAfter = 30 * time.Minute

type MovieSource interface {
	ListMovies(ctx context.Context) ([]models.Movie, error)
}

// Model is the atomically swapped bundle. Movies[i] is the movie at matrix
// position i.
type Model struct {
	Index       *similarity.Index
	Matrix      *similarity.Matrix
	Movies      []models.Movie
	Vocabulary  int
	Fingerprint string
	BuiltAt     time.Time
}

func (m *Model) Movie(movieID int) (models.Movie, bool) {
	pos, ok := m.Index.Position(movieID)
	if !ok {
		return models.Movie{}, false
	}
	return m.Movies[pos], true
}

type Status struct {
	Ready         bool       `json:"ready"`
	MovieCount    int        `json:"movie_count"`
	LastBuildTime *time.Time `json:"last_build_time,omitempty"`
	Vocabulary    int        `json:"vocabulary_terms"`
	Fingerprint   string     `json:"corpus_fingerprint,omitempty"`
}

type Config struct {
	StaleAfter time.Duration
	Vector     vectorspace.Config
	Tokenizer  vectorspace.Tokenizer
	Workers    int
	// Now is the clock; tests replace it.
	Now func() time.Time
}

type Manager struct {
	source     MovieSource
	vectorizer *vectorspace.Vectorizer
	staleAfter time.Duration
	workers    int
	now        func() time.Time

	current atomic.Pointer[Model]
	buildMu sync.Mutex
	fits    atomic.Int64
}

func NewManager(source MovieSource, cfg Config) *Manager {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		source:     source,
		vectorizer: vectorspace.NewVectorizer(cfg.Vector, cfg.Tokenizer),
		staleAfter: cfg.StaleAfter,
		workers:    cfg.Workers,
		now:        cfg.Now,
	}
}

// Current returns the published model, or nil while unbuilt.
func (m *Manager) Current() *Model {
	return m.current.Load()
}

// Fits counts completed fit computations.
func (m *Manager) Fits() int64 {
	return m.fits.Load()
}

// EnsureBuilt builds when no model exists, when force is set, or when the
// current model is older than the staleness window. It reports whether a
// usable model is in place after the call; a failed rebuild keeps the previous
// model published but still reports false.
func (m *Manager) EnsureBuilt(ctx context.Context, force bool) bool {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()

	cur := m.current.Load()
	if cur != nil && !force && m.now().Sub(cur.BuiltAt) < m.staleAfter {
		return true
	}

	model, err := m.build(ctx)
	if err != nil {
		metrics.ModelBuildsTotal.WithLabelValues("failure").Inc()
		logger.Error("Failed to build recommendation model",
			zap.Error(err),
			zap.Bool("forced", force),
			zap.Bool("previous_model_kept", cur != nil),
		)
		return false
	}

	m.current.Store(model)
	metrics.ModelBuildsTotal.WithLabelValues("success").Inc()
	metrics.ModelMovies.Set(float64(model.Index.Len()))
	metrics.ModelVocabularyTerms.Set(float64(model.Vocabulary))
	return true
}

func (m *Manager) build(ctx context.Context) (*Model, error) {
	start := time.Now()

	movies, err := m.source.ListMovies(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load movies: %w", err)
	}
	if len(movies) == 0 {
		return nil, vectorspace.ErrEmptyCorpus
	}

	logger.Info("Building recommendation model", zap.Int("movies", len(movies)))

	corpus := features.Build(movies)

	index, err := similarity.NewIndex(corpus.IDs)
	if err != nil {
		return nil, err
	}

	fitted, vectors, err := m.vectorizer.FitTransform(corpus.Blobs)
	if err != nil {
		return nil, fmt.Errorf("failed to fit vector space: %w", err)
	}
	m.fits.Add(1)

	matrix, err := similarity.Compute(ctx, vectors, m.workers)
	if err != nil {
		return nil, err
	}

	model := &Model{
		Index:       index,
		Matrix:      matrix,
		Movies:      movies,
		Vocabulary:  fitted.VocabularySize(),
		Fingerprint: utils.Fingerprint(corpus.Blobs),
		BuiltAt:     m.now(),
	}

	elapsed := time.Since(start)
	metrics.ModelBuildDuration.Observe(elapsed.Seconds())
	logger.Info("Successfully built recommendation model",
		zap.Int("movies", len(movies)),
		zap.Int("vocabulary", model.Vocabulary),
		zap.String("fingerprint", model.Fingerprint),
		zap.Duration("duration", elapsed),
	)
	return model, nil
}

func (m *Manager) Status() Status {
	cur := m.current.Load()
	if cur == nil {
		return Status{}
	}
	built := cur.BuiltAt
	return Status{
		Ready:         true,
		MovieCount:    cur.Index.Len(),
		LastBuildTime: &built,
		Vocabulary:    cur.Vocabulary,
		Fingerprint:   cur.Fingerprint,
	}
}
