package ingestion

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/movie-recommender/backend/internal/metrics"
	"github.com/movie-recommender/backend/internal/storage/models"
	"github.com/movie-recommender/backend/pkg/logger"
)

// MinCatalogSize is the catalog size below which the sample movies are seeded.
const MinCatalogSize = 5

//go:embed sample_movies.json
var sampleCatalog []byte

type sampleMovie struct {
	IMDbID      string  `json:"imdb_id"`
	Title       string  `json:"title"`
	Overview    string  `json:"overview"`
	ReleaseDate string  `json:"release_date"`
	Genres      string  `json:"genres"`
	PosterPath  string  `json:"poster_path"`
	VoteAverage float64 `json:"vote_average"`
	VoteCount   int     `json:"vote_count"`
	Popularity  float64 `json:"popularity"`
	Director    string  `json:"director"`
	Actors      string  `json:"actors"`
}

// SampleMovies returns the built-in catalog tagged with the sample source.
func SampleMovies() ([]models.Movie, error) {
	var raw []sampleMovie
	if err := json.Unmarshal(sampleCatalog, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode sample catalog: %w", err)
	}

	movies := make([]models.Movie, 0, len(raw))
	for _, s := range raw {
		m := models.Movie{
			IMDbID:      s.IMDbID,
			Title:       s.Title,
			Overview:    s.Overview,
			Genres:      s.Genres,
			PosterPath:  s.PosterPath,
			VoteAverage: s.VoteAverage,
			VoteCount:   s.VoteCount,
			Popularity:  s.Popularity,
			Director:    s.Director,
			Actors:      s.Actors,
			DataSource:  sampleSource,
		}
		if t, err := time.Parse("2006-01-02", s.ReleaseDate); err == nil {
			m.ReleaseDate = &t
		}
		movies = append(movies, m)
	}
	return movies, nil
}

type SampleStore interface {
	CountMovies(ctx context.Context) (int, error)
	MovieExists(ctx context.Context, imdbID, dataSource string) (bool, error)
	UpsertMovie(ctx context.Context, movie *models.Movie) (int, error)
}

type SeedResult struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	Added      int    `json:"added"`
	Skipped    int    `json:"skipped"`
	Count      int    `json:"count"`
	ModelReady bool   `json:"model_ready"`
}

// Seeder fills a near-empty catalog with the sample movies so a model can be
// built without an OMDb key. Movies already stored from OMDb are not
// duplicated; a later OMDb load replaces the sample rows.
type Seeder struct {
	store    SampleStore
	builder  ModelBuilder
	onChange func(ctx context.Context)
}

func NewSeeder(store SampleStore, builder ModelBuilder, onChange func(ctx context.Context)) *Seeder {
	return &Seeder{store: store, builder: builder, onChange: onChange}
}

func (s *Seeder) Seed(ctx context.Context) (*SeedResult, error) {
	count, err := s.store.CountMovies(ctx)
	if err != nil {
		return nil, err
	}
	if count >= MinCatalogSize {
		return &SeedResult{
			Status:     "success",
			Message:    fmt.Sprintf("Catalog already holds %d movies", count),
			Count:      count,
			ModelReady: s.builder.EnsureBuilt(ctx, false),
		}, nil
	}

	samples, err := SampleMovies()
	if err != nil {
		return nil, err
	}

	logger.Info("Seeding sample catalog", zap.Int("current", count), zap.Int("samples", len(samples)))

	result := &SeedResult{}
	for i := range samples {
		movie := &samples[i]
		stored := false
		for _, source := range []string{DataSource, sampleSource} {
			ok, err := s.store.MovieExists(ctx, movie.IMDbID, source)
			if err != nil {
				return nil, err
			}
			stored = stored || ok
		}
		if stored {
			result.Skipped++
			continue
		}
		if _, err := s.store.UpsertMovie(ctx, movie); err != nil {
			return nil, err
		}
		result.Added++
		metrics.MoviesIngested.WithLabelValues("sample").Inc()
	}

	if result.Count, err = s.store.CountMovies(ctx); err != nil {
		return nil, err
	}
	result.ModelReady = s.builder.EnsureBuilt(ctx, result.Added > 0)
	if result.Added > 0 && s.onChange != nil {
		s.onChange(ctx)
	}
	result.Status = "success"
	result.Message = fmt.Sprintf("Catalog seeded with %d sample movies, %d movies total", result.Added, result.Count)

	logger.Info("Sample catalog seeded",
		zap.Int("added", result.Added),
		zap.Int("skipped", result.Skipped),
		zap.Int("count", result.Count),
		zap.Bool("model_ready", result.ModelReady),
	)
	return result, nil
}
