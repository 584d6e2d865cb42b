// Package ingestion pulls movie metadata from OMDb into the catalog and
// triggers a model rebuild when the catalog changes.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/movie-recommender/backend/internal/metrics"
	"github.com/movie-recommender/backend/internal/storage/models"
	"github.com/movie-recommender/backend/pkg/logger"
)

const sampleSource = "sample"

type MovieFetcher interface {
	FetchMovie(ctx context.Context, imdbID string) (*models.Movie, error)
}

type MovieStore interface {
	MovieExists(ctx context.Context, imdbID, dataSource string) (bool, error)
	// ReplaceMovie stores movie and retires the row with the same IMDb id
	// from fromSource in one step, reporting whether such a row existed.
	ReplaceMovie(ctx context.Context, movie *models.Movie, fromSource string) (bool, error)
}

type ModelBuilder interface {
	EnsureBuilt(ctx context.Context, force bool) bool
}

type LoadResult struct {
	Status         string `json:"status"`
	Message        string `json:"message"`
	Added          int    `json:"added"`
	Updated        int    `json:"updated"`
	Replaced       int    `json:"replaced"`
	Skipped        int    `json:"skipped"`
	Failed         int    `json:"failed"`
	TotalProcessed int    `json:"total_processed"`
	TotalUnique    int    `json:"total_unique"`
	ModelRebuilt   bool   `json:"model_rebuilt"`
}

type LoaderConfig struct {
	// Interval is the minimum spacing between OMDb requests.
	Interval time.Duration
	// OnChange runs after a load that changed the catalog.
	OnChange func(ctx context.Context)
}

type Loader struct {
	fetcher  MovieFetcher
	store    MovieStore
	builder  ModelBuilder
	limiter  *rate.Limiter
	onChange func(ctx context.Context)
}

func NewLoader(fetcher MovieFetcher, store MovieStore, builder ModelBuilder, cfg LoaderConfig) *Loader {
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	return &Loader{
		fetcher:  fetcher,
		store:    store,
		builder:  builder,
		limiter:  rate.NewLimiter(limit, 1),
		onChange: cfg.OnChange,
	}
}

// Load fetches every id and stores it under the omdb source. Ids already
// stored from OMDb are skipped unless force is set; a sample movie with the
// same IMDb id is replaced. Individual failures are counted, not returned.
func (l *Loader) Load(ctx context.Context, imdbIDs []string, force bool) (*LoadResult, error) {
	unique := uniqueIDs(imdbIDs)
	result := &LoadResult{TotalUnique: len(unique)}

	logger.Info("Loading movies from OMDb",
		zap.Int("ids", len(unique)),
		zap.Bool("force_refresh", force),
	)

	for i, imdbID := range unique {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.TotalProcessed++
		if result.TotalProcessed%10 == 0 {
			logger.Info("Load progress", zap.Int("processed", result.TotalProcessed), zap.Int("total", len(unique)))
		}

		existing, err := l.store.MovieExists(ctx, imdbID, DataSource)
		if err != nil {
			return result, err
		}
		if existing && !force {
			result.Skipped++
			metrics.MoviesIngested.WithLabelValues("skipped").Inc()
			continue
		}

		if err := l.limiter.Wait(ctx); err != nil {
			return result, err
		}

		movie, err := l.fetcher.FetchMovie(ctx, imdbID)
		if err != nil {
			logger.Warn("Failed to fetch movie",
				zap.String("imdb_id", imdbID),
				zap.Int("index", i),
				zap.Error(err),
			)
			result.Failed++
			metrics.MoviesIngested.WithLabelValues("failed").Inc()
			continue
		}

		replaced, err := l.store.ReplaceMovie(ctx, movie, sampleSource)
		if err != nil {
			logger.Error("Failed to store movie", zap.String("imdb_id", imdbID), zap.Error(err))
			result.Failed++
			metrics.MoviesIngested.WithLabelValues("failed").Inc()
			continue
		}
		if replaced {
			result.Replaced++
		}

		if existing {
			result.Updated++
			metrics.MoviesIngested.WithLabelValues("updated").Inc()
		} else {
			result.Added++
			metrics.MoviesIngested.WithLabelValues("added").Inc()
		}
	}

	if result.Added+result.Updated+result.Replaced > 0 {
		result.ModelRebuilt = l.builder.EnsureBuilt(ctx, true)
		if l.onChange != nil {
			l.onChange(ctx)
		}
		result.Status = "success"
		result.Message = fmt.Sprintf("Stored %d movies from OMDb (%d new, %d updated, %d replaced samples). %d already existed, %d failed",
			result.Added+result.Updated, result.Added, result.Updated, result.Replaced, result.Skipped, result.Failed)
	} else {
		result.Status = "warning"
		result.Message = fmt.Sprintf("No movies were stored from OMDb. %d already existed, %d failed",
			result.Skipped, result.Failed)
	}

	logger.Info("OMDb load complete",
		zap.Int("added", result.Added),
		zap.Int("updated", result.Updated),
		zap.Int("replaced", result.Replaced),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Bool("model_rebuilt", result.ModelRebuilt),
	)
	return result, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
