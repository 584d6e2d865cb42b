package handlers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/movie-recommender/backend/internal/storage/models"
	"github.com/movie-recommender/backend/internal/storage/sqlite"
	"github.com/movie-recommender/backend/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

var errBadParam = errors.New("invalid parameter")

type Recommender interface {
	RecommendSimilar(ctx context.Context, movieID, limit int) []int
	RecommendForUser(ctx context.Context, userID, limit int) []int
	RefreshForUser(ctx context.Context, userID, limit int) []int
}

type CatalogStore interface {
	GetMovie(ctx context.Context, id int) (*models.Movie, error)
	GetMoviesByIDs(ctx context.Context, ids []int) ([]models.Movie, error)
	PopularMovies(ctx context.Context, limit int) ([]models.Movie, error)
	ListGenres(ctx context.Context) ([]string, error)
	SearchMovies(ctx context.Context, filter sqlite.MovieFilter) ([]models.Movie, int, error)
}

type PopularCache interface {
	GetPopular(ctx context.Context, limit int) ([]int, bool, error)
	SetPopular(ctx context.Context, limit int, movieIDs []int, ttl time.Duration) error
}

// Limits bounds the ?limit= query parameter.
type Limits struct {
	Default int
	Max     int
}

func (l Limits) parse(c *fiber.Ctx) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return l.clamp(0), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errBadParam
	}
	return l.clamp(n), nil
}

// clamp caps n at Max; values below 1 take the default.
func (l Limits) clamp(n int) int {
	if n < 1 {
		n = l.Default
	}
	if n < 1 {
		n = 1
	}
	if l.Max > 0 && n > l.Max {
		n = l.Max
	}
	return n
}

func parseID(c *fiber.Ctx, name string) (int, error) {
	n, err := strconv.Atoi(c.Params(name))
	if err != nil || n < 1 {
		return 0, errBadParam
	}
	return n, nil
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// RequestID tags each request with an id, reusing the caller's header when
// it is a valid UUID.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Locals("request_id", id)
		c.Set(requestIDHeader, id)
		return c.Next()
	}
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals("request_id").(string)
	return id
}

// Popular serves the most popular movies, through the cache when one is
// configured.
type Popular struct {
	catalog CatalogStore
	cache   PopularCache
	ttl     time.Duration
}

func NewPopular(catalog CatalogStore, cache PopularCache, ttl time.Duration) *Popular {
	return &Popular{catalog: catalog, cache: cache, ttl: ttl}
}

func (p *Popular) Movies(ctx context.Context, limit int) ([]models.Movie, error) {
	if p.cache != nil {
		ids, ok, err := p.cache.GetPopular(ctx, limit)
		if err != nil {
			logger.Warn("Popular cache lookup failed", zap.Error(err))
		} else if ok {
			return p.catalog.GetMoviesByIDs(ctx, ids)
		}
	}

	movies, err := p.catalog.PopularMovies(ctx, limit)
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		ids := make([]int, len(movies))
		for i, m := range movies {
			ids[i] = m.ID
		}
		if err := p.cache.SetPopular(ctx, limit, ids, p.ttl); err != nil {
			logger.Warn("Failed to cache popular movies", zap.Error(err))
		}
	}
	return movies, nil
}
