package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/movie-recommender/backend/internal/ingestion"
	"github.com/movie-recommender/backend/internal/middleware/validation"
	"github.com/movie-recommender/backend/internal/storage/sqlite"
	"github.com/movie-recommender/backend/pkg/logger"
)

type CatalogLoader interface {
	Load(ctx context.Context, imdbIDs []string, force bool) (*ingestion.LoadResult, error)
}

type CatalogSeeder interface {
	Seed(ctx context.Context) (*ingestion.SeedResult, error)
}

const maxPerPage = 100

type MovieHandler struct {
	catalog CatalogStore
	popular *Popular
	loader  CatalogLoader
	seeder  CatalogSeeder
	limits  Limits
}

// NewMovieHandler builds the catalog handler. loader may be nil when no OMDb
// key is configured.
func NewMovieHandler(catalog CatalogStore, popular *Popular, loader CatalogLoader, seeder CatalogSeeder, limits Limits) *MovieHandler {
	return &MovieHandler{
		catalog: catalog,
		popular: popular,
		loader:  loader,
		seeder:  seeder,
		limits:  limits,
	}
}

// ListMovies pages through the catalog with optional genre and text filters.
func (h *MovieHandler) ListMovies(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	perPage := c.QueryInt("per_page", sqlite.DefaultPerPage)
	if page < 1 || perPage < 1 {
		return badRequest(c, "page and per_page must be positive integers")
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	sortBy := c.Query("sort_by", "popularity")
	switch sortBy {
	case "popularity", "title", "release_date", "vote_average":
	default:
		return badRequest(c, "sort_by must be one of popularity, title, release_date, vote_average")
	}
	order := c.Query("order", "desc")
	if order != "asc" && order != "desc" {
		return badRequest(c, "order must be asc or desc")
	}

	movies, total, err := h.catalog.SearchMovies(c.Context(), sqlite.MovieFilter{
		Page:    page,
		PerPage: perPage,
		Genre:   c.Query("genre"),
		Search:  c.Query("search"),
		SortBy:  sortBy,
		Order:   order,
	})
	if err != nil {
		logger.Error("Failed to list movies", zap.String("request_id", requestID(c)), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list movies"})
	}

	return c.JSON(fiber.Map{
		"movies":       nonNil(movies),
		"current_page": page,
		"per_page":     perPage,
		"pages":        (total + perPage - 1) / perPage,
		"total":        total,
	})
}

// Initialize seeds the sample catalog when the catalog is nearly empty and
// makes sure a model is built.
func (h *MovieHandler) Initialize(c *fiber.Ctx) error {
	if h.seeder == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Catalog seeding not configured"})
	}
	result, err := h.seeder.Seed(c.Context())
	if err != nil {
		logger.Error("Failed to seed catalog", zap.String("request_id", requestID(c)), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to initialize catalog"})
	}
	return c.JSON(result)
}

func (h *MovieHandler) GetMovie(c *fiber.Ctx) error {
	movieID, err := parseID(c, "movieID")
	if err != nil {
		return badRequest(c, "movieID must be a positive integer")
	}

	movie, err := h.catalog.GetMovie(c.Context(), movieID)
	if errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Movie not found"})
	}
	if err != nil {
		logger.Error("Failed to load movie", zap.Int("movie_id", movieID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load movie"})
	}
	return c.JSON(movie)
}

func (h *MovieHandler) GetPopular(c *fiber.Ctx) error {
	limit, err := h.limits.parse(c)
	if err != nil {
		return badRequest(c, "limit must be a positive integer")
	}

	movies, err := h.popular.Movies(c.Context(), limit)
	if err != nil {
		logger.Error("Failed to load popular movies", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load movies"})
	}
	return c.JSON(fiber.Map{
		"movies": nonNil(movies),
		"count":  len(movies),
	})
}

func (h *MovieHandler) GetGenres(c *fiber.Ctx) error {
	genres, err := h.catalog.ListGenres(c.Context())
	if err != nil {
		logger.Error("Failed to list genres", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list genres"})
	}
	if genres == nil {
		genres = []string{}
	}
	return c.JSON(fiber.Map{"genres": genres})
}

func (h *MovieHandler) LoadMovies(c *fiber.Ctx) error {
	if h.loader == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "OMDb API key not configured",
		})
	}

	req, ok := c.Locals(validation.LoadRequestKey).(*validation.LoadRequest)
	if !ok {
		req = &validation.LoadRequest{}
		if len(c.Body()) > 0 {
			if err := c.BodyParser(req); err != nil {
				return badRequest(c, "Invalid request body")
			}
		}
		if err := validation.Struct(req); err != nil {
			return badRequest(c, err.Error())
		}
	}

	ids := req.IMDbIDs
	if len(ids) == 0 {
		ids = ingestion.DefaultIMDbIDs
	}

	result, err := h.loader.Load(c.Context(), ids, req.ForceRefresh)
	if err != nil {
		logger.Error("Failed to load movies",
			zap.String("request_id", requestID(c)),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load movies"})
	}
	return c.JSON(result)
}
