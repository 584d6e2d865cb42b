package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/movie-recommender/backend/internal/storage/models"
	"github.com/movie-recommender/backend/internal/storage/sqlite"
	"github.com/movie-recommender/backend/pkg/logger"
)

type RecommendationHandler struct {
	recommender Recommender
	catalog     CatalogStore
	popular     *Popular
	limits      Limits
}

func NewRecommendationHandler(recommender Recommender, catalog CatalogStore, popular *Popular, limits Limits) *RecommendationHandler {
	return &RecommendationHandler{
		recommender: recommender,
		catalog:     catalog,
		popular:     popular,
		limits:      limits,
	}
}

func (h *RecommendationHandler) GetSimilar(c *fiber.Ctx) error {
	movieID, err := parseID(c, "movieID")
	if err != nil {
		return badRequest(c, "movieID must be a positive integer")
	}
	limit, err := h.limits.parse(c)
	if err != nil {
		return badRequest(c, "limit must be a positive integer")
	}

	if _, err := h.catalog.GetMovie(c.Context(), movieID); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Movie not found"})
		}
		logger.Error("Failed to load movie", zap.Int("movie_id", movieID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load movie"})
	}

	ids := h.recommender.RecommendSimilar(c.Context(), movieID, limit)
	movies, err := h.catalog.GetMoviesByIDs(c.Context(), ids)
	if err != nil {
		logger.Error("Failed to resolve recommendations", zap.String("request_id", requestID(c)), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load recommendations"})
	}

	return c.JSON(fiber.Map{
		"movie_id":        movieID,
		"recommendations": nonNil(movies),
		"count":           len(movies),
	})
}

func (h *RecommendationHandler) GetForUser(c *fiber.Ctx) error {
	userID, err := parseID(c, "userID")
	if err != nil {
		return badRequest(c, "userID must be a positive integer")
	}
	limit, err := h.limits.parse(c)
	if err != nil {
		return badRequest(c, "limit must be a positive integer")
	}

	ids := h.recommender.RecommendForUser(c.Context(), userID, limit)
	return h.respond(c, userID, limit, ids, "personalized")
}

func (h *RecommendationHandler) Refresh(c *fiber.Ctx) error {
	userID, err := parseID(c, "userID")
	if err != nil {
		return badRequest(c, "userID must be a positive integer")
	}
	limit, err := h.limits.parse(c)
	if err != nil {
		return badRequest(c, "limit must be a positive integer")
	}

	ids := h.recommender.RefreshForUser(c.Context(), userID, limit)
	return h.respond(c, userID, limit, ids, "refresh")
}

// respond resolves ids to movies, falling back to popular movies when the
// recommender had nothing for the user.
func (h *RecommendationHandler) respond(c *fiber.Ctx, userID, limit int, ids []int, source string) error {
	var (
		movies []models.Movie
		err    error
	)
	if len(ids) == 0 {
		source = "popular"
		movies, err = h.popular.Movies(c.Context(), limit)
	} else {
		movies, err = h.catalog.GetMoviesByIDs(c.Context(), ids)
	}
	if err != nil {
		logger.Error("Failed to resolve recommendations",
			zap.String("request_id", requestID(c)),
			zap.Int("user_id", userID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load recommendations"})
	}

	logger.Debug("Served recommendations",
		zap.String("request_id", requestID(c)),
		zap.Int("user_id", userID),
		zap.Int("limit", limit),
		zap.String("source", source),
		zap.Int("count", len(movies)),
	)

	return c.JSON(fiber.Map{
		"user_id":         userID,
		"recommendations": nonNil(movies),
		"source":          source,
		"count":           len(movies),
	})
}

func nonNil(movies []models.Movie) []models.Movie {
	if movies == nil {
		return []models.Movie{}
	}
	return movies
}
