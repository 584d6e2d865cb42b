package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/movie-recommender/backend/internal/middleware/validation"
	"github.com/movie-recommender/backend/internal/storage/models"
	"github.com/movie-recommender/backend/internal/storage/sqlite"
	"github.com/movie-recommender/backend/pkg/logger"
)

type RatingStore interface {
	UpsertRating(ctx context.Context, rating *models.Rating) error
	GetUserRatings(ctx context.Context, userID int) ([]models.Rating, error)
	DeleteRating(ctx context.Context, userID, movieID int) (bool, error)
}

type RatingHandler struct {
	ratings RatingStore
	catalog CatalogStore
}

func NewRatingHandler(ratings RatingStore, catalog CatalogStore) *RatingHandler {
	return &RatingHandler{ratings: ratings, catalog: catalog}
}

func (h *RatingHandler) PutRating(c *fiber.Ctx) error {
	userID, err := parseID(c, "userID")
	if err != nil {
		return badRequest(c, "userID must be a positive integer")
	}

	req, ok := c.Locals(validation.RatingRequestKey).(*validation.RatingRequest)
	if !ok {
		req = &validation.RatingRequest{}
		if err := c.BodyParser(req); err != nil {
			return badRequest(c, "Invalid request body")
		}
		if err := validation.Struct(req); err != nil {
			return badRequest(c, err.Error())
		}
	}

	if _, err := h.catalog.GetMovie(c.Context(), req.MovieID); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Movie not found"})
		}
		logger.Error("Failed to load movie", zap.Int("movie_id", req.MovieID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save rating"})
	}

	rating := &models.Rating{
		UserID:  userID,
		MovieID: req.MovieID,
		Rating:  req.Rating,
		Review:  req.Review,
	}
	if err := h.ratings.UpsertRating(c.Context(), rating); err != nil {
		logger.Error("Failed to save rating",
			zap.String("request_id", requestID(c)),
			zap.Int("user_id", userID),
			zap.Int("movie_id", req.MovieID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save rating"})
	}
	return c.JSON(rating)
}

func (h *RatingHandler) GetRatings(c *fiber.Ctx) error {
	userID, err := parseID(c, "userID")
	if err != nil {
		return badRequest(c, "userID must be a positive integer")
	}

	ratings, err := h.ratings.GetUserRatings(c.Context(), userID)
	if err != nil {
		logger.Error("Failed to load ratings", zap.Int("user_id", userID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load ratings"})
	}
	if ratings == nil {
		ratings = []models.Rating{}
	}
	return c.JSON(fiber.Map{
		"user_id": userID,
		"ratings": ratings,
		"count":   len(ratings),
	})
}

func (h *RatingHandler) DeleteRating(c *fiber.Ctx) error {
	userID, err := parseID(c, "userID")
	if err != nil {
		return badRequest(c, "userID must be a positive integer")
	}
	movieID, err := parseID(c, "movieID")
	if err != nil {
		return badRequest(c, "movieID must be a positive integer")
	}

	deleted, err := h.ratings.DeleteRating(c.Context(), userID, movieID)
	if err != nil {
		logger.Error("Failed to delete rating", zap.Int("user_id", userID), zap.Int("movie_id", movieID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete rating"})
	}
	if !deleted {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Rating not found"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
