package handlers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/movie-recommender/backend/internal/evaluation"
	"github.com/movie-recommender/backend/internal/lifecycle"
	"github.com/movie-recommender/backend/pkg/logger"
)

type ModelAdmin interface {
	EnsureBuilt(ctx context.Context, force bool) bool
	Status() lifecycle.Status
}

type ModelEvaluator interface {
	Evaluate(ctx context.Context, k int) (*evaluation.Report, error)
}

type ModelHandler struct {
	model     ModelAdmin
	evaluator ModelEvaluator
}

func NewModelHandler(model ModelAdmin, evaluator ModelEvaluator) *ModelHandler {
	return &ModelHandler{model: model, evaluator: evaluator}
}

func (h *ModelHandler) GetStatus(c *fiber.Ctx) error {
	return c.JSON(h.model.Status())
}

// Rebuild forces a fit. A failure keeps serving the previous model, so the
// response carries the status either way.
func (h *ModelHandler) Rebuild(c *fiber.Ctx) error {
	ok := h.model.EnsureBuilt(c.Context(), true)
	status := fiber.StatusOK
	if !ok {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{
		"rebuilt": ok,
		"model":   h.model.Status(),
	})
}

func (h *ModelHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (h *ModelHandler) Ready(c *fiber.Ctx) error {
	st := h.model.Status()
	if !st.Ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not ready",
		})
	}
	return c.JSON(fiber.Map{
		"status":      "ready",
		"movie_count": st.MovieCount,
	})
}

// Evaluate reports leave-one-out quality of the current model, ?k= sized.
func (h *ModelHandler) Evaluate(c *fiber.Ctx) error {
	k := 10
	if raw := c.Query("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			return badRequest(c, "k must be between 1 and 100")
		}
		k = n
	}

	report, err := h.evaluator.Evaluate(c.Context(), k)
	if errors.Is(err, evaluation.ErrModelNotReady) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Model not built"})
	}
	if err != nil {
		logger.Error("Failed to evaluate model", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to evaluate model"})
	}
	return c.JSON(report)
}
