package validation

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	RatingRequestKey = "rating_request"
	LoadRequestKey   = "load_request"
)

var (
	imdbIDPattern = regexp.MustCompile(`^tt\d{7,8}$`)
	xssPattern    = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

	validate = newValidator()
)

type RatingRequest struct {
	MovieID int     `json:"movie_id" validate:"required,gt=0"`
	Rating  float64 `json:"rating" validate:"gte=0.5,lte=5,half_step"`
	Review  string  `json:"review" validate:"max=2000"`
}

type LoadRequest struct {
	IMDbIDs      []string `json:"imdb_ids" validate:"max=500,dive,imdb_id"`
	ForceRefresh bool     `json:"force_refresh"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("half_step", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return math.Mod(f*2, 1) == 0
	})
	v.RegisterValidation("imdb_id", func(fl validator.FieldLevel) bool {
		return imdbIDPattern.MatchString(fl.Field().String())
	})
	return v
}

// Struct validates v against its tags and flattens failures into one
// readable error.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

type Config struct {
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware rejects unsupported content types and pre-validates the JSON
// bodies of rating writes and catalog loads, storing the parsed request in
// Locals for the handler.
func Middleware(cfg Config) fiber.Handler {
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		method := c.Method()
		if method != fiber.MethodPost && method != fiber.MethodPut {
			return c.Next()
		}

		if contentType := c.Get(fiber.HeaderContentType); contentType != "" && len(c.Body()) > 0 {
			allowed := false
			for _, t := range cfg.AllowedContentTypes {
				if strings.Contains(contentType, t) {
					allowed = true
					break
				}
			}
			if !allowed {
				return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
					"error": "Unsupported content type",
				})
			}
		}

		path := c.Path()
		switch {
		case method == fiber.MethodPut && strings.HasSuffix(path, "/ratings"):
			var req RatingRequest
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}
			req.Review = sanitizeString(req.Review)
			if containsXSS(req.Review) {
				cfg.Logger.Warn("Potential XSS attempt in review", zap.String("ip", c.IP()))
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid review content",
				})
			}
			if err := Struct(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": err.Error(),
				})
			}
			c.Locals(RatingRequestKey, &req)

		case method == fiber.MethodPost && strings.HasSuffix(path, "/movies/load"):
			var req LoadRequest
			if len(c.Body()) > 0 {
				if err := c.BodyParser(&req); err != nil {
					return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
						"error": "Invalid JSON format",
					})
				}
			}
			for i, id := range req.IMDbIDs {
				req.IMDbIDs[i] = strings.TrimSpace(id)
			}
			if err := Struct(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": err.Error(),
				})
			}
			c.Locals(LoadRequestKey, &req)
		}

		return c.Next()
	}
}

func containsXSS(input string) bool {
	return xssPattern.MatchString(input)
}

func sanitizeString(input string) string {
	input = strings.TrimSpace(input)
	return strings.ReplaceAll(input, "\x00", "")
}
