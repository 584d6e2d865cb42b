package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/movie-recommender/backend/internal/storage/models"
	"github.com/movie-recommender/backend/pkg/logger"
	"github.com/movie-recommender/backend/pkg/retry"
)

const (
	DefaultBaseURL = "https://www.omdbapi.com/"
	DataSource     = "omdb"

	releasedLayout = "02 Jan 2006"
)

var (
	ErrMovieNotFound = errors.New("movie not found")
	ErrMissingAPIKey = errors.New("omdb api key not configured")
)

// statusError is a non-200 answer from OMDb.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("omdb returned status %d", e.code)
}

type ClientConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Retry   retry.Config
}

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	retryCfg   retry.Config
	breaker    *gobreaker.CircuitBreaker[*omdbMovie]
}

type omdbMovie struct {
	Title      string `json:"Title"`
	Released   string `json:"Released"`
	Genre      string `json:"Genre"`
	Director   string `json:"Director"`
	Actors     string `json:"Actors"`
	Plot       string `json:"Plot"`
	Poster     string `json:"Poster"`
	IMDbRating string `json:"imdbRating"`
	IMDbVotes  string `json:"imdbVotes"`
	IMDbID     string `json:"imdbID"`
	Response   string `json:"Response"`
	Error      string `json:"Error"`
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
		cfg.Retry.Logger = logger.GetLogger()
	}
	cfg.Retry.Retryable = retryable

	breaker := gobreaker.NewCircuitBreaker[*omdbMovie](gobreaker.Settings{
		Name:        "omdb",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrMovieNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retryCfg:   cfg.Retry,
		breaker:    breaker,
	}, nil
}

// retryable retries transport failures and 5xx/429 answers. Misses, client
// errors and an open breaker are final.
func retryable(err error) bool {
	if errors.Is(err, ErrMovieNotFound) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests) ||
		errors.Is(err, context.Canceled) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	return true
}

// FetchMovie looks up a single title by IMDb id.
func (c *Client) FetchMovie(ctx context.Context, imdbID string) (*models.Movie, error) {
	raw, err := retry.DoWithResult(ctx, c.retryCfg, func() (*omdbMovie, error) {
		return c.breaker.Execute(func() (*omdbMovie, error) {
			return c.get(ctx, imdbID)
		})
	})
	if err != nil {
		return nil, err
	}
	return toMovie(raw, imdbID), nil
}

func (c *Client) get(ctx context.Context, imdbID string) (*omdbMovie, error) {
	params := url.Values{}
	params.Set("i", imdbID)
	params.Set("apikey", c.apiKey)
	params.Set("plot", "full")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", imdbID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &statusError{code: resp.StatusCode}
	}

	var movie omdbMovie
	if err := json.NewDecoder(resp.Body).Decode(&movie); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if movie.Response != "True" {
		return nil, fmt.Errorf("%w: %s (%s)", ErrMovieNotFound, imdbID, movie.Error)
	}
	return &movie, nil
}

func clean(value string) string {
	value = strings.TrimSpace(value)
	if models.IsNoData(value) {
		return ""
	}
	return value
}

func truncate(value string, n int) string {
	r := []rune(value)
	if len(r) <= n {
		return value
	}
	return string(r[:n])
}

// toMovie maps an OMDb record onto a catalog movie. "N/A" fields become
// empty, genres become pipe separated and popularity is votes/1000.
func toMovie(raw *omdbMovie, imdbID string) *models.Movie {
	movie := &models.Movie{
		IMDbID:     imdbID,
		Title:      truncate(clean(raw.Title), 255),
		Overview:   truncate(clean(raw.Plot), 2000),
		PosterPath: clean(raw.Poster),
		Director:   truncate(clean(raw.Director), 255),
		Actors:     truncate(clean(raw.Actors), 500),
		DataSource: DataSource,
	}
	if id := clean(raw.IMDbID); id != "" {
		movie.IMDbID = id
	}

	if genre := clean(raw.Genre); genre != "" {
		movie.Genres = strings.Join(models.SplitGenres(genre), "|")
	} else {
		movie.Genres = models.NoData
	}

	if released := clean(raw.Released); released != "" {
		if t, err := time.Parse(releasedLayout, released); err == nil {
			movie.ReleaseDate = &t
		} else {
			logger.Warn("Could not parse release date",
				zap.String("imdb_id", imdbID),
				zap.String("released", released),
			)
		}
	}

	if rating := clean(raw.IMDbRating); rating != "" {
		if v, err := strconv.ParseFloat(rating, 64); err == nil {
			movie.VoteAverage = v
		}
	}
	if votes := clean(raw.IMDbVotes); votes != "" {
		if v, err := strconv.Atoi(strings.ReplaceAll(votes, ",", "")); err == nil {
			movie.VoteCount = v
		}
	}
	if movie.VoteCount > 0 {
		movie.Popularity = float64(movie.VoteCount) / 1000
	}
	return movie
}
