package ingestion

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/movie-recommender/backend/pkg/retry"
)

const shawshank = `{
	"Title": "The Shawshank Redemption",
	"Released": "14 Oct 1994",
	"Genre": "Drama, Crime",
	"Director": "Frank Darabont",
	"Actors": "Tim Robbins, Morgan Freeman",
	"Plot": "Two imprisoned men bond over a number of years.",
	"Poster": "N/A",
	"imdbRating": "9.3",
	"imdbVotes": "2,800,000",
	"imdbID": "tt0111161",
	"Response": "True"
}`

func newTestClient(t *testing.T, handler http.HandlerFunc, attempts int) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(ClientConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL + "/",
		Timeout: time.Second,
		Retry: retry.Config{
			MaxAttempts:  attempts,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
		},
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c, &calls
}

func TestFetchMovieMapsFields(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("i") != "tt0111161" || q.Get("apikey") != "test-key" || q.Get("plot") != "full" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		w.Write([]byte(shawshank))
	}, 1)

	m, err := c.FetchMovie(context.Background(), "tt0111161")
	if err != nil {
		t.Fatalf("FetchMovie() error = %v", err)
	}

	if m.Title != "The Shawshank Redemption" || m.Director != "Frank Darabont" {
		t.Errorf("FetchMovie() = %+v", m)
	}
	if m.Genres != "Drama|Crime" {
		t.Errorf("Genres = %q, want %q", m.Genres, "Drama|Crime")
	}
	if m.PosterPath != "" {
		t.Errorf("PosterPath = %q, want empty for N/A", m.PosterPath)
	}
	if m.VoteAverage != 9.3 || m.VoteCount != 2800000 || m.Popularity != 2800 {
		t.Errorf("rating fields = %v/%v/%v", m.VoteAverage, m.VoteCount, m.Popularity)
	}
	want := time.Date(1994, 10, 14, 0, 0, 0, 0, time.UTC)
	if m.ReleaseDate == nil || !m.ReleaseDate.Equal(want) {
		t.Errorf("ReleaseDate = %v, want %v", m.ReleaseDate, want)
	}
	if m.DataSource != DataSource || m.IMDbID != "tt0111161" {
		t.Errorf("source fields = %q/%q", m.DataSource, m.IMDbID)
	}
}

func TestFetchMovieNoData(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Title":"Obscure","Released":"N/A","Genre":"N/A","Director":"N/A",
			"Actors":"N/A","Plot":"N/A","Poster":"N/A","imdbRating":"N/A","imdbVotes":"N/A",
			"imdbID":"tt0000001","Response":"True"}`))
	}, 1)

	m, err := c.FetchMovie(context.Background(), "tt0000001")
	if err != nil {
		t.Fatalf("FetchMovie() error = %v", err)
	}
	if m.Overview != "" || m.Director != "" || m.Actors != "" || m.ReleaseDate != nil {
		t.Errorf("N/A fields not cleared: %+v", m)
	}
	if m.Genres != "N/A" || m.Popularity != 0 || m.VoteCount != 0 {
		t.Errorf("FetchMovie() = %+v", m)
	}
}

func TestFetchMovieErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    []int
		body      string
		wantErr   error
		wantCalls int32
	}{
		{
			name:      "not found is final",
			status:    []int{200},
			body:      `{"Response":"False","Error":"Incorrect IMDb ID."}`,
			wantErr:   ErrMovieNotFound,
			wantCalls: 1,
		},
		{
			name:      "unauthorized is final",
			status:    []int{401},
			wantCalls: 1,
		},
		{
			name:      "server errors are retried",
			status:    []int{500, 503, 500},
			wantCalls: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n atomic.Int32
			c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				i := int(n.Add(1)) - 1
				if i >= len(tt.status) {
					i = len(tt.status) - 1
				}
				w.WriteHeader(tt.status[i])
				w.Write([]byte(tt.body))
			}, 3)

			_, err := c.FetchMovie(context.Background(), "tt0000002")
			if err == nil {
				t.Fatal("FetchMovie() error = nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("FetchMovie() error = %v, want %v", err, tt.wantErr)
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("server calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestFetchMovieRecoversAfterRetry(t *testing.T) {
	var n atomic.Int32
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(shawshank))
	}, 3)

	if _, err := c.FetchMovie(context.Background(), "tt0111161"); err != nil {
		t.Fatalf("FetchMovie() error = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("server calls = %d, want 2", calls.Load())
	}
}

func TestCircuitBreakerOpens(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, 1)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		c.FetchMovie(ctx, "tt0000003")
	}
	_, err := c.FetchMovie(ctx, "tt0000003")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("FetchMovie() error = %v, want open breaker", err)
	}
	if calls.Load() != 5 {
		t.Errorf("server calls = %d, want 5", calls.Load())
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("NewClient() error = %v, want ErrMissingAPIKey", err)
	}
}
