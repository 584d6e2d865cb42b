package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/movie-recommender/backend/internal/storage/models"
)

type fakeFetcher struct {
	missing map[string]bool
	calls   []string
}

func (f *fakeFetcher) FetchMovie(ctx context.Context, imdbID string) (*models.Movie, error) {
	f.calls = append(f.calls, imdbID)
	if f.missing[imdbID] {
		return nil, fmt.Errorf("%w: %s", ErrMovieNotFound, imdbID)
	}
	return &models.Movie{IMDbID: imdbID, Title: "Title " + imdbID, DataSource: DataSource}, nil
}

type storeKey struct{ imdbID, source string }

type fakeStore struct {
	mu     sync.Mutex
	movies map[storeKey]*models.Movie
	nextID int
	// failSource rejects writes of movies from that source.
	failSource string
}

func newFakeStore() *fakeStore {
	return &fakeStore{movies: make(map[storeKey]*models.Movie)}
}

func (s *fakeStore) MovieExists(ctx context.Context, imdbID, dataSource string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.movies[storeKey{imdbID, dataSource}]
	return ok, nil
}

func (s *fakeStore) UpsertMovie(ctx context.Context, movie *models.Movie) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := storeKey{movie.IMDbID, movie.DataSource}
	if existing, ok := s.movies[key]; ok {
		movie.ID = existing.ID
	} else {
		s.nextID++
		movie.ID = s.nextID
	}
	s.movies[key] = movie
	return movie.ID, nil
}

func (s *fakeStore) ReplaceMovie(ctx context.Context, movie *models.Movie, fromSource string) (bool, error) {
	if movie.DataSource == s.failSource {
		return false, errors.New("disk full")
	}
	if _, err := s.UpsertMovie(ctx, movie); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := storeKey{movie.IMDbID, fromSource}
	_, ok := s.movies[key]
	delete(s.movies, key)
	return ok, nil
}

func (s *fakeStore) CountMovies(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.movies), nil
}

type fakeBuilder struct {
	forced int
}

func (b *fakeBuilder) EnsureBuilt(ctx context.Context, force bool) bool {
	if force {
		b.forced++
	}
	return true
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.UpsertMovie(ctx, &models.Movie{IMDbID: "tt1", Title: "Old", DataSource: DataSource})
	store.UpsertMovie(ctx, &models.Movie{IMDbID: "tt2", Title: "Sample", DataSource: sampleSource})

	fetcher := &fakeFetcher{missing: map[string]bool{"tt4": true}}
	builder := &fakeBuilder{}
	changed := 0
	loader := NewLoader(fetcher, store, builder, LoaderConfig{
		OnChange: func(ctx context.Context) { changed++ },
	})

	res, err := loader.Load(ctx, []string{"tt1", "tt2", "tt3", "tt2", "tt4", ""}, false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := LoadResult{
		Status:         "success",
		Added:          2,
		Replaced:       1,
		Skipped:        1,
		Failed:         1,
		TotalProcessed: 4,
		TotalUnique:    4,
		ModelRebuilt:   true,
	}
	got := *res
	got.Message = ""
	if got != want {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
	if builder.forced != 1 || changed != 1 {
		t.Errorf("forced rebuilds = %d, change hooks = %d; want 1 and 1", builder.forced, changed)
	}
	if ok, _ := store.MovieExists(ctx, "tt2", sampleSource); ok {
		t.Error("sample movie was not replaced")
	}
	if len(fetcher.calls) != 3 {
		t.Errorf("fetch calls = %v, want 3 (existing movie skipped)", fetcher.calls)
	}
}

func TestLoadForceRefresh(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	old := &models.Movie{IMDbID: "tt1", Title: "Old", DataSource: DataSource}
	store.UpsertMovie(ctx, old)

	loader := NewLoader(&fakeFetcher{}, store, &fakeBuilder{}, LoaderConfig{})
	res, err := loader.Load(ctx, []string{"tt1"}, true)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if res.Updated != 1 || res.Added != 0 || res.Skipped != 0 {
		t.Errorf("Load() = %+v, want one update", res)
	}
	if m := store.movies[storeKey{"tt1", DataSource}]; m.Title != "Title tt1" || m.ID != old.ID {
		t.Errorf("stored movie = %+v, want refreshed title with id %d", m, old.ID)
	}
}

func TestLoadNothingStored(t *testing.T) {
	builder := &fakeBuilder{}
	loader := NewLoader(&fakeFetcher{missing: map[string]bool{"tt9": true}}, newFakeStore(), builder, LoaderConfig{})

	res, err := loader.Load(context.Background(), []string{"tt9"}, false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if res.Status != "warning" || res.Failed != 1 || res.ModelRebuilt {
		t.Errorf("Load() = %+v", res)
	}
	if builder.forced != 0 {
		t.Error("model rebuilt although nothing changed")
	}
}

func TestLoadCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	loader := NewLoader(&fakeFetcher{}, newFakeStore(), &fakeBuilder{}, LoaderConfig{})
	if _, err := loader.Load(ctx, []string{"tt1"}, false); err == nil {
		t.Error("Load() with canceled context returned nil error")
	}
}

func TestLoadKeepsSampleWhenStoreFails(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.UpsertMovie(ctx, &models.Movie{IMDbID: "tt2", Title: "Sample", DataSource: sampleSource})
	store.failSource = DataSource

	builder := &fakeBuilder{}
	loader := NewLoader(&fakeFetcher{}, store, builder, LoaderConfig{})
	res, err := loader.Load(ctx, []string{"tt2"}, false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if res.Replaced != 0 || res.Failed != 1 || res.Status != "warning" {
		t.Errorf("Load() = %+v, want one failure and no replacement", res)
	}
	if ok, _ := store.MovieExists(ctx, "tt2", sampleSource); !ok {
		t.Error("sample movie removed although the OMDb record was not stored")
	}
	if builder.forced != 0 {
		t.Error("model rebuilt although the catalog did not change")
	}
}
