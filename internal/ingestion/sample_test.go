package ingestion

import (
	"context"
	"testing"

	"github.com/movie-recommender/backend/internal/storage/models"
)

func TestSampleMovies(t *testing.T) {
	movies, err := SampleMovies()
	if err != nil {
		t.Fatalf("SampleMovies() error = %v", err)
	}
	if len(movies) < MinCatalogSize {
		t.Fatalf("SampleMovies() = %d movies, want at least %d", len(movies), MinCatalogSize)
	}
	for _, m := range movies {
		if m.IMDbID == "" || m.Title == "" || m.Genres == "" || m.ReleaseDate == nil {
			t.Errorf("incomplete sample movie %+v", m)
		}
		if m.DataSource != sampleSource {
			t.Errorf("%s data source = %q, want %q", m.IMDbID, m.DataSource, sampleSource)
		}
	}
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.UpsertMovie(ctx, &models.Movie{IMDbID: "tt1375666", Title: "Inception", DataSource: DataSource})

	builder := &fakeBuilder{}
	changed := 0
	seeder := NewSeeder(store, builder, func(ctx context.Context) { changed++ })

	res, err := seeder.Seed(ctx)
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	samples, _ := SampleMovies()
	if res.Added != len(samples)-1 || res.Skipped != 1 || res.Count != len(samples) || !res.ModelReady {
		t.Errorf("Seed() = %+v", res)
	}
	if ok, _ := store.MovieExists(ctx, "tt1375666", sampleSource); ok {
		t.Error("sample duplicated a movie already loaded from OMDb")
	}
	if builder.forced != 1 || changed != 1 {
		t.Errorf("forced rebuilds = %d, change hooks = %d; want 1 and 1", builder.forced, changed)
	}

	res, err = seeder.Seed(ctx)
	if err != nil {
		t.Fatalf("second Seed() error = %v", err)
	}
	if res.Added != 0 || res.Count != len(samples) {
		t.Errorf("second Seed() = %+v, want no additions", res)
	}
	if builder.forced != 1 || changed != 1 {
		t.Error("second Seed() forced a rebuild of an unchanged catalog")
	}
}

func TestSeededSampleIsReplacedByLoad(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	builder := &fakeBuilder{}
	if _, err := NewSeeder(store, builder, nil).Seed(ctx); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	res, err := NewLoader(&fakeFetcher{}, store, builder, LoaderConfig{}).Load(ctx, []string{"tt0111161"}, false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if res.Added != 1 || res.Replaced != 1 {
		t.Errorf("Load() = %+v, want the sample replaced", res)
	}
	if ok, _ := store.MovieExists(ctx, "tt0111161", sampleSource); ok {
		t.Error("sample row survived the OMDb load")
	}
}
