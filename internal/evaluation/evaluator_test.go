package evaluation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/movie-recommender/backend/internal/lifecycle"
	"github.com/movie-recommender/backend/internal/storage/models"
	"github.com/movie-recommender/backend/internal/vectorspace"
)

type movieSource []models.Movie

func (s movieSource) ListMovies(ctx context.Context) ([]models.Movie, error) {
	return s, nil
}

type ratingSource map[int][]models.Rating

func (s ratingSource) ListUserIDs(ctx context.Context) ([]int, error) {
	var ids []int
	for id := 1; id <= len(s)+5; id++ {
		if _, ok := s[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s ratingSource) GetUserRatings(ctx context.Context, userID int) ([]models.Rating, error) {
	return s[userID], nil
}

type nilModel struct{}

func (nilModel) Current() *lifecycle.Model { return nil }

func buildModel(t *testing.T, movies []models.Movie) *lifecycle.Manager {
	t.Helper()
	m := lifecycle.NewManager(movieSource(movies), lifecycle.Config{
		Vector:    vectorspace.DefaultConfig(),
		Tokenizer: vectorspace.RegexpTokenizer{},
	})
	if !m.EnsureBuilt(context.Background(), false) {
		t.Fatal("EnsureBuilt() = false")
	}
	return m
}

func TestEvaluate(t *testing.T) {
	movies := []models.Movie{
		{ID: 1, Title: "Heat", Genres: "Crime|Drama"},
		{ID: 2, Title: "Ronin", Genres: "Crime|Drama"},
		{ID: 3, Title: "Collateral", Genres: "Crime|Drama"},
		{ID: 4, Title: "Alien", Genres: "Horror|Sci-Fi"},
		{ID: 5, Title: "Aliens", Genres: "Action|Sci-Fi"},
	}
	now := time.Unix(1700000000, 0)
	ratings := ratingSource{
		// newest liked is 3, predicted from 1 and 2
		1: {
			{MovieID: 3, Rating: 5, UpdatedAt: now},
			{MovieID: 1, Rating: 4.5, UpdatedAt: now.Add(-time.Hour)},
			{MovieID: 2, Rating: 4, UpdatedAt: now.Add(-2 * time.Hour)},
		},
		// newest liked is 4, predicted from a crime movie
		2: {
			{MovieID: 4, Rating: 5, UpdatedAt: now},
			{MovieID: 1, Rating: 5, UpdatedAt: now.Add(-time.Hour)},
		},
		// one liked movie only
		3: {{MovieID: 5, Rating: 5}, {MovieID: 4, Rating: 1}},
	}

	ev := NewEvaluator(buildModel(t, movies), ratings, 4.0)
	report, err := ev.Evaluate(context.Background(), 1)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if report.UsersEvaluated != 2 || report.UsersSkipped != 1 {
		t.Errorf("evaluated/skipped = %d/%d, want 2/1", report.UsersEvaluated, report.UsersSkipped)
	}
	if report.Hits != 1 || report.HitRate != 0.5 || report.MeanReciprocalRank != 0.5 {
		t.Errorf("report = %+v, want one hit out of two", report)
	}
	if report.CatalogCoverage <= 0 || report.CatalogCoverage > 1 {
		t.Errorf("CatalogCoverage = %v", report.CatalogCoverage)
	}
}

func TestEvaluateErrors(t *testing.T) {
	ev := NewEvaluator(nilModel{}, ratingSource{}, 4.0)
	if _, err := ev.Evaluate(context.Background(), 5); !errors.Is(err, ErrModelNotReady) {
		t.Errorf("Evaluate() error = %v, want ErrModelNotReady", err)
	}

	ev = NewEvaluator(buildModel(t, []models.Movie{{ID: 1, Title: "Heat"}}), ratingSource{}, 4.0)
	if _, err := ev.Evaluate(context.Background(), 0); err == nil {
		t.Error("Evaluate() with k=0 returned nil error")
	}
}
