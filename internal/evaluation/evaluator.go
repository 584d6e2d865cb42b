// Package evaluation measures how well the similarity model predicts what
// users go on to like, by holding out each user's most recent liked movie.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/movie-recommender/backend/internal/lifecycle"
	"github.com/movie-recommender/backend/internal/storage/models"
	"github.com/movie-recommender/backend/pkg/logger"
)

var ErrModelNotReady = errors.New("recommendation model not built")

type ModelSource interface {
	Current() *lifecycle.Model
}

type RatingSource interface {
	ListUserIDs(ctx context.Context) ([]int, error)
	GetUserRatings(ctx context.Context, userID int) ([]models.Rating, error)
}

type Evaluator struct {
	models        ModelSource
	ratings       RatingSource
	likeThreshold float64
}

type Report struct {
	UsersEvaluated     int     `json:"users_evaluated"`
	UsersSkipped       int     `json:"users_skipped"`
	K                  int     `json:"k"`
	Hits               int     `json:"hits"`
	HitRate            float64 `json:"hit_rate"`
	MeanReciprocalRank float64 `json:"mean_reciprocal_rank"`
	CatalogCoverage    float64 `json:"catalog_coverage"`
	AvgListSimilarity  float64 `json:"avg_list_similarity"`
}

func NewEvaluator(models ModelSource, ratings RatingSource, likeThreshold float64) *Evaluator {
	return &Evaluator{
		models:        models,
		ratings:       ratings,
		likeThreshold: likeThreshold,
	}
}

// Evaluate runs leave-one-out over every user with at least two liked
// movies. The newest liked movie is hidden; the rest seed a deterministic
// top-k list scored by summed similarity.
func (e *Evaluator) Evaluate(ctx context.Context, k int) (*Report, error) {
	model := e.models.Current()
	if model == nil {
		return nil, ErrModelNotReady
	}
	if k < 1 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	users, err := e.ratings.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	logger.Info("Running recommendation evaluation", zap.Int("users", len(users)), zap.Int("k", k))

	report := &Report{K: k}
	covered := make(map[int]struct{})
	var totalRR, totalSim float64
	lists := 0

	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ratings, err := e.ratings.GetUserRatings(ctx, userID)
		if err != nil {
			logger.Error("Failed to load ratings", zap.Int("user_id", userID), zap.Error(err))
			report.UsersSkipped++
			continue
		}

		var liked []models.Rating
		for _, r := range ratings {
			if r.Rating >= e.likeThreshold {
				if _, ok := model.Index.Position(r.MovieID); ok {
					liked = append(liked, r)
				}
			}
		}
		if len(liked) < 2 {
			report.UsersSkipped++
			continue
		}

		heldOut := liked[0].MovieID
		exclude := make(map[int]struct{}, len(ratings))
		for _, r := range ratings {
			if r.MovieID != heldOut {
				exclude[r.MovieID] = struct{}{}
			}
		}

		top := topK(model, liked[1:], exclude, k)
		report.UsersEvaluated++
		for rank, pos := range top {
			covered[pos] = struct{}{}
			if model.Index.MovieID(pos) == heldOut {
				report.Hits++
				totalRR += 1 / float64(rank+1)
			}
		}
		if len(top) > 1 {
			totalSim += listSimilarity(model, top)
			lists++
		}
	}

	if report.UsersEvaluated > 0 {
		report.HitRate = float64(report.Hits) / float64(report.UsersEvaluated)
		report.MeanReciprocalRank = totalRR / float64(report.UsersEvaluated)
	}
	if n := model.Index.Len(); n > 0 {
		report.CatalogCoverage = float64(len(covered)) / float64(n)
	}
	if lists > 0 {
		report.AvgListSimilarity = totalSim / float64(lists)
	}

	logger.Info("Recommendation evaluation completed",
		zap.Int("evaluated", report.UsersEvaluated),
		zap.Int("skipped", report.UsersSkipped),
		zap.Float64("hit_rate", report.HitRate),
		zap.Float64("mrr", report.MeanReciprocalRank),
	)
	return report, nil
}

// topK returns matrix positions ordered by summed similarity to the seeds,
// ties broken by position.
func topK(model *lifecycle.Model, seeds []models.Rating, exclude map[int]struct{}, k int) []int {
	n := model.Index.Len()
	scores := make([]float64, n)
	for _, s := range seeds {
		sp, _ := model.Index.Position(s.MovieID)
		for pos, v := range model.Matrix.Row(sp) {
			scores[pos] += float64(v)
		}
	}

	candidates := make([]int, 0, n)
	for pos := 0; pos < n; pos++ {
		if _, ok := exclude[model.Index.MovieID(pos)]; ok {
			continue
		}
		candidates = append(candidates, pos)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return scores[candidates[i]] > scores[candidates[j]]
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

// listSimilarity is the mean pairwise similarity inside one list. Lower
// means a more varied list.
func listSimilarity(model *lifecycle.Model, positions []int) float64 {
	var sum float64
	pairs := 0
	for i := 0; i < len(positions); i++ {
		for j := i + 1; j < len(positions); j++ {
			sum += float64(model.Matrix.At(positions[i], positions[j]))
			pairs++
		}
	}
	return sum / float64(pairs)
}
