package recommend

import (
	"sort"

	"github.com/movie-recommender/backend/internal/lifecycle"
	"github.com/movie-recommender/backend/internal/storage/models"
)

type selectionStrategy int

const (
	selectRecent selectionStrategy = iota
	selectShuffled
)

func (s selectionStrategy) String() string {
	if s == selectShuffled {
		return "shuffled"
	}
	return "recent"
}

func selectionFor(refresh int) selectionStrategy {
	return selectionStrategy(refresh % 2)
}

type rankStrategy int

const (
	rankRecency rankStrategy = iota
	rankPopularity
	rankRating
)

func (r rankStrategy) String() string {
	switch r {
	case rankPopularity:
		return "popularity"
	case rankRating:
		return "rating"
	default:
		return "recency"
	}
}

func rankingFor(refresh int) rankStrategy {
	return rankStrategy(refresh % 3)
}

// selectSeeds orders the liked movies that candidates are drawn from.
// Ratings arrive most recently updated first.
func (e *Engine) selectSeeds(strategy selectionStrategy, liked []models.Rating) []models.Rating {
	seeds := make([]models.Rating, len(liked))
	copy(seeds, liked)

	if strategy == selectShuffled {
		e.rngMu.Lock()
		e.rng.Shuffle(len(seeds), func(i, j int) { seeds[i], seeds[j] = seeds[j], seeds[i] })
		e.rngMu.Unlock()
		return seeds
	}
	sort.SliceStable(seeds, func(i, j int) bool {
		return seeds[i].UpdatedAt.After(seeds[j].UpdatedAt)
	})
	return seeds
}

// rank orders ids by a jittered score. Popularity jitters by up to 10%,
// rating by up to 30%, and recency scores releases inside the window above
// everything older.
func (e *Engine) rank(strategy rankStrategy, model *lifecycle.Model, ids []int) []int {
	if len(ids) == 0 {
		return nil
	}
	cutoff := e.cfg.Now().AddDate(-e.cfg.RecencyYears, 0, 0)

	scores := make(map[int]float64, len(ids))
	for _, id := range ids {
		m, _ := model.Movie(id)
		switch strategy {
		case rankPopularity:
			scores[id] = m.Popularity * (0.9 + 0.2*e.float())
		case rankRating:
			scores[id] = m.VoteAverage * (0.7 + 0.6*e.float())
		default:
			score := 0.5 * e.float()
			if m.ReleaseDate != nil && m.ReleaseDate.After(cutoff) {
				score += 0.5
			}
			scores[id] = score
		}
	}

	out := make([]int, len(ids))
	copy(out, ids)
	sort.SliceStable(out, func(i, j int) bool {
		return scores[out[i]] > scores[out[j]]
	})
	return out
}
