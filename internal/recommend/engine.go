// Package recommend turns the similarity model and a user's ratings into
// ranked movie lists.
//
// Similar-movie lookups and first-time user recommendations are deliberately
// a little random when diversification is on: the answer is drawn from a
// slightly oversized pool of the best matches. Refreshes rotate through
// selection and ranking strategies per user so consecutive calls do not
// return the same list.
package recommend

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/movie-recommender/backend/internal/lifecycle"
	"github.com/movie-recommender/backend/internal/metrics"
	"github.com/movie-recommender/backend/internal/storage/models"
	"github.com/movie-recommender/backend/pkg/logger"
)

// ModelProvider is satisfied by *lifecycle.Manager.
type ModelProvider interface {
	Current() *lifecycle.Model
	EnsureBuilt(ctx context.Context, force bool) bool
}

// RatingSource returns a user's ratings, most recently updated first.
type RatingSource interface {
	GetUserRatings(ctx context.Context, userID int) ([]models.Rating, error)
}

type Config struct {
	// LikeThreshold is the minimum rating that counts as liking a movie.
	LikeThreshold float64
	// PoolExtra oversizes the candidate pool for similar-movie lookups.
	PoolExtra int
	// SeedBatch is the similar-movie count fetched per liked movie.
	SeedBatch       int
	SessionCapacity int
	// Seed fixes the random source; zero seeds from the clock.
	Seed      int64
	Diversify bool
	// RecencyYears is the window the recency ranking favors.
	RecencyYears int
	// RebuildEvery forces a model rebuild on every Nth refresh per user.
	RebuildEvery int
	Now          func() time.Time
}

func DefaultConfig() Config {
	return Config{
		LikeThreshold:   4.0,
		PoolExtra:       20,
		SeedBatch:       3,
		SessionCapacity: DefaultSessionCapacity,
		Diversify:       true,
		RecencyYears:    10,
		RebuildEvery:    3,
	}
}

type Engine struct {
	models   ModelProvider
	ratings  RatingSource
	cfg      Config
	sessions *sessionStore

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewEngine(provider ModelProvider, ratings RatingSource, cfg Config) (*Engine, error) {
	def := DefaultConfig()
	if cfg.LikeThreshold <= 0 {
		cfg.LikeThreshold = def.LikeThreshold
	}
	if cfg.PoolExtra < 0 {
		cfg.PoolExtra = 0
	}
	if cfg.SeedBatch <= 0 {
		cfg.SeedBatch = def.SeedBatch
	}
	if cfg.RecencyYears <= 0 {
		cfg.RecencyYears = def.RecencyYears
	}
	if cfg.RebuildEvery <= 0 {
		cfg.RebuildEvery = def.RebuildEvery
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	sessions, err := newSessionStore(cfg.SessionCapacity)
	if err != nil {
		return nil, err
	}

	return &Engine{
		models:   provider,
		ratings:  ratings,
		cfg:      cfg,
		sessions: sessions,
		rng:      rand.New(rand.NewSource(seed)),
	}, nil
}

// RecommendSimilar returns up to limit movie ids similar to movieID, never
// including movieID itself. Unknown ids and an unbuilt model yield an empty
// list.
func (e *Engine) RecommendSimilar(ctx context.Context, movieID, limit int) []int {
	start := time.Now()
	defer observe("similar", start)

	model := e.models.Current()
	if model == nil || limit <= 0 {
		record("similar", nil)
		return []int{}
	}
	ids := e.similar(model, movieID, limit)
	record("similar", ids)
	return ids
}

type scored struct {
	pos   int
	score float32
}

func (e *Engine) similar(model *lifecycle.Model, movieID, limit int) []int {
	self, ok := model.Index.Position(movieID)
	if !ok || limit <= 0 {
		return []int{}
	}

	row := model.Matrix.Row(self)
	pool := make([]scored, 0, len(row)-1)
	for pos, score := range row {
		if pos == self {
			continue
		}
		pool = append(pool, scored{pos: pos, score: score})
	}
	sortScored(pool)

	if size := limit + e.cfg.PoolExtra; len(pool) > size {
		pool = pool[:size]
	}

	if e.cfg.Diversify && len(pool) > limit {
		e.rngMu.Lock()
		e.rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
		window := limit + e.rng.Intn(len(pool)-limit+1)
		e.rngMu.Unlock()

		pool = pool[:window]
		sortScored(pool)
	}

	if len(pool) > limit {
		pool = pool[:limit]
	}
	ids := make([]int, len(pool))
	for i, s := range pool {
		ids[i] = model.Index.MovieID(s.pos)
	}
	return ids
}

// sortScored orders by descending score, breaking ties by matrix position.
func sortScored(pool []scored) {
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].score != pool[j].score {
			return pool[i].score > pool[j].score
		}
		return pool[i].pos < pool[j].pos
	})
}

// RecommendForUser returns up to limit unrated movies similar to the ones the
// user liked, most popular first. Users without liked movies get an empty
// list so callers can fall back to popular movies.
func (e *Engine) RecommendForUser(ctx context.Context, userID, limit int) []int {
	start := time.Now()
	defer observe("user", start)

	if limit <= 0 {
		return []int{}
	}

	ratings, err := e.ratings.GetUserRatings(ctx, userID)
	if err != nil {
		logger.Error("Failed to load user ratings",
			zap.Int("user_id", userID),
			zap.Error(err),
		)
		record("user", nil)
		return []int{}
	}
	rated, liked := e.partition(ratings)
	if len(liked) == 0 {
		record("user", nil)
		return []int{}
	}

	e.models.EnsureBuilt(ctx, false)
	model := e.models.Current()
	if model == nil {
		record("user", nil)
		return []int{}
	}

	var candidates []int
	for _, r := range liked {
		candidates = append(candidates, e.similar(model, r.MovieID, e.cfg.SeedBatch)...)
	}
	candidates = dedupe(candidates, rated)
	sort.SliceStable(candidates, func(i, j int) bool {
		return popularity(model, candidates[i]) > popularity(model, candidates[j])
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	e.sessions.get(userID).remember(candidates)
	record("user", candidates)
	return candidates
}

// RefreshForUser returns a fresh list for the user, preferring movies not
// served by the previous call. Every call advances the user's refresh
// counter, which picks the selection and ranking strategies and periodically
// forces a model rebuild.
//
// Two concurrent refreshes for the same user may both read the same
// last-served set; each still returns a valid list.
func (e *Engine) RefreshForUser(ctx context.Context, userID, limit int) []int {
	start := time.Now()
	defer observe("refresh", start)

	if limit <= 0 {
		return []int{}
	}

	sess := e.sessions.get(userID)
	count, previous := sess.advance()

	force := count%e.cfg.RebuildEvery == 0
	if !e.models.EnsureBuilt(ctx, force) {
		logger.Warn("Refreshing recommendations without a fresh model",
			zap.Int("user_id", userID),
			zap.Bool("forced", force),
		)
	}
	model := e.models.Current()

	ratings, err := e.ratings.GetUserRatings(ctx, userID)
	if err != nil {
		logger.Error("Failed to load user ratings",
			zap.Int("user_id", userID),
			zap.Error(err),
		)
		record("refresh", nil)
		return []int{}
	}
	rated, liked := e.partition(ratings)

	selection := selectionFor(count)
	ranking := rankingFor(count)
	logger.Debug("Refreshing recommendations",
		zap.Int("user_id", userID),
		zap.Int("refresh", count),
		zap.String("selection", selection.String()),
		zap.String("ranking", ranking.String()),
	)

	var result []int
	if model != nil {
		seeds := e.selectSeeds(selection, liked)
		perSeed := 2 * limit
		if perSeed < e.cfg.SeedBatch {
			perSeed = e.cfg.SeedBatch
		}

		var candidates []int
		for _, r := range seeds {
			candidates = append(candidates, e.similar(model, r.MovieID, perSeed)...)
		}
		candidates = dedupe(candidates, rated)

		novel, stale := splitServed(candidates, previous)
		result = e.rank(ranking, model, novel)
		if len(result) < limit {
			result = append(result, e.rank(ranking, model, stale)...)
		}
		if len(result) > limit {
			result = result[:limit]
		}
		result = padPopular(model, result, limit, rated, previous)
	}
	if result == nil {
		result = []int{}
	}

	sess.remember(result)
	record("refresh", result)
	return result
}

// SessionState reports a user's refresh counter and last served ids.
func (e *Engine) SessionState(userID int) (int, []int, bool) {
	sess, ok := e.sessions.peek(userID)
	if !ok {
		return 0, nil, false
	}
	count, ids := sess.snapshot()
	sort.Ints(ids)
	return count, ids, true
}

// partition returns the set of rated movie ids and the liked ratings in their
// original order.
func (e *Engine) partition(ratings []models.Rating) (map[int]struct{}, []models.Rating) {
	rated := make(map[int]struct{}, len(ratings))
	var liked []models.Rating
	for _, r := range ratings {
		rated[r.MovieID] = struct{}{}
		if r.Rating >= e.cfg.LikeThreshold {
			liked = append(liked, r)
		}
	}
	return rated, liked
}

func (e *Engine) float() float64 {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Float64()
}

func dedupe(ids []int, exclude map[int]struct{}) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := exclude[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func splitServed(ids []int, served map[int]struct{}) (novel, stale []int) {
	for _, id := range ids {
		if _, ok := served[id]; ok {
			stale = append(stale, id)
		} else {
			novel = append(novel, id)
		}
	}
	return novel, stale
}

func popularity(model *lifecycle.Model, movieID int) float64 {
	m, ok := model.Movie(movieID)
	if !ok {
		return 0
	}
	return m.Popularity
}

// padPopular tops up result with the most popular unrated movies, taking
// ones not served last time before ones that were.
func padPopular(model *lifecycle.Model, result []int, limit int, rated, previous map[int]struct{}) []int {
	if len(result) >= limit {
		return result
	}
	order := make([]int, len(model.Movies))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return model.Movies[order[i]].Popularity > model.Movies[order[j]].Popularity
	})

	taken := make(map[int]struct{}, limit)
	for _, id := range result {
		taken[id] = struct{}{}
	}
	var fresh, repeat []int
	for _, pos := range order {
		id := model.Movies[pos].ID
		if _, ok := taken[id]; ok {
			continue
		}
		if _, ok := rated[id]; ok {
			continue
		}
		if _, ok := previous[id]; ok {
			repeat = append(repeat, id)
		} else {
			fresh = append(fresh, id)
		}
	}
	for _, id := range append(fresh, repeat...) {
		if len(result) >= limit {
			break
		}
		result = append(result, id)
	}
	return result
}

func observe(kind string, start time.Time) {
	metrics.RecommendationDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func record(kind string, ids []int) {
	outcome := "hit"
	if len(ids) == 0 {
		outcome = "empty"
	}
	metrics.RecommendationsTotal.WithLabelValues(kind, outcome).Inc()
}
