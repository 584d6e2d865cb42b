package recommend

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/movie-recommender/backend/internal/metrics"
)

const DefaultSessionCapacity = 10000

// session is the per-user refresh state. It lives in memory only and is lost
// on restart or when evicted from the LRU.
type session struct {
	mu         sync.Mutex
	refreshes  int
	lastServed map[int]struct{}
}

// advance bumps the refresh counter and returns it with a copy of the last
// served set.
func (s *session) advance() (int, map[int]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
	prev := make(map[int]struct{}, len(s.lastServed))
	for id := range s.lastServed {
		prev[id] = struct{}{}
	}
	return s.refreshes, prev
}

func (s *session) remember(ids []int) {
	served := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		served[id] = struct{}{}
	}
	s.mu.Lock()
	s.lastServed = served
	s.mu.Unlock()
}

func (s *session) snapshot() (int, []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.lastServed))
	for id := range s.lastServed {
		ids = append(ids, id)
	}
	return s.refreshes, ids
}

// sessionStore bounds per-user state with least-recently-used eviction.
type sessionStore struct {
	mu    sync.Mutex
	cache *lru.Cache[int, *session]
}

func newSessionStore(capacity int) (*sessionStore, error) {
	if capacity <= 0 {
		capacity = DefaultSessionCapacity
	}
	cache, err := lru.New[int, *session](capacity)
	if err != nil {
		return nil, err
	}
	return &sessionStore{cache: cache}, nil
}

func (s *sessionStore) get(userID int) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.cache.Get(userID); ok {
		return sess
	}
	sess := &session{}
	s.cache.Add(userID, sess)
	metrics.Sessions.Set(float64(s.cache.Len()))
	return sess
}

func (s *sessionStore) peek(userID int) (*session, bool) {
	return s.cache.Peek(userID)
}

func (s *sessionStore) len() int {
	return s.cache.Len()
}
