// Package similarity holds the pairwise cosine matrix between movie vectors
// and the movie id <-> row index mapping that goes with it.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/movie-recommender/backend/internal/vectorspace"
)

var ErrDuplicateMovie = errors.New("similarity: duplicate movie id")

// MaxScore is the self-similarity value on the diagonal.
const MaxScore float32 = 1.0

// Index is a bidirectional mapping between movie ids and matrix positions.
type Index struct {
	ids []int
	pos map[int]int
}

func NewIndex(ids []int) (*Index, error) {
	idx := &Index{
		ids: make([]int, len(ids)),
		pos: make(map[int]int, len(ids)),
	}
	copy(idx.ids, ids)
	for i, id := range ids {
		if _, dup := idx.pos[id]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateMovie, id)
		}
		idx.pos[id] = i
	}
	return idx, nil
}

func (x *Index) Position(movieID int) (int, bool) {
	i, ok := x.pos[movieID]
	return i, ok
}

func (x *Index) MovieID(position int) int {
	return x.ids[position]
}

func (x *Index) Len() int {
	return len(x.ids)
}

// Matrix is a dense, symmetric n×n matrix stored row-major.
type Matrix struct {
	n    int
	data []float32
}

func (m *Matrix) Size() int {
	return m.n
}

func (m *Matrix) At(i, j int) float32 {
	return m.data[i*m.n+j]
}

// Row returns row i. The slice aliases the matrix and must not be modified.
func (m *Matrix) Row(i int) []float32 {
	return m.data[i*m.n : (i+1)*m.n]
}

// Compute builds the cosine matrix. Each worker owns whole rows of the upper
// triangle and mirrors them, so no cell is written twice.
func Compute(ctx context.Context, vectors []vectorspace.Vector, workers int) (*Matrix, error) {
	n := len(vectors)
	m := &Matrix{n: n, data: make([]float32, n*n)}
	if n == 0 {
		return m, nil
	}

	norms := make([]float64, n)
	for i, v := range vectors {
		norms[i] = v.Norm()
	}

	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m.data[i*n+i] = MaxScore
			if norms[i] == 0 {
				return nil
			}
			for j := i + 1; j < n; j++ {
				if norms[j] == 0 {
					continue
				}
				sim := float32(vectors[i].Dot(vectors[j]) / (norms[i] * norms[j]))
				if sim > MaxScore {
					sim = MaxScore
				} else if sim < 0 {
					sim = 0
				}
				m.data[i*n+j] = sim
				m.data[j*n+i] = sim
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to compute similarity matrix: %w", err)
	}
	return m, nil
}
