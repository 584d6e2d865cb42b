// Package vectorspace fits a TF-IDF term-weighting model over feature blobs
// and maps each blob to an L2-normalised sparse vector.
package vectorspace

import (
	"errors"
	"math"
	"sort"
)

var (
	ErrEmptyCorpus     = errors.New("vectorspace: empty corpus")
	ErrEmptyVocabulary = errors.New("vectorspace: empty vocabulary")
)

type Config struct {
	// NGramMax is 1 for unigrams only, 2 for unigrams plus bigrams.
	NGramMax int
	// MaxFeatures caps the vocabulary to the most frequent terms. Zero means no cap.
	MaxFeatures int
	StopWords   bool
}

func DefaultConfig() Config {
	return Config{NGramMax: 2, MaxFeatures: 5000, StopWords: true}
}

// Vector is a sparse vector with strictly increasing Indices.
type Vector struct {
	Indices []int
	Values  []float64
}

func (v Vector) Dot(o Vector) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(v.Indices) && j < len(o.Indices) {
		switch {
		case v.Indices[i] == o.Indices[j]:
			sum += v.Values[i] * o.Values[j]
			i++
			j++
		case v.Indices[i] < o.Indices[j]:
			i++
		default:
			j++
		}
	}
	return sum
}

func (v Vector) Norm() float64 {
	var sum float64
	for _, x := range v.Values {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func (v Vector) IsZero() bool {
	return len(v.Indices) == 0
}

type Vectorizer struct {
	cfg       Config
	tokenizer Tokenizer
}

func NewVectorizer(cfg Config, tokenizer Tokenizer) *Vectorizer {
	if cfg.NGramMax < 1 {
		cfg.NGramMax = 1
	}
	if tokenizer == nil {
		tokenizer = ProseTokenizer{}
	}
	return &Vectorizer{cfg: cfg, tokenizer: tokenizer}
}

// Model is immutable once fitted.
type Model struct {
	analyze func(string) []string
	vocab   map[string]int
	terms   []string
	idf     []float64
}

func (m *Model) VocabularySize() int {
	return len(m.terms)
}

func (m *Model) Term(index int) string {
	return m.terms[index]
}

// analyze tokenises, drops stop words and then forms n-grams.
func (v *Vectorizer) analyze(doc string) []string {
	tokens := v.tokenizer.Tokenize(doc)
	if v.cfg.StopWords {
		kept := tokens[:0]
		for _, t := range tokens {
			if _, stop := englishStopWords[t]; !stop {
				kept = append(kept, t)
			}
		}
		tokens = kept
	}

	if v.cfg.NGramMax < 2 {
		return tokens
	}

	terms := make([]string, 0, len(tokens)*2)
	terms = append(terms, tokens...)
	for i := 0; i+1 < len(tokens); i++ {
		terms = append(terms, tokens[i]+" "+tokens[i+1])
	}
	return terms
}

// FitTransform fits the model over docs and returns one vector per doc,
// aligned with the input order.
func (v *Vectorizer) FitTransform(docs []string) (*Model, []Vector, error) {
	if len(docs) == 0 {
		return nil, nil, ErrEmptyCorpus
	}

	analyzed := make([][]string, len(docs))
	docFreq := make(map[string]int)
	totalFreq := make(map[string]int)
	for i, doc := range docs {
		terms := v.analyze(doc)
		analyzed[i] = terms
		seen := make(map[string]struct{}, len(terms))
		for _, t := range terms {
			totalFreq[t]++
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				docFreq[t]++
			}
		}
	}

	if len(totalFreq) == 0 {
		return nil, nil, ErrEmptyVocabulary
	}

	terms := make([]string, 0, len(totalFreq))
	for t := range totalFreq {
		terms = append(terms, t)
	}
	if v.cfg.MaxFeatures > 0 && len(terms) > v.cfg.MaxFeatures {
		sort.Slice(terms, func(i, j int) bool {
			if totalFreq[terms[i]] != totalFreq[terms[j]] {
				return totalFreq[terms[i]] > totalFreq[terms[j]]
			}
			return terms[i] < terms[j]
		})
		terms = terms[:v.cfg.MaxFeatures]
	}
	sort.Strings(terms)

	n := float64(len(docs))
	model := &Model{
		analyze: v.analyze,
		vocab:   make(map[string]int, len(terms)),
		terms:   terms,
		idf:     make([]float64, len(terms)),
	}
	for i, t := range terms {
		model.vocab[t] = i
		model.idf[i] = math.Log((1+n)/(1+float64(docFreq[t]))) + 1
	}

	vectors := make([]Vector, len(docs))
	for i, terms := range analyzed {
		vectors[i] = model.weigh(terms)
	}
	return model, vectors, nil
}

// Transform maps an unseen document into the fitted space.
func (m *Model) Transform(doc string) Vector {
	return m.weigh(m.analyze(doc))
}

func (m *Model) weigh(terms []string) Vector {
	counts := make(map[int]float64)
	for _, t := range terms {
		if idx, ok := m.vocab[t]; ok {
			counts[idx]++
		}
	}
	if len(counts) == 0 {
		return Vector{}
	}

	vec := Vector{
		Indices: make([]int, 0, len(counts)),
		Values:  make([]float64, 0, len(counts)),
	}
	for idx := range counts {
		vec.Indices = append(vec.Indices, idx)
	}
	sort.Ints(vec.Indices)

	var norm float64
	for _, idx := range vec.Indices {
		w := counts[idx] * m.idf[idx]
		vec.Values = append(vec.Values, w)
		norm += w * w
	}
	norm = math.Sqrt(norm)
	for i := range vec.Values {
		vec.Values[i] /= norm
	}
	return vec
}
