// Package features turns movie records into the lower-case text blobs the
// vector space model is fitted on.
package features

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/movie-recommender/backend/internal/storage/models"
)

var whitespace = regexp.MustCompile(`\s+`)

// Corpus is the ordered blob sequence with its movie ids; IDs[i] owns Blobs[i].
type Corpus struct {
	IDs   []int
	Blobs []string
}

func (c Corpus) Len() int {
	return len(c.IDs)
}

// Build produces one blob per movie in snapshot order.
func Build(movies []models.Movie) Corpus {
	corpus := Corpus{
		IDs:   make([]int, len(movies)),
		Blobs: make([]string, len(movies)),
	}
	for i := range movies {
		corpus.IDs[i] = movies[i].ID
		corpus.Blobs[i] = Blob(&movies[i])
	}
	return corpus
}

// Blob weights the fields: title and genres twice, director, cast and
// overview once. Absent fields are skipped.
func Blob(m *models.Movie) string {
	parts := make([]string, 0, 7)

	if title := cleanText(m.Title); title != "" {
		parts = append(parts, title, title)
	}

	if genres := m.GenreList(); len(genres) > 0 {
		joined := strings.Join(genres, " ")
		parts = append(parts, joined, joined)
	}

	if !models.IsNoData(m.Director) {
		parts = append(parts, cleanText(m.Director))
	}

	if !models.IsNoData(m.Actors) {
		parts = append(parts, cleanText(m.Actors))
	}

	if !models.IsNoData(m.Overview) {
		if overview := cleanText(m.Overview); overview != "" {
			parts = append(parts, overview)
		}
	}

	return strings.ToLower(strings.Join(parts, " "))
}

// cleanText drops markup and decodes entities when the field looks like HTML,
// then collapses whitespace.
func cleanText(s string) string {
	if strings.ContainsAny(s, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			doc.Find("script, style").Remove()
			s = doc.Text()
		}
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
