package models

import (
	"strings"
	"time"
)

// NoData is the placeholder OMDb and the sample loader use for missing fields.
const NoData = "N/A"

type Movie struct {
	ID          int        `json:"id"`
	IMDbID      string     `json:"imdb_id,omitempty"`
	Title       string     `json:"title"`
	Overview    string     `json:"overview,omitempty"`
	PosterPath  string     `json:"poster_path,omitempty"`
	ReleaseDate *time.Time `json:"release_date,omitempty"`
	Genres      string     `json:"genres,omitempty"`
	Popularity  float64    `json:"popularity"`
	VoteAverage float64    `json:"vote_average"`
	VoteCount   int        `json:"vote_count"`
	Director    string     `json:"director,omitempty"`
	Actors      string     `json:"actors,omitempty"`
	DataSource  string     `json:"data_source,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// GenreList splits the stored genre string on pipes and commas, trimming
// blanks, dropping the no-data sentinel and duplicates. Order is preserved.
func (m Movie) GenreList() []string {
	return SplitGenres(m.Genres)
}

func SplitGenres(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '|' || r == ','
	})

	genres := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		g := strings.TrimSpace(f)
		if IsNoData(g) {
			continue
		}
		key := strings.ToLower(g)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		genres = append(genres, g)
	}
	return genres
}

// IsNoData reports whether a metadata field is blank or the N/A sentinel.
func IsNoData(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, NoData)
}

type Rating struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	MovieID   int       `json:"movie_id"`
	Rating    float64   `json:"rating"`
	Review    string    `json:"review,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
