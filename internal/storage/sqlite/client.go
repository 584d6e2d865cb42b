package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/movie-recommender/backend/internal/storage/models"
	"github.com/movie-recommender/backend/pkg/logger"
)

const releaseDateLayout = "2006-01-02"

var ErrNotFound = errors.New("record not found")

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// every connection to :memory: is its own database
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

// dsn enables foreign keys through the connection string so that every
// pooled connection enforces them, not only the first one.
func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_foreign_keys=on"
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS movies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		imdb_id TEXT,
		title TEXT NOT NULL,
		overview TEXT NOT NULL DEFAULT '',
		poster_path TEXT NOT NULL DEFAULT '',
		release_date TEXT,
		genres TEXT NOT NULL DEFAULT '',
		popularity REAL NOT NULL DEFAULT 0,
		vote_average REAL NOT NULL DEFAULT 0,
		vote_count INTEGER NOT NULL DEFAULT 0,
		director TEXT NOT NULL DEFAULT '',
		actors TEXT NOT NULL DEFAULT '',
		data_source TEXT NOT NULL DEFAULT 'unknown',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE (imdb_id, data_source)
	);
	CREATE INDEX IF NOT EXISTS idx_movies_popularity ON movies(popularity);

	CREATE TABLE IF NOT EXISTS ratings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		movie_id INTEGER NOT NULL,
		rating REAL NOT NULL,
		review TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE (user_id, movie_id),
		FOREIGN KEY (movie_id) REFERENCES movies(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_ratings_user ON ratings(user_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

const movieColumns = `id, imdb_id, title, overview, poster_path, release_date, genres, popularity,
	vote_average, vote_count, director, actors, data_source, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMovie(row rowScanner) (models.Movie, error) {
	var m models.Movie
	var imdbID, releaseDate sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&m.ID,
		&imdbID,
		&m.Title,
		&m.Overview,
		&m.PosterPath,
		&releaseDate,
		&m.Genres,
		&m.Popularity,
		&m.VoteAverage,
		&m.VoteCount,
		&m.Director,
		&m.Actors,
		&m.DataSource,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return m, err
	}

	m.IMDbID = imdbID.String
	if releaseDate.Valid {
		if t, err := time.Parse(releaseDateLayout, releaseDate.String); err == nil {
			m.ReleaseDate = &t
		}
	}
	m.CreatedAt = time.Unix(createdAt, 0)
	m.UpdatedAt = time.Unix(updatedAt, 0)
	return m, nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// UpsertMovie inserts a movie, or updates the existing row for the same
// (imdb_id, data_source) pair. A zero ID lets SQLite assign one.
func (c *Client) UpsertMovie(ctx context.Context, movie *models.Movie) (int, error) {
	return upsertMovie(ctx, c.db, movie)
}

func upsertMovie(ctx context.Context, q rowQuerier, movie *models.Movie) (int, error) {
	query := `
		INSERT INTO movies (id, imdb_id, title, overview, poster_path, release_date, genres, popularity,
			vote_average, vote_count, director, actors, data_source, created_at, updated_at)
		VALUES (NULLIF(?, 0), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(imdb_id, data_source) DO UPDATE SET
			title = excluded.title,
			overview = excluded.overview,
			poster_path = excluded.poster_path,
			release_date = excluded.release_date,
			genres = excluded.genres,
			popularity = excluded.popularity,
			vote_average = excluded.vote_average,
			vote_count = excluded.vote_count,
			director = excluded.director,
			actors = excluded.actors,
			updated_at = excluded.updated_at
		RETURNING id
	`

	now := time.Now()
	if movie.CreatedAt.IsZero() {
		movie.CreatedAt = now
	}
	movie.UpdatedAt = now

	dataSource := movie.DataSource
	if dataSource == "" {
		dataSource = "unknown"
	}

	var releaseDate sql.NullString
	if movie.ReleaseDate != nil {
		releaseDate = sql.NullString{String: movie.ReleaseDate.Format(releaseDateLayout), Valid: true}
	}

	var id int
	err := q.QueryRowContext(
		ctx,
		query,
		movie.ID,
		sql.NullString{String: movie.IMDbID, Valid: movie.IMDbID != ""},
		movie.Title,
		movie.Overview,
		movie.PosterPath,
		releaseDate,
		movie.Genres,
		movie.Popularity,
		movie.VoteAverage,
		movie.VoteCount,
		movie.Director,
		movie.Actors,
		dataSource,
		movie.CreatedAt.Unix(),
		movie.UpdatedAt.Unix(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert movie: %w", err)
	}

	movie.ID = id
	logger.Debug("Movie upserted", zap.Int("movie_id", id), zap.String("title", movie.Title))
	return id, nil
}

func (c *Client) GetMovie(ctx context.Context, id int) (*models.Movie, error) {
	query := `SELECT ` + movieColumns + ` FROM movies WHERE id = ?`

	m, err := scanMovie(c.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get movie: %w", err)
	}
	return &m, nil
}

// ListMovies returns the full movie snapshot ordered by id.
func (c *Client) ListMovies(ctx context.Context) ([]models.Movie, error) {
	return c.queryMovies(ctx, `SELECT `+movieColumns+` FROM movies ORDER BY id`)
}

func (c *Client) PopularMovies(ctx context.Context, limit int) ([]models.Movie, error) {
	return c.queryMovies(ctx, `SELECT `+movieColumns+` FROM movies ORDER BY popularity DESC, id LIMIT ?`, limit)
}

// GetMoviesByIDs returns the movies in the order of ids, skipping unknown ids.
func (c *Client) GetMoviesByIDs(ctx context.Context, ids []int) ([]models.Movie, error) {
	if len(ids) == 0 {
		return []models.Movie{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	movies, err := c.queryMovies(ctx, `SELECT `+movieColumns+` FROM movies WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}

	byID := make(map[int]models.Movie, len(movies))
	for _, m := range movies {
		byID[m.ID] = m
	}

	ordered := make([]models.Movie, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			ordered = append(ordered, m)
		}
	}
	return ordered, nil
}

func (c *Client) MovieExists(ctx context.Context, imdbID, dataSource string) (bool, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM movies WHERE imdb_id = ? AND data_source = ?`, imdbID, dataSource,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check movie: %w", err)
	}
	return n > 0, nil
}

// ReplaceMovie upserts movie and then retires the row with the same IMDb id
// from fromSource, moving its ratings onto the stored movie. Both steps share
// one transaction, so a failed upsert leaves the old row untouched. A user who
// rated both rows keeps the rating of the stored movie.
func (c *Client) ReplaceMovie(ctx context.Context, movie *models.Movie, fromSource string) (bool, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := upsertMovie(ctx, tx, movie); err != nil {
		return false, err
	}

	replaced := false
	if movie.IMDbID != "" && movie.DataSource != fromSource {
		var oldID int
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM movies WHERE imdb_id = ? AND data_source = ?`, movie.IMDbID, fromSource,
		).Scan(&oldID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return false, fmt.Errorf("failed to look up replaced movie: %w", err)
		default:
			if _, err := tx.ExecContext(ctx,
				`UPDATE OR IGNORE ratings SET movie_id = ? WHERE movie_id = ?`, movie.ID, oldID); err != nil {
				return false, fmt.Errorf("failed to move ratings: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM movies WHERE id = ?`, oldID); err != nil {
				return false, fmt.Errorf("failed to delete replaced movie: %w", err)
			}
			replaced = true
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit replacement: %w", err)
	}
	if replaced {
		logger.Info("Movie replaced",
			zap.String("imdb_id", movie.IMDbID),
			zap.String("from", fromSource),
			zap.String("to", movie.DataSource),
		)
	}
	return replaced, nil
}

func (c *Client) CountMovies(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM movies`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count movies: %w", err)
	}
	return n, nil
}

// MovieFilter selects one page of the catalog.
type MovieFilter struct {
	Page    int
	PerPage int
	// Genre matches one whole genre of the pipe-separated list.
	Genre string
	// Search matches title, overview, actors or director.
	Search string
	// SortBy is popularity, title, release_date or vote_average.
	SortBy string
	// Order is asc or desc; anything else sorts descending.
	Order string
}

const DefaultPerPage = 20

var sortColumns = map[string]string{
	"popularity":   "popularity",
	"title":        "title",
	"release_date": "release_date",
	"vote_average": "vote_average",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchMovies returns one page of movies matching the filter and the total
// number of matches.
func (c *Client) SearchMovies(ctx context.Context, f MovieFilter) ([]models.Movie, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = DefaultPerPage
	}

	var where []string
	var args []any
	if g := strings.TrimSpace(f.Genre); g != "" {
		where = append(where, `('|' || genres || '|') LIKE ? ESCAPE '\'`)
		args = append(args, "%|"+likeEscaper.Replace(g)+"|%")
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		pattern := "%" + likeEscaper.Replace(term) + "%"
		where = append(where, `(title LIKE ? ESCAPE '\' OR overview LIKE ? ESCAPE '\' OR actors LIKE ? ESCAPE '\' OR director LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern, pattern)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM movies`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count movies: %w", err)
	}

	column, ok := sortColumns[f.SortBy]
	if !ok {
		column = "popularity"
	}
	direction := "DESC"
	if strings.EqualFold(f.Order, "asc") {
		direction = "ASC"
	}

	query := `SELECT ` + movieColumns + ` FROM movies` + clause +
		` ORDER BY ` + column + ` ` + direction + `, id LIMIT ? OFFSET ?`
	movies, err := c.queryMovies(ctx, query, append(args, f.PerPage, (f.Page-1)*f.PerPage)...)
	if err != nil {
		return nil, 0, err
	}
	return movies, total, nil
}

// ListGenres returns the distinct genres across all movies, sorted.
func (c *Client) ListGenres(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT DISTINCT genres FROM movies WHERE genres != ''`)
	if err != nil {
		return nil, fmt.Errorf("failed to list genres: %w", err)
	}
	defer rows.Close()

	set := make(map[string]struct{})
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for _, g := range models.SplitGenres(raw) {
			set[g] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate genres: %w", err)
	}

	genres := make([]string, 0, len(set))
	for g := range set {
		genres = append(genres, g)
	}
	sort.Strings(genres)
	return genres, nil
}

func (c *Client) queryMovies(ctx context.Context, query string, args ...any) ([]models.Movie, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query movies: %w", err)
	}
	defer rows.Close()

	movies := []models.Movie{}
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		movies = append(movies, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate movies: %w", err)
	}
	return movies, nil
}

func (c *Client) UpsertRating(ctx context.Context, rating *models.Rating) error {
	query := `
		INSERT INTO ratings (user_id, movie_id, rating, review, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, movie_id) DO UPDATE SET
			rating = excluded.rating,
			review = excluded.review,
			updated_at = excluded.updated_at
		RETURNING id, created_at
	`

	now := time.Now()
	if rating.UpdatedAt.IsZero() {
		rating.UpdatedAt = now
	}
	if rating.CreatedAt.IsZero() {
		rating.CreatedAt = rating.UpdatedAt
	}

	var createdAt int64
	err := c.db.QueryRowContext(
		ctx,
		query,
		rating.UserID,
		rating.MovieID,
		rating.Rating,
		rating.Review,
		rating.CreatedAt.Unix(),
		rating.UpdatedAt.Unix(),
	).Scan(&rating.ID, &createdAt)
	if err != nil {
		return fmt.Errorf("failed to upsert rating: %w", err)
	}
	rating.CreatedAt = time.Unix(createdAt, 0)

	logger.Info("Rating stored",
		zap.Int("user_id", rating.UserID),
		zap.Int("movie_id", rating.MovieID),
		zap.Float64("rating", rating.Rating),
	)
	return nil
}

// GetUserRatings returns every rating of a user, most recently updated first.
func (c *Client) GetUserRatings(ctx context.Context, userID int) ([]models.Rating, error) {
	query := `
		SELECT id, user_id, movie_id, rating, review, created_at, updated_at
		FROM ratings
		WHERE user_id = ?
		ORDER BY updated_at DESC, id DESC
	`

	rows, err := c.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user ratings: %w", err)
	}
	defer rows.Close()

	ratings := []models.Rating{}
	for rows.Next() {
		var r models.Rating
		var createdAt, updatedAt int64
		if err := rows.Scan(&r.ID, &r.UserID, &r.MovieID, &r.Rating, &r.Review, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.CreatedAt = time.Unix(createdAt, 0)
		r.UpdatedAt = time.Unix(updatedAt, 0)
		ratings = append(ratings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ratings: %w", err)
	}
	return ratings, nil
}

func (c *Client) DeleteRating(ctx context.Context, userID, movieID int) (bool, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM ratings WHERE user_id = ? AND movie_id = ?`, userID, movieID)
	if err != nil {
		return false, fmt.Errorf("failed to delete rating: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListUserIDs returns every user with at least one rating.
func (c *Client) ListUserIDs(ctx context.Context) ([]int, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM ratings ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
