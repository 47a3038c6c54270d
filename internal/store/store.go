package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/elonfeng/toonrank/pkg/source"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrPersist marks a failed write. The transaction was rolled back and the
// resolution can be retried.
var ErrPersist = errors.New("persist resolution")

// Supported driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// chunkSize bounds the number of rows or ids sent per statement.
const chunkSize = 500

// Query is a cached user query.
type Query struct {
	ID   string `db:"query_id" json:"query_id"`
	Text string `db:"query" json:"query"`
}

// QuerySummary is a cached query with the number of videos rated under it.
type QuerySummary struct {
	Query
	Videos int `db:"videos" json:"videos"`
}

// RankedVideo is a stored video with its rating under one query.
type RankedVideo struct {
	source.Video
	Rating     float64 `db:"rating" json:"rating"`
	NormRating float64 `db:"norm_rating" json:"norm_rating"`
}

// NewVideo is a video row to insert along with its raw rating.
type NewVideo struct {
	source.Video
	Rating float64 `db:"rating"`
}

// VideoRating is one query-scoped normalized rating.
type VideoRating struct {
	VideoID    string  `db:"video_id"`
	NormRating float64 `db:"norm_rating"`
}

// Resolution is everything a cache miss writes in one transaction.
type Resolution struct {
	QueryID   string
	Query     string
	Videos    []NewVideo            // videos not yet in the store
	Subtitles []source.SubtitleLine // lines of Videos
	Ratings   []VideoRating         // every video of the batch, new or known
}

// Store is the persistence interface.
type Store interface {
	FindQuery(ctx context.Context, text string) (*Query, error)
	ExistingVideoIDs(ctx context.Context, ids []string) (map[string]bool, error)
	SaveResolution(ctx context.Context, r *Resolution) (bool, error)
	RankedVideos(ctx context.Context, text string) ([]RankedVideo, error)
	ListQueries(ctx context.Context) ([]QuerySummary, error)
	SubtitlesForVideo(ctx context.Context, videoID string) ([]source.SubtitleLine, error)
	Close() error
}

// SQLStore implements Store over database/sql via sqlx.
type SQLStore struct {
	db *sqlx.DB
}

// New opens a SQLite database at path and applies the schema.
func New(path string) (*SQLStore, error) {
	return Open(DriverSQLite, path)
}

// Open connects with the given driver and applies the schema. For SQLite the
// dsn is a file path; for PostgreSQL it is a connection URL.
func Open(driver, dsn string) (*SQLStore, error) {
	name, ok := NormalizeDriver(driver)
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if name == DriverSQLite {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory %s: %w", dir, err)
			}
		}
		dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sqlx.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &SQLStore{db: db}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// FindQuery returns the stored query with this exact text, or nil.
func (s *SQLStore) FindQuery(ctx context.Context, text string) (*Query, error) {
	var q Query
	err := s.db.GetContext(ctx, &q,
		s.db.Rebind("SELECT query_id, query FROM user_queries WHERE query = ?"), text)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find query %q: %w", text, err)
	}
	return &q, nil
}

// ExistingVideoIDs reports which of ids are already stored.
func (s *SQLStore) ExistingVideoIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	for start := 0; start < len(ids); start += chunkSize {
		end := min(start+chunkSize, len(ids))

		query, args, err := sqlx.In("SELECT video_id FROM videos WHERE video_id IN (?)", ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("build existence query: %w", err)
		}

		var found []string
		if err := s.db.SelectContext(ctx, &found, s.db.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("check existing videos: %w", err)
		}
		for _, id := range found {
			existing[id] = true
		}
	}
	return existing, nil
}

// SaveResolution writes a cache miss atomically. It returns false without
// writing anything when the query text was stored concurrently.
func (s *SQLStore) SaveResolution(ctx context.Context, r *Resolution) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%w: begin: %w", ErrPersist, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO user_queries (query_id, query) VALUES (?, ?)
		ON CONFLICT (query) DO NOTHING
	`), r.QueryID, r.Query)
	if err != nil {
		return false, fmt.Errorf("%w: insert query %q: %w", ErrPersist, r.Query, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	inserted := make(map[string]bool, len(r.Videos))
	for _, v := range r.Videos {
		res, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO videos (video_id, title, link, views, likes, rating)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (video_id) DO NOTHING
		`), v.VideoID, v.Title, v.Link, v.Views, v.Likes, v.Rating)
		if err != nil {
			return false, fmt.Errorf("%w: insert video %s: %w", ErrPersist, v.VideoID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted[v.VideoID] = true
		}
	}

	lines := make([]source.SubtitleLine, 0, len(r.Subtitles))
	for _, l := range r.Subtitles {
		if inserted[l.VideoID] {
			lines = append(lines, l)
		}
	}
	for start := 0; start < len(lines); start += chunkSize {
		end := min(start+chunkSize, len(lines))
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO subtitles (id, video_id, text, duration, start, sentiment)
			VALUES (:id, :video_id, :text, :duration, :start, :sentiment)
		`, lines[start:end])
		if err != nil {
			return false, fmt.Errorf("%w: insert subtitles: %w", ErrPersist, err)
		}
	}

	for _, rt := range r.Ratings {
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO queries_videos (query_id, video_id, norm_rating) VALUES (?, ?, ?)
			ON CONFLICT (query_id, video_id) DO NOTHING
		`), r.QueryID, rt.VideoID, rt.NormRating)
		if err != nil {
			return false, fmt.Errorf("%w: insert rating %s: %w", ErrPersist, rt.VideoID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%w: commit: %w", ErrPersist, err)
	}
	return true, nil
}

// RankedVideos returns the videos rated under a query ordered by
// norm_rating ascending, then likes ascending, then views descending.
func (s *SQLStore) RankedVideos(ctx context.Context, text string) ([]RankedVideo, error) {
	var videos []RankedVideo
	err := s.db.SelectContext(ctx, &videos, s.db.Rebind(`
		SELECT v.video_id, v.title, v.link, v.views, v.likes, v.rating, qv.norm_rating
		FROM videos AS v
		INNER JOIN queries_videos AS qv ON v.video_id = qv.video_id
		INNER JOIN user_queries AS uq ON uq.query_id = qv.query_id
		WHERE uq.query = ?
		ORDER BY qv.norm_rating, v.likes, v.views DESC, v.video_id
	`), text)
	if err != nil {
		return nil, fmt.Errorf("ranked videos for %q: %w", text, err)
	}
	return videos, nil
}

// ListQueries returns every cached query with its video count.
func (s *SQLStore) ListQueries(ctx context.Context) ([]QuerySummary, error) {
	var queries []QuerySummary
	err := s.db.SelectContext(ctx, &queries, `
		SELECT uq.query_id, uq.query, COUNT(qv.video_id) AS videos
		FROM user_queries AS uq
		LEFT JOIN queries_videos AS qv ON qv.query_id = uq.query_id
		GROUP BY uq.query_id, uq.query
		ORDER BY uq.query
	`)
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	return queries, nil
}

// SubtitlesForVideo returns the stored lines of a video in playback order.
func (s *SQLStore) SubtitlesForVideo(ctx context.Context, videoID string) ([]source.SubtitleLine, error) {
	var lines []source.SubtitleLine
	err := s.db.SelectContext(ctx, &lines, s.db.Rebind(`
		SELECT id, video_id, text, duration, start, sentiment
		FROM subtitles WHERE video_id = ? ORDER BY start
	`), videoID)
	if err != nil {
		return nil, fmt.Errorf("subtitles for %s: %w", videoID, err)
	}
	return lines, nil
}

// NormalizeDriver maps a configured driver name or alias onto a registered
// driver. ok is false for anything else.
func NormalizeDriver(name string) (driver string, ok bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pgx":
		return DriverPostgres, true
	case "sqlite", "sqlite3", "":
		return DriverSQLite, true
	default:
		return "", false
	}
}
