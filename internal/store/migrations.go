package store

import (
	"context"
	"fmt"
	"strings"
)

// schema is applied on every open. Statements are portable between SQLite
// and PostgreSQL.
const schema = `
CREATE TABLE IF NOT EXISTS videos (
    video_id TEXT PRIMARY KEY,
    title    TEXT NOT NULL,
    link     TEXT NOT NULL,
    views    BIGINT NOT NULL DEFAULT 0,
    likes    BIGINT NOT NULL DEFAULT 0,
    rating   DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS subtitles (
    id        TEXT PRIMARY KEY,
    video_id  TEXT NOT NULL REFERENCES videos(video_id),
    text      TEXT NOT NULL DEFAULT '',
    duration  DOUBLE PRECISION NOT NULL,
    start     DOUBLE PRECISION NOT NULL,
    sentiment DOUBLE PRECISION NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_subtitles_video ON subtitles(video_id);

CREATE TABLE IF NOT EXISTS user_queries (
    query_id TEXT PRIMARY KEY,
    query    TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS queries_videos (
    query_id    TEXT NOT NULL REFERENCES user_queries(query_id),
    video_id    TEXT NOT NULL REFERENCES videos(video_id),
    norm_rating DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (query_id, video_id)
);

CREATE INDEX IF NOT EXISTS idx_queries_videos_video ON queries_videos(video_id);
`

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
