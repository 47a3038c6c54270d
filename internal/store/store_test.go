package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/elonfeng/toonrank/pkg/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "data", "toonrank.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func video(id string, views, likes int64) source.Video {
	return source.Video{VideoID: id, Title: "title " + id, Link: source.WatchURL(id), Views: views, Likes: likes}
}

func line(id, videoID string, start float64) source.SubtitleLine {
	return source.SubtitleLine{ID: id, VideoID: videoID, Text: "line " + id, Duration: 1.5, Start: start, Sentiment: 0.2}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toonrank.db")

	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open("oracle", "whatever")
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestSaveResolutionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stored, err := s.SaveResolution(ctx, &Resolution{
		QueryID: "q1",
		Query:   "tom and jerry",
		Videos: []NewVideo{
			{Video: video("a", 100, 10), Rating: 4},
			{Video: video("b", 50, 1), Rating: -2},
		},
		Subtitles: []source.SubtitleLine{line("l2", "a", 3), line("l1", "a", 1), line("l3", "b", 0)},
		Ratings:   []VideoRating{{VideoID: "a", NormRating: 1}, {VideoID: "b", NormRating: 0}},
	})
	require.NoError(t, err)
	assert.True(t, stored)

	q, err := s.FindQuery(ctx, "tom and jerry")
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Equal(t, "q1", q.ID)

	missing, err := s.FindQuery(ctx, "scooby doo")
	require.NoError(t, err)
	assert.Nil(t, missing)

	videos, err := s.RankedVideos(ctx, "tom and jerry")
	require.NoError(t, err)
	require.Len(t, videos, 2)
	assert.Equal(t, "b", videos[0].VideoID)
	assert.Equal(t, "a", videos[1].VideoID)
	assert.Equal(t, int64(100), videos[1].Views)
	assert.Equal(t, source.WatchURL("a"), videos[1].Link)
	assert.InDelta(t, 4.0, videos[1].Rating, 1e-9)
	assert.InDelta(t, 1.0, videos[1].NormRating, 1e-9)

	lines, err := s.SubtitlesForVideo(ctx, "a")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "l1", lines[0].ID)
	assert.Equal(t, "l2", lines[1].ID)
}

func TestSaveResolutionDuplicateQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &Resolution{
		QueryID: "q1", Query: "popeye",
		Videos:  []NewVideo{{Video: video("a", 1, 1), Rating: 1}},
		Ratings: []VideoRating{{VideoID: "a", NormRating: 1}},
	}
	stored, err := s.SaveResolution(ctx, first)
	require.NoError(t, err)
	require.True(t, stored)

	second := &Resolution{
		QueryID: "q2", Query: "popeye",
		Videos:  []NewVideo{{Video: video("b", 1, 1), Rating: 1}},
		Ratings: []VideoRating{{VideoID: "b", NormRating: 1}},
	}
	stored, err = s.SaveResolution(ctx, second)
	require.NoError(t, err)
	assert.False(t, stored)

	existing, err := s.ExistingVideoIDs(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a": true}, existing)
}

func TestSaveResolutionSharedVideo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveResolution(ctx, &Resolution{
		QueryID: "q1", Query: "tom",
		Videos:    []NewVideo{{Video: video("shared", 10, 1), Rating: 2}, {Video: video("x", 5, 1), Rating: 1}},
		Subtitles: []source.SubtitleLine{line("s1", "shared", 0)},
		Ratings:   []VideoRating{{VideoID: "shared", NormRating: 1}, {VideoID: "x", NormRating: 0}},
	})
	require.NoError(t, err)

	// Second query re-lists the shared video as new; the row and its lines
	// must not be duplicated.
	_, err = s.SaveResolution(ctx, &Resolution{
		QueryID: "q2", Query: "jerry",
		Videos:    []NewVideo{{Video: video("shared", 99, 9), Rating: 7}},
		Subtitles: []source.SubtitleLine{line("s2", "shared", 5)},
		Ratings:   []VideoRating{{VideoID: "shared", NormRating: 1}},
	})
	require.NoError(t, err)

	lines, err := s.SubtitlesForVideo(ctx, "shared")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "s1", lines[0].ID)

	jerry, err := s.RankedVideos(ctx, "jerry")
	require.NoError(t, err)
	require.Len(t, jerry, 1)
	assert.Equal(t, int64(10), jerry[0].Views, "first write wins")

	queries, err := s.ListQueries(ctx)
	require.NoError(t, err)
	require.Len(t, queries, 2)
	assert.Equal(t, "jerry", queries[0].Text)
	assert.Equal(t, 1, queries[0].Videos)
	assert.Equal(t, "tom", queries[1].Text)
	assert.Equal(t, 2, queries[1].Videos)
}

func TestSaveResolutionRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// The rating references a video that does not exist, so the foreign key
	// check fails after the query row was written.
	_, err := s.SaveResolution(ctx, &Resolution{
		QueryID: "q1", Query: "felix",
		Videos:  []NewVideo{{Video: video("a", 1, 1), Rating: 1}},
		Ratings: []VideoRating{{VideoID: "ghost", NormRating: 1}},
	})
	require.ErrorIs(t, err, ErrPersist)

	q, err := s.FindQuery(ctx, "felix")
	require.NoError(t, err)
	assert.Nil(t, q)

	existing, err := s.ExistingVideoIDs(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Empty(t, existing)
}

func TestRankedVideosOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveResolution(ctx, &Resolution{
		QueryID: "q1", Query: "garfield",
		Videos: []NewVideo{
			{Video: video("high", 1, 1), Rating: 3},
			{Video: video("tie-more-likes", 10, 9), Rating: 1},
			{Video: video("tie-fewer-views", 5, 2), Rating: 1},
			{Video: video("tie-more-views", 50, 2), Rating: 1},
		},
		Ratings: []VideoRating{
			{VideoID: "high", NormRating: 1},
			{VideoID: "tie-more-likes", NormRating: 0.5},
			{VideoID: "tie-fewer-views", NormRating: 0.5},
			{VideoID: "tie-more-views", NormRating: 0.5},
		},
	})
	require.NoError(t, err)

	videos, err := s.RankedVideos(ctx, "garfield")
	require.NoError(t, err)

	ids := make([]string, len(videos))
	for i, v := range videos {
		ids[i] = v.VideoID
	}
	assert.Equal(t, []string{"tie-more-views", "tie-fewer-views", "tie-more-likes", "high"}, ids)
}

func TestExistingVideoIDsChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var videos []NewVideo
	var ratings []VideoRating
	for i := range chunkSize + 20 {
		id := fmt.Sprintf("v%04d", i)
		videos = append(videos, NewVideo{Video: video(id, 1, 1)})
		ratings = append(ratings, VideoRating{VideoID: id})
	}
	_, err := s.SaveResolution(ctx, &Resolution{QueryID: "q", Query: "bulk", Videos: videos, Ratings: ratings})
	require.NoError(t, err)

	ids := []string{"v0000", "v0519", "missing"}
	for i := range chunkSize {
		ids = append(ids, fmt.Sprintf("absent-%d", i))
	}
	existing, err := s.ExistingVideoIDs(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"v0000": true, "v0519": true}, existing)
}

func TestSubtitleBulkInsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var lines []source.SubtitleLine
	for i := range chunkSize*2 + 3 {
		lines = append(lines, line(fmt.Sprintf("l%d", i), "long", float64(i)))
	}
	_, err := s.SaveResolution(ctx, &Resolution{
		QueryID: "q", Query: "long",
		Videos:    []NewVideo{{Video: video("long", 1, 1)}},
		Subtitles: lines,
		Ratings:   []VideoRating{{VideoID: "long"}},
	})
	require.NoError(t, err)

	got, err := s.SubtitlesForVideo(ctx, "long")
	require.NoError(t, err)
	assert.Len(t, got, len(lines))
}

func TestFloatColumnsKeepFullPrecision(t *testing.T) {
	assert.NotRegexp(t, `(?m)\sREAL\s`, schema, "REAL is 4 bytes on PostgreSQL")

	s := newTestStore(t)
	ctx := context.Background()

	norm := 1.5 / 2.1
	sub := source.SubtitleLine{ID: "p1", VideoID: "p", Text: "hi", Duration: 1.0 / 3, Start: 2.0 / 7, Sentiment: 0.4404227}
	_, err := s.SaveResolution(ctx, &Resolution{
		QueryID:   "q",
		Query:     "precise",
		Videos:    []NewVideo{{Video: video("p", 1, 1), Rating: 1.4 / 3}},
		Subtitles: []source.SubtitleLine{sub},
		Ratings:   []VideoRating{{VideoID: "p", NormRating: norm}},
	})
	require.NoError(t, err)

	videos, err := s.RankedVideos(ctx, "precise")
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, norm, videos[0].NormRating)
	assert.Equal(t, 1.4/3, videos[0].Rating)

	lines, err := s.SubtitlesForVideo(ctx, "p")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, sub.Duration, lines[0].Duration)
	assert.Equal(t, sub.Start, lines[0].Start)
	assert.Equal(t, sub.Sentiment, lines[0].Sentiment)
}

func TestNormalizeDriver(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"", DriverSQLite, true},
		{"sqlite3", DriverSQLite, true},
		{"SQLite", DriverSQLite, true},
		{"postgresql", DriverPostgres, true},
		{"pgx", DriverPostgres, true},
		{"oracle", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeDriver(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
