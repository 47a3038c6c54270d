package source

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrProvider marks a failed search or details request. Per-video
	// transcript failures never surface as ErrProvider.
	ErrProvider = errors.New("provider request failed")

	// ErrInsufficientCandidates is returned when no search result survived the
	// title filter within the page bound.
	ErrInsufficientCandidates = errors.New("insufficient candidates")
)

// Video is a candidate that passed every acceptance filter.
type Video struct {
	VideoID string `json:"video_id" db:"video_id"`
	Title   string `json:"title" db:"title"`
	Link    string `json:"link" db:"link"`
	Views   int64  `json:"views" db:"views"`
	Likes   int64  `json:"likes" db:"likes"`
}

// SubtitleLine is one cleaned caption line of a video.
type SubtitleLine struct {
	ID        string  `json:"id" db:"id"`
	VideoID   string  `json:"video_id" db:"video_id"`
	Text      string  `json:"text" db:"text"`
	Duration  float64 `json:"duration" db:"duration"`
	Start     float64 `json:"start" db:"start"`
	Sentiment float64 `json:"sentiment" db:"sentiment"`
}

// Candidate is a raw search hit before details and transcripts are known.
type Candidate struct {
	VideoID string
	Title   string
}

// SearchPage is one page of search results.
type SearchPage struct {
	Candidates    []Candidate
	NextPageToken string
}

// Details holds the extended metadata of a video.
type Details struct {
	Duration string // ISO-8601, e.g. PT4M13S
	Views    int64
	Likes    int64
}

// Caption is a raw transcript entry as returned by the provider.
type Caption struct {
	Text     string
	Start    float64
	Duration float64
}

// Searcher returns paginated search results for a text query.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query, pageToken string) (SearchPage, error)
}

// DetailFetcher returns extended metadata for up to MaxDetailsBatch ids.
type DetailFetcher interface {
	Details(ctx context.Context, ids []string) (map[string]Details, error)
}

// TranscriptFetcher returns captions per video id plus the ids whose
// transcript could not be fetched.
type TranscriptFetcher interface {
	Transcripts(ctx context.Context, ids []string, lang string) (map[string][]Caption, []string)
}

// MaxDetailsBatch is the provider's limit of ids per details request.
const MaxDetailsBatch = 50

// WatchURL returns the canonical link of a video.
func WatchURL(videoID string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
}
