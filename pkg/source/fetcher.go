package source

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// FetchOptions configures candidate collection.
type FetchOptions struct {
	MinCandidates int    // stop paginating once this many candidates are accepted
	MaxPages      int    // hard cap on search pages per query
	Language      string // caption language
	Duration      DurationRule
}

// DefaultFetchOptions returns the standard collection limits.
func DefaultFetchOptions() FetchOptions {
	return FetchOptions{
		MinCandidates: 100,
		MaxPages:      10,
		Language:      "en",
		Duration:      DurationRule{MaxMinutes: 8},
	}
}

// Batch is the outcome of one fetch: accepted videos and their subtitle lines.
type Batch struct {
	Videos    []Video
	Subtitles []SubtitleLine
	// Partial is set when pagination stopped before MinCandidates was reached.
	Partial bool
}

// Fetcher searches, filters and downloads transcripts for a query.
type Fetcher struct {
	searcher    Searcher
	details     DetailFetcher
	transcripts TranscriptFetcher
	filter      *Filter
	opts        FetchOptions
	newID       func() string
}

// NewFetcher creates a candidate fetcher.
func NewFetcher(searcher Searcher, details DetailFetcher, transcripts TranscriptFetcher, filter *Filter, opts FetchOptions) *Fetcher {
	defaults := DefaultFetchOptions()
	if opts.MinCandidates <= 0 {
		opts.MinCandidates = defaults.MinCandidates
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = defaults.MaxPages
	}
	if opts.Language == "" {
		opts.Language = defaults.Language
	}
	if opts.Duration.MaxMinutes <= 0 {
		opts.Duration.MaxMinutes = defaults.Duration.MaxMinutes
	}
	if filter == nil {
		filter = NewFilter(nil)
	}
	return &Fetcher{
		searcher:    searcher,
		details:     details,
		transcripts: transcripts,
		filter:      filter,
		opts:        opts,
		newID:       func() string { return uuid.NewString() },
	}
}

// Fetch collects accepted videos and their cleaned subtitle lines. An empty
// batch is returned without error when candidates exist but none survive the
// duration or transcript steps. A context that ends while transcripts are
// fetched is an error, not an empty batch.
func (f *Fetcher) Fetch(ctx context.Context, query string) (*Batch, error) {
	log := logrus.WithFields(logrus.Fields{"query": query, "searcher": f.searcher.Name()})

	candidates, partial, err := f.collect(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no titles matched %q", ErrInsufficientCandidates, query)
	}
	if partial {
		log.WithField("candidates", len(candidates)).Warn("insufficient candidates, continuing with partial set")
	}

	videos, err := f.withDetails(ctx, candidates)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(videos))
	for i, v := range videos {
		ids[i] = v.VideoID
	}
	captions, failed := f.transcripts.Transcripts(ctx, ids, f.opts.Language)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch transcripts: %w", err)
	}
	if len(failed) > 0 {
		log.WithField("failed", len(failed)).Info("dropped videos without transcripts")
	}

	batch := &Batch{Partial: partial}
	for _, v := range videos {
		lines := f.subtitleLines(v.VideoID, captions[v.VideoID])
		if len(lines) == 0 {
			continue
		}
		batch.Videos = append(batch.Videos, v)
		batch.Subtitles = append(batch.Subtitles, lines...)
	}

	log.WithFields(logrus.Fields{
		"candidates": len(candidates),
		"durations":  len(videos),
		"accepted":   len(batch.Videos),
		"lines":      len(batch.Subtitles),
	}).Info("fetched candidates")
	return batch, nil
}

// collect pages through search results until MinCandidates titles pass the
// filter, the provider runs out of pages, or MaxPages is reached.
func (f *Fetcher) collect(ctx context.Context, query string) ([]Candidate, bool, error) {
	seen := make(map[string]bool)
	var accepted []Candidate
	token := ""

	for page := 0; page < f.opts.MaxPages; page++ {
		result, err := f.searcher.Search(ctx, query, token)
		if err != nil {
			return nil, false, err
		}

		for _, c := range result.Candidates {
			if c.VideoID == "" || seen[c.VideoID] {
				continue
			}
			if !f.filter.Accept(c.Title, query) {
				continue
			}
			seen[c.VideoID] = true
			accepted = append(accepted, c)
		}

		if len(accepted) >= f.opts.MinCandidates {
			return accepted, false, nil
		}
		if result.NextPageToken == "" {
			break
		}
		token = result.NextPageToken
	}
	return accepted, true, nil
}

// withDetails looks up durations and statistics in provider-sized batches
// and keeps the videos that pass the duration rule.
func (f *Fetcher) withDetails(ctx context.Context, candidates []Candidate) ([]Video, error) {
	var videos []Video
	for start := 0; start < len(candidates); start += MaxDetailsBatch {
		end := min(start+MaxDetailsBatch, len(candidates))
		chunk := candidates[start:end]

		ids := make([]string, len(chunk))
		for i, c := range chunk {
			ids[i] = c.VideoID
		}

		details, err := f.details.Details(ctx, ids)
		if err != nil {
			return nil, err
		}

		for _, c := range chunk {
			d, ok := details[c.VideoID]
			if !ok || !f.opts.Duration.Accept(d.Duration) {
				continue
			}
			videos = append(videos, Video{
				VideoID: c.VideoID,
				Title:   c.Title,
				Link:    WatchURL(c.VideoID),
				Views:   max(d.Views, 0),
				Likes:   max(d.Likes, 0),
			})
		}
	}
	return videos, nil
}

func (f *Fetcher) subtitleLines(videoID string, captions []Caption) []SubtitleLine {
	var lines []SubtitleLine
	for _, c := range captions {
		text := CleanCaption(c.Text)
		if text == "" || c.Duration <= 0 {
			continue
		}
		lines = append(lines, SubtitleLine{
			ID:       f.newID(),
			VideoID:  videoID,
			Text:     text,
			Duration: c.Duration,
			Start:    max(c.Start, 0),
		})
	}
	return lines
}
