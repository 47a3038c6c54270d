// Package resolver turns a user query into a ranked list of cartoon videos,
// serving repeated queries from the store and fetching, rating and
// persisting new ones.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/elonfeng/toonrank/internal/metrics"
	"github.com/elonfeng/toonrank/internal/store"
	"github.com/elonfeng/toonrank/pkg/alert"
	"github.com/elonfeng/toonrank/pkg/rating"
	"github.com/elonfeng/toonrank/pkg/source"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrEmptyQuery is returned for a query that is blank after normalization.
var ErrEmptyQuery = errors.New("empty query")

// State describes how a query was served.
type State string

const (
	// QueryUnseen: the query is not stored and the fetch produced nothing to rate.
	QueryUnseen State = "query_unseen"
	// QueryHit: the query was already stored; no provider was called.
	QueryHit State = "query_hit"
	// PartialOverlap: a new query whose batch contained already stored videos.
	PartialOverlap State = "partial_overlap"
	// FullMiss: a new query whose videos were all new.
	FullMiss State = "full_miss"
)

// Fetcher produces candidate videos and subtitle lines for a query.
type Fetcher interface {
	Fetch(ctx context.Context, query string) (*source.Batch, error)
}

// Rater rates a fetch batch.
type Rater interface {
	Rate(videos []source.Video, lines []source.SubtitleLine) []rating.RatedVideo
}

// Notifier is told about newly indexed queries. *alert.Manager implements it.
type Notifier interface {
	Broadcast(ctx context.Context, n *alert.Notification) error
}

// Result is the ranked answer to one query.
type Result struct {
	Query   string              `json:"query"`
	State   State               `json:"state"`
	Partial bool                `json:"partial,omitempty"`
	Videos  []store.RankedVideo `json:"videos"`
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithNotifier sets the notifier called after a query is indexed.
func WithNotifier(n Notifier) Option {
	return func(r *Resolver) { r.notifier = n }
}

// Resolver reconciles fetched videos with the store.
type Resolver struct {
	store    store.Store
	fetcher  Fetcher
	rater    Rater
	notifier Notifier
	newID    func() string
}

// New creates a resolver.
func New(st store.Store, fetcher Fetcher, rater Rater, opts ...Option) *Resolver {
	r := &Resolver{
		store:   st,
		fetcher: fetcher,
		rater:   rater,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Normalize trims, collapses inner whitespace and lowercases a query. The
// result is the cache key.
func Normalize(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// Resolve returns the ranked videos for query. Stored queries are answered
// from the store alone. Otherwise the batch is fetched, rated and persisted
// in one transaction, and the answer is read back from the store.
func (r *Resolver) Resolve(ctx context.Context, query string) (*Result, error) {
	text := Normalize(query)
	if text == "" {
		return nil, ErrEmptyQuery
	}

	start := time.Now()
	res, err := r.resolve(ctx, text)
	if err != nil {
		return nil, err
	}

	metrics.Resolutions.WithLabelValues(string(res.State)).Inc()
	metrics.ResolveDuration.WithLabelValues(string(res.State)).Observe(time.Since(start).Seconds())
	logrus.WithFields(logrus.Fields{
		"query":    text,
		"state":    res.State,
		"videos":   len(res.Videos),
		"duration": time.Since(start).Round(time.Millisecond),
	}).Info("query resolved")
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, text string) (*Result, error) {
	q, err := r.store.FindQuery(ctx, text)
	if err != nil {
		metrics.ResolveErrors.WithLabelValues("lookup").Inc()
		return nil, err
	}
	if q != nil {
		return r.read(ctx, text, QueryHit)
	}

	batch, err := r.fetcher.Fetch(ctx, text)
	if errors.Is(err, source.ErrInsufficientCandidates) {
		logrus.WithField("query", text).WithError(err).Info("nothing to rate")
		return unseen(text), nil
	}
	if err != nil {
		metrics.ResolveErrors.WithLabelValues("fetch").Inc()
		return nil, fmt.Errorf("fetch %q: %w", text, err)
	}

	rated := r.rater.Rate(batch.Videos, batch.Subtitles)
	if len(rated) == 0 {
		return unseen(text), nil
	}

	ids := make([]string, len(rated))
	for i, v := range rated {
		ids[i] = v.VideoID
	}
	existing, err := r.store.ExistingVideoIDs(ctx, ids)
	if err != nil {
		metrics.ResolveErrors.WithLabelValues("lookup").Inc()
		return nil, err
	}

	resolution := partition(r.newID(), text, rated, batch.Subtitles, existing)
	state := FullMiss
	if len(existing) > 0 {
		state = PartialOverlap
	}

	stored, err := r.store.SaveResolution(ctx, resolution)
	if err != nil {
		metrics.ResolveErrors.WithLabelValues("persist").Inc()
		return nil, err
	}
	if !stored {
		// A concurrent resolution of the same text committed first.
		logrus.WithField("query", text).Info("query stored concurrently, reading stored ranking")
		state = QueryHit
	}

	res, err := r.read(ctx, text, state)
	if err != nil {
		return nil, err
	}
	res.Partial = batch.Partial
	if stored {
		r.notify(ctx, res, len(resolution.Videos))
	}
	return res, nil
}

// partition splits a rated batch into rows for new videos and rating rows
// for every video.
func partition(queryID, text string, rated []rating.RatedVideo, lines []source.SubtitleLine, existing map[string]bool) *store.Resolution {
	res := &store.Resolution{QueryID: queryID, Query: text}
	fresh := make(map[string]bool)
	for _, v := range rated {
		res.Ratings = append(res.Ratings, store.VideoRating{VideoID: v.VideoID, NormRating: v.NormRating})
		if existing[v.VideoID] {
			continue
		}
		fresh[v.VideoID] = true
		res.Videos = append(res.Videos, store.NewVideo{Video: v.Video, Rating: v.Rating})
	}
	for _, l := range lines {
		if fresh[l.VideoID] {
			res.Subtitles = append(res.Subtitles, l)
		}
	}
	return res
}

func (r *Resolver) read(ctx context.Context, text string, state State) (*Result, error) {
	videos, err := r.store.RankedVideos(ctx, text)
	if err != nil {
		metrics.ResolveErrors.WithLabelValues("read").Inc()
		return nil, err
	}
	if videos == nil {
		videos = []store.RankedVideo{}
	}
	return &Result{Query: text, State: state, Videos: videos}, nil
}

func (r *Resolver) notify(ctx context.Context, res *Result, added int) {
	if r.notifier == nil {
		return
	}

	n := &alert.Notification{
		Query: res.Query,
		State: string(res.State),
		Title: fmt.Sprintf("New query indexed: %s", res.Query),
		Body:  fmt.Sprintf("%d videos rated, %d new to the catalogue", len(res.Videos), added),
	}
	// Best rated first.
	for i := len(res.Videos) - 1; i >= 0; i-- {
		v := res.Videos[i]
		n.Videos = append(n.Videos, alert.Video{Title: v.Title, Link: v.Link, NormRating: v.NormRating})
	}

	if err := r.notifier.Broadcast(ctx, n); err != nil {
		logrus.WithField("query", res.Query).WithError(err).Warn("notification failed")
	}
}

func unseen(text string) *Result {
	return &Result{Query: text, State: QueryUnseen, Videos: []store.RankedVideo{}}
}
