package rating

import (
	"github.com/elonfeng/toonrank/pkg/source"
)

const (
	// SingleVideoRating is assigned when a batch holds one video.
	SingleVideoRating = 1.0
	// TiedRating is assigned to every video when all raw ratings are equal.
	TiedRating = 0.5
)

// Scorer returns the polarity of a text in [-1, 1].
type Scorer interface {
	Polarity(text string) float64
}

// RatedVideo is a fetched video with its raw and batch-normalized rating.
type RatedVideo struct {
	source.Video
	Rating     float64 `json:"rating"`
	NormRating float64 `json:"norm_rating"`
}

// Engine computes sentiment ratings for a fetch batch.
type Engine struct {
	scorer Scorer
}

// NewEngine creates a new rating engine.
func NewEngine(scorer Scorer) *Engine {
	return &Engine{scorer: scorer}
}

// Rate scores every subtitle line (writing lines[i].Sentiment), sums the
// duration-weighted sentiment per video and min-max normalizes the sums
// over the batch. Videos without lines are dropped. Output keeps the input
// video order.
func (e *Engine) Rate(videos []source.Video, lines []source.SubtitleLine) []RatedVideo {
	sums := make(map[string]float64)
	for i := range lines {
		lines[i].Sentiment = e.scorer.Polarity(lines[i].Text)
		sums[lines[i].VideoID] += lines[i].Sentiment * lines[i].Duration
	}

	rated := make([]RatedVideo, 0, len(videos))
	for _, v := range videos {
		raw, ok := sums[v.VideoID]
		if !ok {
			continue
		}
		rated = append(rated, RatedVideo{Video: v, Rating: raw})
	}

	raw := make([]float64, len(rated))
	for i, r := range rated {
		raw[i] = r.Rating
	}
	for i, n := range Normalize(raw) {
		rated[i].NormRating = n
	}
	return rated
}

// Normalize min-max scales values into [0, 1]. A single value maps to
// SingleVideoRating and a batch of equal values maps to TiedRating.
func Normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	switch len(values) {
	case 0:
		return out
	case 1:
		out[0] = SingleVideoRating
		return out
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	span := hi - lo
	for i, v := range values {
		if span == 0 {
			out[i] = TiedRating
			continue
		}
		out[i] = (v - lo) / span
	}
	return out
}
