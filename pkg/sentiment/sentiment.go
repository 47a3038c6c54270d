// Package sentiment scores the polarity of short caption text with the VADER
// lexicon. The compound VADER score is used as the polarity, so every text
// maps into [-1, 1] and text without sentiment-laden words is neutral.
package sentiment

import (
	"strings"

	"github.com/jonreiter/govader"
)

// Analyzer computes text polarity. It is safe for concurrent use once built.
type Analyzer struct {
	vader *govader.SentimentIntensityAnalyzer
}

// New creates an analyzer over the VADER lexicon. extra adds or overrides
// words with valences on the VADER scale, -4 (most negative) to 4.
func New(extra map[string]float64) *Analyzer {
	vader := govader.NewSentimentIntensityAnalyzer()
	for w, v := range extra {
		vader.Lexicon[strings.ToLower(w)] = max(min(v, 4), -4)
	}
	return &Analyzer{vader: vader}
}

// Polarity returns the compound score in [-1, 1].
func (a *Analyzer) Polarity(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return a.vader.PolarityScores(text).Compound
}
