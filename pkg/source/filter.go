package source

import (
	"strings"
	"unicode"
)

// DefaultDenylist holds the title terms that mark non-cartoon or
// multi-clip uploads.
var DefaultDenylist = []string{
	"compilation", "episodes", "best moments", "scenes", "best scenes",
	"moments", "draw", "doodle art", "remixs", "gta",
}

// Filter decides whether a search hit is worth fetching details for.
type Filter struct {
	deny [][]string
}

// NewFilter creates a filter with the default denylist plus extras.
func NewFilter(extraDeny []string) *Filter {
	terms := make([]string, 0, len(DefaultDenylist)+len(extraDeny))
	terms = append(terms, DefaultDenylist...)
	terms = append(terms, extraDeny...)

	deny := make([][]string, 0, len(terms))
	for _, term := range terms {
		if w := words(term); len(w) > 0 {
			deny = append(deny, w)
		}
	}
	return &Filter{deny: deny}
}

// Accept reports whether a title passes the denylist and mentions at least
// one query word.
func (f *Filter) Accept(title, query string) bool {
	titleWords := words(title)
	if len(titleWords) == 0 {
		return false
	}
	if f.denied(titleWords) {
		return false
	}
	return mentionsQuery(titleWords, words(query))
}

// Denied reports whether any denylist term occurs in title as whole words.
func (f *Filter) Denied(title string) bool {
	return f.denied(words(title))
}

func (f *Filter) denied(titleWords []string) bool {
	for _, phrase := range f.deny {
		if containsPhrase(titleWords, phrase) {
			return true
		}
	}
	return false
}

func mentionsQuery(titleWords, queryWords []string) bool {
	set := make(map[string]bool, len(titleWords))
	for _, w := range titleWords {
		set[w] = true
	}
	for _, q := range queryWords {
		if set[q] {
			return true
		}
	}
	return false
}

func containsPhrase(haystack, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(haystack) {
		return false
	}
	for i := 0; i+len(phrase) <= len(haystack); i++ {
		match := true
		for j := range phrase {
			if haystack[i+j] != phrase[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// words lowercases s and splits it on anything that is not a letter or digit.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
