package source

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

const timedtextBase = "https://www.youtube.com"

// Timedtext fetches caption tracks from the YouTube timedtext endpoint.
type Timedtext struct {
	http    *httpClient
	baseURL string
}

// NewTimedtext creates a new transcript client.
func NewTimedtext(opts ClientOptions) *Timedtext {
	opts = opts.withDefaults(timedtextBase)
	return &Timedtext{
		http:    newHTTPClient("timedtext", opts),
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// Transcripts fetches captions for every id. A failure for one video only
// adds it to failed; the remaining ids are still fetched.
func (t *Timedtext) Transcripts(ctx context.Context, ids []string, lang string) (map[string][]Caption, []string) {
	found := make(map[string][]Caption, len(ids))
	var failed []string

	for _, id := range ids {
		if ctx.Err() != nil {
			failed = append(failed, id)
			continue
		}
		captions, err := t.transcript(ctx, id, lang)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"video_id": id,
				"lang":     lang,
			}).WithError(err).Debug("transcript unavailable")
			failed = append(failed, id)
			continue
		}
		found[id] = captions
	}
	return found, failed
}

func (t *Timedtext) transcript(ctx context.Context, videoID, lang string) ([]Caption, error) {
	params := url.Values{}
	params.Set("v", videoID)
	params.Set("lang", lang)

	body, err := t.http.get(ctx, t.baseURL+"/api/timedtext?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("fetch transcript %s: %w", videoID, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("transcript %s: no captions for %q", videoID, lang)
	}

	var doc timedtextDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse transcript %s: %w", videoID, err)
	}
	if len(doc.Texts) == 0 {
		return nil, fmt.Errorf("transcript %s: empty track", videoID)
	}

	captions := make([]Caption, 0, len(doc.Texts))
	for _, text := range doc.Texts {
		captions = append(captions, Caption{
			Text:     html.UnescapeString(text.Body),
			Start:    text.Start,
			Duration: text.Dur,
		})
	}
	return captions, nil
}

type timedtextDoc struct {
	XMLName xml.Name `xml:"transcript"`
	Texts   []struct {
		Start float64 `xml:"start,attr"`
		Dur   float64 `xml:"dur,attr"`
		Body  string  `xml:",chardata"`
	} `xml:"text"`
}

var stageDirection = regexp.MustCompile(`[(\[].*?[)\]]`)

// CleanCaption strips parenthesized and bracketed stage directions such as
// "[Music]" or "(laughs)" and collapses whitespace.
func CleanCaption(text string) string {
	text = stageDirection.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}
