package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"
)

const channelFeedBase = "https://www.youtube.com/feeds/videos.xml"

// ChannelFeeds searches the Atom upload feeds of a fixed set of channels.
// It costs no API quota, so it can stand in for the search endpoint when
// the catalogue is limited to known cartoon channels. Feeds are not
// paginated.
type ChannelFeeds struct {
	http     *httpClient
	parser   *gofeed.Parser
	baseURL  string
	channels []string
}

// NewChannelFeeds creates a feed searcher over the given channel ids.
func NewChannelFeeds(channels []string, opts ClientOptions) *ChannelFeeds {
	opts = opts.withDefaults(channelFeedBase)
	return &ChannelFeeds{
		http:     newHTTPClient("feeds", opts),
		parser:   gofeed.NewParser(),
		baseURL:  opts.BaseURL,
		channels: channels,
	}
}

func (c *ChannelFeeds) Name() string { return "feeds" }

// Search returns every feed entry; the title filter downstream matches the
// query. pageToken is ignored.
func (c *ChannelFeeds) Search(ctx context.Context, query, pageToken string) (SearchPage, error) {
	if len(c.channels) == 0 {
		return SearchPage{}, fmt.Errorf("%w: feeds: no channels configured", ErrProvider)
	}

	var page SearchPage
	var failures int
	for _, channel := range c.channels {
		candidates, err := c.collectChannel(ctx, channel)
		if err != nil {
			logrus.WithField("channel", channel).WithError(err).Warn("channel feed failed")
			failures++
			continue
		}
		page.Candidates = append(page.Candidates, candidates...)
	}

	if failures == len(c.channels) {
		return SearchPage{}, fmt.Errorf("%w: feeds: all %d channels failed", ErrProvider, failures)
	}
	return page, nil
}

func (c *ChannelFeeds) collectChannel(ctx context.Context, channel string) ([]Candidate, error) {
	reqURL := c.baseURL + "?" + url.Values{"channel_id": {channel}}.Encode()
	body, err := c.http.get(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", channel, err)
	}

	parsed, err := c.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", channel, err)
	}

	candidates := make([]Candidate, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		candidates = append(candidates, Candidate{
			VideoID: feedVideoID(entry),
			Title:   strings.TrimSpace(entry.Title),
		})
	}
	return candidates, nil
}

// feedVideoID reads the yt:videoId extension, falling back to the watch link.
func feedVideoID(entry *gofeed.Item) string {
	if yt, ok := entry.Extensions["yt"]; ok {
		if ids := yt["videoId"]; len(ids) > 0 && ids[0].Value != "" {
			return ids[0].Value
		}
	}
	if u, err := url.Parse(entry.Link); err == nil {
		return u.Query().Get("v")
	}
	return ""
}
