package source

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strings"
)

const youtubeAPIBase = "https://www.googleapis.com/youtube/v3"

// YouTube is a client for the YouTube Data API v3 search and videos
// endpoints.
type YouTube struct {
	http     *httpClient
	apiKey   string
	baseURL  string
	region   string
	language string
}

// NewYouTube creates a new YouTube Data API client.
func NewYouTube(apiKey, region, language string, opts ClientOptions) *YouTube {
	opts = opts.withDefaults(youtubeAPIBase)
	if region == "" {
		region = "US"
	}
	if language == "" {
		language = "en"
	}
	return &YouTube{
		http:     newHTTPClient("youtube", opts),
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		region:   region,
		language: language,
	}
}

func (y *YouTube) Name() string { return "youtube" }

// Search returns one page of video search results.
func (y *YouTube) Search(ctx context.Context, query, pageToken string) (SearchPage, error) {
	if y.apiKey == "" {
		return SearchPage{}, fmt.Errorf("%w: youtube: API key required (set YOUTUBE_API_KEY)", ErrProvider)
	}

	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("q", query)
	params.Set("type", "video")
	params.Set("maxResults", "50")
	params.Set("relevanceLanguage", y.language)
	params.Set("regionCode", y.region)
	params.Set("key", y.apiKey)
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	var result ytSearchResult
	if err := y.http.getJSON(ctx, y.baseURL+"/search?"+params.Encode(), &result); err != nil {
		return SearchPage{}, fmt.Errorf("%w: youtube search %q: %w", ErrProvider, query, err)
	}

	page := SearchPage{NextPageToken: result.NextPageToken}
	for _, item := range result.Items {
		page.Candidates = append(page.Candidates, Candidate{
			VideoID: item.ID.VideoID,
			Title:   strings.TrimSpace(html.UnescapeString(item.Snippet.Title)),
		})
	}
	return page, nil
}

// Details fetches duration and statistics for up to MaxDetailsBatch ids.
// Missing counters default to zero.
func (y *YouTube) Details(ctx context.Context, ids []string) (map[string]Details, error) {
	if len(ids) > MaxDetailsBatch {
		return nil, fmt.Errorf("youtube details: %d ids exceeds batch limit %d", len(ids), MaxDetailsBatch)
	}
	if len(ids) == 0 {
		return map[string]Details{}, nil
	}

	params := url.Values{}
	params.Set("part", "contentDetails,statistics")
	params.Set("id", strings.Join(ids, ","))
	params.Set("key", y.apiKey)

	var result ytVideoResult
	if err := y.http.getJSON(ctx, y.baseURL+"/videos?"+params.Encode(), &result); err != nil {
		return nil, fmt.Errorf("%w: youtube videos: %w", ErrProvider, err)
	}

	details := make(map[string]Details, len(result.Items))
	for _, video := range result.Items {
		details[video.ID] = Details{
			Duration: video.ContentDetails.Duration,
			Views:    video.Statistics.ViewCount,
			Likes:    video.Statistics.LikeCount,
		}
	}
	return details, nil
}

type ytSearchResult struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
	} `json:"items"`
}

type ytVideoResult struct {
	Items []struct {
		ID             string `json:"id"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
		Statistics struct {
			ViewCount int64 `json:"viewCount,string"`
			LikeCount int64 `json:"likeCount,string"`
		} `json:"statistics"`
	} `json:"items"`
}
