package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYouTubeSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "snippet", q.Get("part"))
		assert.Equal(t, "video", q.Get("type"))
		assert.Equal(t, "50", q.Get("maxResults"))
		assert.Equal(t, "en", q.Get("relevanceLanguage"))
		assert.Equal(t, "US", q.Get("regionCode"))
		assert.Equal(t, "tom and jerry", q.Get("q"))
		assert.Equal(t, "k", q.Get("key"))

		if q.Get("pageToken") == "" {
			fmt.Fprint(w, `{"nextPageToken":"P2","items":[
				{"id":{"videoId":"a1"},"snippet":{"title":"Tom &amp; Jerry &#39;Cat Fight&#39;"}},
				{"id":{"videoId":"a2"},"snippet":{"title":" Jerry "}}]}`)
			return
		}
		assert.Equal(t, "P2", q.Get("pageToken"))
		fmt.Fprint(w, `{"items":[{"id":{"videoId":"a3"},"snippet":{"title":"Tom"}}]}`)
	}))
	defer srv.Close()

	yt := NewYouTube("k", "", "", ClientOptions{BaseURL: srv.URL, MaxTries: 1})
	assert.Equal(t, "youtube", yt.Name())

	page, err := yt.Search(context.Background(), "tom and jerry", "")
	require.NoError(t, err)
	assert.Equal(t, "P2", page.NextPageToken)
	require.Len(t, page.Candidates, 2)
	assert.Equal(t, Candidate{VideoID: "a1", Title: "Tom & Jerry 'Cat Fight'"}, page.Candidates[0])
	assert.Equal(t, "Jerry", page.Candidates[1].Title)

	page, err = yt.Search(context.Background(), "tom and jerry", "P2")
	require.NoError(t, err)
	assert.Empty(t, page.NextPageToken)
	assert.Len(t, page.Candidates, 1)
}

func TestYouTubeSearchWithoutKey(t *testing.T) {
	yt := NewYouTube("", "", "", ClientOptions{BaseURL: "http://127.0.0.1:1"})
	_, err := yt.Search(context.Background(), "tom", "")
	assert.ErrorIs(t, err, ErrProvider)
}

func TestYouTubeDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/videos", r.URL.Path)
		assert.Equal(t, "contentDetails,statistics", r.URL.Query().Get("part"))
		assert.Equal(t, "a1,a2", r.URL.Query().Get("id"))
		fmt.Fprint(w, `{"items":[
			{"id":"a1","contentDetails":{"duration":"PT4M13S"},"statistics":{"viewCount":"1200","likeCount":"34"}},
			{"id":"a2","contentDetails":{"duration":"PT1H"},"statistics":{"viewCount":"9"}}]}`)
	}))
	defer srv.Close()

	yt := NewYouTube("k", "US", "en", ClientOptions{BaseURL: srv.URL, MaxTries: 1})
	details, err := yt.Details(context.Background(), []string{"a1", "a2"})
	require.NoError(t, err)
	assert.Equal(t, Details{Duration: "PT4M13S", Views: 1200, Likes: 34}, details["a1"])
	assert.Equal(t, Details{Duration: "PT1H", Views: 9}, details["a2"])
}

func TestYouTubeDetailsBatchLimit(t *testing.T) {
	yt := NewYouTube("k", "", "", ClientOptions{BaseURL: "http://127.0.0.1:1"})
	ids := strings.Split(strings.Repeat("x,", MaxDetailsBatch), ",")
	_, err := yt.Details(context.Background(), ids)
	assert.ErrorContains(t, err, "batch limit")

	details, err := yt.Details(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, details)
}

func TestYouTubeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"items":[]}`)
	}))
	defer srv.Close()

	yt := NewYouTube("k", "", "", ClientOptions{BaseURL: srv.URL, MaxTries: 3, InitialBackoff: time.Millisecond})
	page, err := yt.Search(context.Background(), "tom", "")
	require.NoError(t, err)
	assert.Empty(t, page.Candidates)
	assert.Equal(t, int32(3), calls.Load())
}

func TestYouTubeClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	yt := NewYouTube("k", "", "", ClientOptions{BaseURL: srv.URL, MaxTries: 5, InitialBackoff: time.Millisecond})
	_, err := yt.Search(context.Background(), "tom", "")
	require.ErrorIs(t, err, ErrProvider)
	assert.ErrorContains(t, err, "status 403")
	assert.Equal(t, int32(1), calls.Load())

	_, err = yt.Details(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrProvider)
}
