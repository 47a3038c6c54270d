package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/elonfeng/toonrank/pkg/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	mu    sync.Mutex
	seen  map[string]int
	fail  string
	calls chan string
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{seen: make(map[string]int), calls: make(chan string, 1024)}
}

func (f *fakeResolver) Resolve(_ context.Context, q string) (*resolver.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls <- q
	if q == f.fail {
		return nil, errors.New("provider down")
	}
	f.seen[q]++
	state := resolver.FullMiss
	if f.seen[q] > 1 {
		state = resolver.QueryHit
	}
	return &resolver.Result{Query: q, State: state}, nil
}

func TestWarmAll(t *testing.T) {
	r := newFakeResolver()
	r.fail = "broken"
	s := New(r, []string{"tom and jerry", "broken", "popeye"}, time.Hour)

	assert.Equal(t, 2, s.WarmAll(context.Background()))
	assert.Equal(t, 0, s.WarmAll(context.Background()), "second pass only hits the cache")
}

func TestWarmAllStopsOnCancel(t *testing.T) {
	r := newFakeResolver()
	s := New(r, []string{"a", "b"}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, 0, s.WarmAll(ctx))
	assert.Empty(t, r.calls)
}

func TestRunWarmsImmediatelyAndOnTick(t *testing.T) {
	r := newFakeResolver()
	s := New(r, []string{"felix"}, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	for range 2 {
		select {
		case q := <-r.calls:
			assert.Equal(t, "felix", q)
		case <-time.After(2 * time.Second):
			t.Fatal("query was not warmed")
		}
	}

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestRunWithoutQueries(t *testing.T) {
	s := New(newFakeResolver(), nil, 0)
	assert.Equal(t, 6*time.Hour, s.interval)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Run(ctx), context.DeadlineExceeded)
}
