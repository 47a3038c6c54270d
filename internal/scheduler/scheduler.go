package scheduler

import (
	"context"
	"time"

	"github.com/elonfeng/toonrank/pkg/resolver"
	"github.com/sirupsen/logrus"
)

// Resolver resolves one query.
type Resolver interface {
	Resolve(ctx context.Context, query string) (*resolver.Result, error)
}

// Scheduler keeps a fixed list of queries warm in the cache. Queries are
// resolved sequentially; stored ones cost a single lookup.
type Scheduler struct {
	resolver Resolver
	queries  []string
	interval time.Duration
}

// New creates a new scheduler.
func New(r Resolver, queries []string, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &Scheduler{resolver: r, queries: queries, interval: interval}
}

// Run warms the queries immediately and then on every tick. Blocks until
// ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.queries) == 0 {
		logrus.Info("scheduler: no warm queries configured")
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logrus.WithField("queries", len(s.queries)).Info("scheduler: initial warm-up")
	s.WarmAll(ctx)

	logrus.WithField("interval", s.interval).Info("scheduler: running")
	for {
		select {
		case <-ctx.Done():
			logrus.Info("scheduler: stopped")
			return ctx.Err()
		case <-ticker.C:
			s.WarmAll(ctx)
		}
	}
}

// WarmAll resolves every configured query once and reports how many were
// fetched from the provider. Failures are logged and do not stop the pass.
func (s *Scheduler) WarmAll(ctx context.Context) int {
	fetched := 0
	for _, q := range s.queries {
		if ctx.Err() != nil {
			break
		}

		log := logrus.WithField("query", q)
		res, err := s.resolver.Resolve(ctx, q)
		if err != nil {
			log.WithError(err).Warn("scheduler: warm failed")
			continue
		}
		if res.State != resolver.QueryHit {
			fetched++
		}
		log.WithFields(logrus.Fields{"state": res.State, "videos": len(res.Videos)}).Debug("scheduler: warmed")
	}
	return fetched
}
