package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/elonfeng/toonrank/internal/config"
	"github.com/elonfeng/toonrank/internal/logging"
	"github.com/elonfeng/toonrank/internal/scheduler"
	"github.com/elonfeng/toonrank/internal/store"
	"github.com/elonfeng/toonrank/pkg/alert"
	"github.com/elonfeng/toonrank/pkg/rating"
	"github.com/elonfeng/toonrank/pkg/resolver"
	"github.com/elonfeng/toonrank/pkg/sentiment"
	"github.com/elonfeng/toonrank/pkg/server"
	"github.com/elonfeng/toonrank/pkg/source"
	"github.com/sirupsen/logrus"
)

// app holds the wired components shared by every command.
type app struct {
	cfg      *config.Config
	db       *store.SQLStore
	resolver *resolver.Resolver
	closeLog func() error
}

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setup loads config, configures logging and opens the store. The resolver
// is only built when withResolver is set, since it needs provider
// credentials.
func setup(withResolver bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logCloser, err := logging.Setup(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}

	db, err := store.Open(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	a := &app{cfg: cfg, db: db, closeLog: logCloser.Close}
	if withResolver {
		if err := cfg.RequireAPIKey(); err != nil {
			a.Close()
			return nil, err
		}
		a.resolver = buildResolver(cfg, db)
	}
	return a, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		logrus.WithError(err).Warn("close store")
	}
	a.closeLog()
}

func buildFetcher(cfg *config.Config) *source.Fetcher {
	opts := source.ClientOptions{
		Timeout:           cfg.YouTube.ParseTimeout(),
		RequestsPerSecond: cfg.YouTube.RequestsPerSecond,
		MaxTries:          cfg.YouTube.MaxRetries,
	}

	yt := source.NewYouTube(cfg.YouTube.APIKey, cfg.YouTube.Region, cfg.YouTube.Language, opts)
	var searcher source.Searcher = yt
	if cfg.YouTube.SearchMode == "feeds" {
		searcher = source.NewChannelFeeds(cfg.YouTube.Channels, opts)
	}

	return source.NewFetcher(
		searcher,
		yt,
		source.NewTimedtext(opts),
		source.NewFilter(cfg.Fetch.ExtraDenylist),
		source.FetchOptions{
			MinCandidates: cfg.Fetch.MinCandidates,
			MaxPages:      cfg.Fetch.MaxPages,
			Language:      cfg.Fetch.CaptionLanguage,
			Duration: source.DurationRule{
				MaxMinutes: cfg.Fetch.MaxMinutes,
				AllowShort: cfg.Fetch.AllowShort,
			},
		},
	)
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

func buildResolver(cfg *config.Config, db store.Store) *resolver.Resolver {
	var opts []resolver.Option
	if mgr := buildAlertManager(cfg); mgr.HasNotifiers() {
		opts = append(opts, resolver.WithNotifier(mgr))
	}
	return resolver.New(db, buildFetcher(cfg), rating.NewEngine(sentiment.New(nil)), opts...)
}

func runSearch(ctx context.Context, args []string, jsonOutput bool, limit int) error {
	a, err := setup(true)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.resolver.Resolve(ctx, strings.Join(args, " "))
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}

	videos := res.Videos
	if limit > 0 && len(videos) > limit {
		videos = videos[:limit]
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(videos)
	}

	if len(videos) == 0 {
		fmt.Printf("no cartoons found for %q\n", res.Query)
		return nil
	}

	rows := make([][]string, 0, len(videos))
	for i, v := range videos {
		rows = append(rows, []string{
			fmt.Sprint(i + 1),
			fmt.Sprintf("%.3f", v.NormRating),
			humanize.Comma(v.Views),
			humanize.Comma(v.Likes),
			v.Title,
			v.Link,
		})
	}
	fmt.Println(renderTable(
		[]string{"#", "Rating", "Views", "Likes", "Title", "Link"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignLeft, alignLeft},
	))
	fmt.Fprintf(os.Stderr, "%s: %d videos (%s)\n", res.Query, len(res.Videos), res.State)
	return nil
}

func runQueries(ctx context.Context, jsonOutput bool) error {
	a, err := setup(false)
	if err != nil {
		return err
	}
	defer a.Close()

	queries, err := a.db.ListQueries(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(queries)
	}

	if len(queries) == 0 {
		fmt.Println("no cached queries (try: toonrank search \"tom and jerry\")")
		return nil
	}

	rows := make([][]string, 0, len(queries))
	for _, q := range queries {
		rows = append(rows, []string{q.Text, humanize.Comma(int64(q.Videos))})
	}
	fmt.Println(renderTable([]string{"Query", "Videos"}, rows, []columnAlignment{alignLeft, alignRight}))
	return nil
}

func runServe(port int, warm bool) error {
	a, err := setup(true)
	if err != nil {
		return err
	}
	defer a.Close()

	if port == 0 {
		port = a.cfg.Server.Port
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if warm {
		sched := scheduler.New(a.resolver, a.cfg.Schedule.WarmQueries, a.cfg.Schedule.ParseWarmInterval())
		go func() {
			if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
				logrus.WithError(err).Error("scheduler stopped")
			}
		}()
	}

	srv := server.New(a.resolver, a.db, port, a.cfg.Server.PerPage)
	err = srv.ListenAndServe(ctx)
	logrus.Info("shutting down")
	return err
}
