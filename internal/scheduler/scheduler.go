// Package scheduler fans episode processing out across feeds with bounded
// concurrency. One failing feed never takes down a run; every run leaves an
// audit record behind.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"podcast-insights-go/internal/logger"
	"podcast-insights-go/internal/pipeline"
	"podcast-insights-go/internal/types"
)

// ErrBusy is returned when a scheduled run finds a previous run still in
// flight. Scheduled runs skip rather than queue behind each other.
var ErrBusy = errors.New("a run is already in progress")

// Catalog lists the feeds and episodes a run operates on.
type Catalog interface {
	ListFeeds(ctx context.Context) ([]types.Feed, error)
	GetFeed(ctx context.Context, feedID int64) (types.Feed, error)
	ListPendingEpisodes(ctx context.Context, feedID int64) ([]types.Episode, error)
	ListFailedEpisodes(ctx context.Context) ([]types.Episode, error)
}

// Refresher pulls newly published episodes for a feed into the catalog
// before a run walks it, reporting how many were added. NopRefresher
// satisfies it when ingestion happens out of band.
type Refresher interface {
	Refresh(ctx context.Context, feed types.Feed) (int, error)
}

type NopRefresher struct{}

func (NopRefresher) Refresh(context.Context, types.Feed) (int, error) { return 0, nil }

// AuditStore records one TaskLog row per run.
type AuditStore interface {
	CreateTaskLog(ctx context.Context, kind types.TaskKind) (int64, error)
	FinishTaskLog(ctx context.Context, id int64, total, processed, failed int, errDetail string) error
}

// EpisodeProcessor is the per-episode pipeline entrypoint.
type EpisodeProcessor interface {
	Process(ctx context.Context, ep types.Episode) (pipeline.Outcome, error)
	Reprocess(ctx context.Context, ep types.Episode) (pipeline.Outcome, error)
}

type FeedError struct {
	FeedID  int64
	Message string
}

// RunSummary aggregates one run's outcomes. Errors holds one human-readable
// entry per failed episode; it is concatenated into the run's audit record.
type RunSummary struct {
	Total      int
	Completed  int
	Failed     int
	Skipped    int
	FeedErrors []FeedError
	Errors     []string
}

type Config struct {
	MaxConcurrentFeeds int
	UpdateWindow       time.Duration
}

type Scheduler struct {
	catalog   Catalog
	refresher Refresher
	audit     AuditStore
	proc      EpisodeProcessor
	cfg       Config
	busy      atomic.Bool
	log       *logrus.Entry
}

func New(catalog Catalog, refresher Refresher, audit AuditStore, proc EpisodeProcessor, cfg Config) *Scheduler {
	if cfg.MaxConcurrentFeeds <= 0 {
		cfg.MaxConcurrentFeeds = 3
	}
	return &Scheduler{
		catalog:   catalog,
		refresher: refresher,
		audit:     audit,
		proc:      proc,
		cfg:       cfg,
		log:       logger.Component("scheduler"),
	}
}

// RunAll processes every pending episode across all feeds.
func (s *Scheduler) RunAll(ctx context.Context) (RunSummary, error) {
	acquired := s.busy.CompareAndSwap(false, true)
	if acquired {
		defer s.busy.Store(false)
	}
	return s.audited(ctx, types.TaskFullRun, func(ctx context.Context) (RunSummary, error) {
		return s.runFeeds(ctx, nil, nil)
	})
}

// RunScheduled is the ticker entrypoint: it skips outright when a run is
// already in flight, and only considers episodes published inside the
// trailing update window.
func (s *Scheduler) RunScheduled(ctx context.Context) (RunSummary, error) {
	if !s.busy.CompareAndSwap(false, true) {
		s.log.Info("previous run still in flight, skipping scheduled run")
		return RunSummary{}, ErrBusy
	}
	defer s.busy.Store(false)

	cutoff := time.Now().Add(-s.cfg.UpdateWindow)
	return s.audited(ctx, types.TaskFullRun, func(ctx context.Context) (RunSummary, error) {
		return s.runFeeds(ctx, nil, func(ep types.Episode) bool {
			return ep.PublishedAt.After(cutoff)
		})
	})
}

// RunFeed processes one feed's pending episodes.
func (s *Scheduler) RunFeed(ctx context.Context, feedID int64) (RunSummary, error) {
	acquired := s.busy.CompareAndSwap(false, true)
	if acquired {
		defer s.busy.Store(false)
	}
	return s.audited(ctx, types.TaskSingleFeed, func(ctx context.Context) (RunSummary, error) {
		feed, err := s.catalog.GetFeed(ctx, feedID)
		if err != nil {
			return RunSummary{}, fmt.Errorf("load feed %d: %w", feedID, err)
		}
		return s.runFeeds(ctx, []types.Feed{feed}, nil)
	})
}

// ReprocessEpisode retriggers one episode under its own audit record.
func (s *Scheduler) ReprocessEpisode(ctx context.Context, ep types.Episode) (RunSummary, error) {
	return s.audited(ctx, types.TaskSingleEpisode, func(ctx context.Context) (RunSummary, error) {
		var sum RunSummary
		outcome, err := s.proc.Reprocess(ctx, ep)
		s.tally(&sum, ep, outcome, err)
		return sum, nil
	})
}

// RetryFailed sweeps every failed episode back through the pipeline via
// reprocessing, so stale failure artifacts never survive a successful retry.
func (s *Scheduler) RetryFailed(ctx context.Context) (RunSummary, error) {
	acquired := s.busy.CompareAndSwap(false, true)
	if acquired {
		defer s.busy.Store(false)
	}
	return s.audited(ctx, types.TaskRetryFailed, func(ctx context.Context) (RunSummary, error) {
		episodes, err := s.catalog.ListFailedEpisodes(ctx)
		if err != nil {
			return RunSummary{}, fmt.Errorf("list failed episodes: %w", err)
		}
		var sum RunSummary
		for _, ep := range episodes {
			outcome, err := s.proc.Reprocess(ctx, ep)
			s.tally(&sum, ep, outcome, err)
		}
		return sum, nil
	})
}

// audited wraps a run with its TaskLog lifecycle: created up front,
// finalized exactly once with the totals.
func (s *Scheduler) audited(ctx context.Context, kind types.TaskKind, run func(context.Context) (RunSummary, error)) (RunSummary, error) {
	id, err := s.audit.CreateTaskLog(ctx, kind)
	if err != nil {
		return RunSummary{}, fmt.Errorf("create task log: %w", err)
	}

	sum, runErr := run(ctx)

	detail := ""
	if runErr != nil {
		detail = runErr.Error()
	} else {
		var parts []string
		for _, fe := range sum.FeedErrors {
			parts = append(parts, fmt.Sprintf("feed %d: %s", fe.FeedID, fe.Message))
		}
		parts = append(parts, sum.Errors...)
		detail = strings.Join(parts, "; ")
	}
	if err := s.audit.FinishTaskLog(ctx, id, sum.Total, sum.Completed, sum.Failed, detail); err != nil {
		s.log.WithError(err).WithField("task_log_id", id).Error("could not finalize task log")
	}

	s.log.WithFields(logrus.Fields{
		"kind":      kind,
		"total":     sum.Total,
		"completed": sum.Completed,
		"failed":    sum.Failed,
		"skipped":   sum.Skipped,
	}).Info("run finished")
	return sum, runErr
}

type feedResult struct {
	summary RunSummary
	feedErr *FeedError
}

// runFeeds walks the given feeds (all of them when nil) through a bounded
// worker pool. Each worker owns one feed at a time, so MaxConcurrentFeeds
// caps how many feeds are in flight.
func (s *Scheduler) runFeeds(ctx context.Context, feeds []types.Feed, include func(types.Episode) bool) (RunSummary, error) {
	if feeds == nil {
		var err error
		feeds, err = s.catalog.ListFeeds(ctx)
		if err != nil {
			return RunSummary{}, fmt.Errorf("list feeds: %w", err)
		}
	}

	jobs := make(chan types.Feed)
	results := make(chan feedResult)

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.MaxConcurrentFeeds; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for feed := range jobs {
				results <- s.runOneFeed(ctx, feed, include)
			}
		}()
	}

	go func() {
		for _, f := range feeds {
			jobs <- f
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	var sum RunSummary
	for r := range results {
		sum.Total += r.summary.Total
		sum.Completed += r.summary.Completed
		sum.Failed += r.summary.Failed
		sum.Skipped += r.summary.Skipped
		sum.Errors = append(sum.Errors, r.summary.Errors...)
		if r.feedErr != nil {
			sum.FeedErrors = append(sum.FeedErrors, *r.feedErr)
		}
	}
	return sum, nil
}

// runOneFeed refreshes and drains a single feed. A panic anywhere inside is
// contained here so sibling feeds keep running.
func (s *Scheduler) runOneFeed(ctx context.Context, feed types.Feed, include func(types.Episode) bool) (res feedResult) {
	log := s.log.WithFields(logrus.Fields{"feed_id": feed.ID, "feed": feed.Title})
	defer func() {
		if rec := recover(); rec != nil {
			log.WithField("panic", rec).Error("feed run panicked")
			res.feedErr = &FeedError{FeedID: feed.ID, Message: fmt.Sprintf("panic: %v", rec)}
		}
	}()

	added, err := s.refresher.Refresh(ctx, feed)
	if err != nil {
		// Refresh is best effort: already-known pending episodes still run.
		log.WithError(err).Warn("feed refresh failed")
	} else if added > 0 {
		log.WithField("new_episodes", added).Info("feed refreshed")
	}

	episodes, err := s.catalog.ListPendingEpisodes(ctx, feed.ID)
	if err != nil {
		log.WithError(err).Error("could not list pending episodes")
		res.feedErr = &FeedError{FeedID: feed.ID, Message: err.Error()}
		return res
	}

	for _, ep := range episodes {
		if include != nil && !include(ep) {
			continue
		}
		if ctx.Err() != nil {
			return res
		}
		outcome, err := s.proc.Process(ctx, ep)
		s.tally(&res.summary, ep, outcome, err)
		if err != nil {
			log.WithError(err).WithField("episode_id", ep.ID).Warn("episode failed")
		}
	}
	return res
}

func (s *Scheduler) tally(sum *RunSummary, ep types.Episode, outcome pipeline.Outcome, err error) {
	sum.Total++
	switch {
	case err != nil || outcome == pipeline.OutcomeFailed:
		sum.Failed++
		if err != nil {
			sum.Errors = append(sum.Errors, fmt.Sprintf("episode %d: %v", ep.ID, err))
		}
	case outcome == pipeline.OutcomeSkipped:
		sum.Skipped++
	default:
		sum.Completed++
	}
}
