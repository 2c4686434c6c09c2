package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/mdwatch/mdwatch/internal/feeds"
	"github.com/mdwatch/mdwatch/internal/incident"
	"github.com/mdwatch/mdwatch/internal/runs"
)

// CollectionStore persists the incident collection document.
type CollectionStore interface {
	Load(ctx context.Context) (*incident.Collection, error)
	Save(ctx context.Context, c *incident.Collection) error
}

// FeedFetcher retrieves the entries of one news feed.
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string) ([]feeds.Entry, error)
}

// ArticleExtractor fetches an article page and returns its readable text.
// An empty string with a nil error means the page's origin has no extraction
// strategy; such articles are skipped.
type ArticleExtractor interface {
	Extract(ctx context.Context, articleURL string) (string, error)
}

// Stager proposes the updated collection for review and returns the URL of
// the review request.
type Stager interface {
	Stage(ctx context.Context, col *incident.Collection, added int) (string, error)
}

// Service drives one scan: feeds through the keyword filter, matched
// articles through extraction and dedup, and any additions through the
// collection store and the stager.
type Service struct {
	sources   []feeds.Source
	fetcher   FeedFetcher
	articles  ArticleExtractor
	extractor *Extractor
	deduper   *Deduper
	store     CollectionStore
	runs      runs.Store
	stager    Stager
	logger    log.Logger
	metrics   *Metrics

	mu sync.Mutex // serializes scans; overlapping triggers run back to back
}

// NewService assembles the scan pipeline. metrics may be nil.
func NewService(
	sources []feeds.Source,
	fetcher FeedFetcher,
	articles ArticleExtractor,
	extractor *Extractor,
	deduper *Deduper,
	store CollectionStore,
	runStore runs.Store,
	stager Stager,
	logger log.Logger,
	metrics *Metrics,
) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		sources:   sources,
		fetcher:   fetcher,
		articles:  articles,
		extractor: extractor,
		deduper:   deduper,
		store:     store,
		runs:      runStore,
		stager:    stager,
		logger:    logger,
		metrics:   metrics,
	}
}

// RunScan executes one full scan and returns its run record. The record is
// persisted in the run store even on failure; the returned error mirrors the
// record's failed status. Feed and per-article problems are absorbed into
// the record's counters and never fail the run; only collection load/save
// and staging do.
func (s *Service) RunScan(ctx context.Context, trigger string) (*runs.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := &runs.Run{
		ID:        ulid.Make().String(),
		Status:    runs.StatusRunning,
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
	}
	if err := s.runs.Put(ctx, run); err != nil {
		return nil, fmt.Errorf("record run start: %w", err)
	}

	L := s.logger.With("run_id", run.ID, "trigger", trigger)
	L.Info(ctx, "scan started", "feeds", len(s.sources))

	err := s.scan(ctx, L, run)

	run.CompletedAt = time.Now().UTC()
	run.Duration = run.CompletedAt.Sub(run.StartedAt).Seconds()
	if err != nil {
		run.Status = runs.StatusFailed
		run.Error = err.Error()
		L.Error(ctx, err, "scan failed", "duration", run.Duration)
	} else {
		run.Status = runs.StatusComplete
		L.Info(ctx, "scan complete",
			"duration", run.Duration,
			"entries_seen", run.EntriesSeen,
			"entries_matched", run.EntriesMatched,
			"incidents_extracted", run.IncidentsExtracted,
			"duplicates", run.Duplicates,
			"incidents_new", run.IncidentsNew,
			"pr_url", run.PullRequestURL,
		)
	}

	if s.metrics != nil {
		s.metrics.ScansTotal.WithLabelValues(string(run.Status)).Inc()
		s.metrics.ScanDuration.WithLabelValues(string(run.Status)).Observe(run.Duration)
	}

	if perr := s.runs.Put(ctx, run); perr != nil {
		L.Error(ctx, perr, "failed to persist run record")
	}
	return run, err
}

func (s *Service) scan(ctx context.Context, L log.Logger, run *runs.Run) error {
	col, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load collection: %w", err)
	}

	var added []*incident.Incident

	for _, src := range s.sources {
		run.FeedsScanned++
		entries, err := s.fetcher.Fetch(ctx, src.FeedURL)
		if err != nil {
			run.FeedErrors++
			if s.metrics != nil {
				s.metrics.FeedErrorsTotal.Inc()
			}
			L.Error(ctx, err, "feed fetch failed, skipping", "feed", src.Name)
			continue
		}

		for _, entry := range entries {
			run.EntriesSeen++
			if s.metrics != nil {
				s.metrics.EntriesSeen.Inc()
			}
			if !src.Matches(entry) {
				continue
			}
			run.EntriesMatched++
			if s.metrics != nil {
				s.metrics.EntriesMatched.Inc()
			}

			in, err := s.processEntry(ctx, L, src, entry)
			if err != nil {
				// Already logged; the entry's outcome is in the hooks.
				continue
			}
			if in == nil {
				continue
			}
			run.IncidentsExtracted++

			// Dedup sees the collection plus everything accepted so far in
			// this run, so two articles about one event collapse in-batch.
			known := make([]*incident.Incident, 0, len(col.Incidents)+len(added))
			known = append(known, col.Incidents...)
			known = append(known, added...)
			if s.deduper.IsDuplicate(ctx, in, known) {
				run.Duplicates++
				continue
			}
			added = append(added, in)
		}
	}

	if len(added) == 0 {
		L.Info(ctx, "no new incidents, collection untouched")
		return nil
	}

	col.Append(time.Now().UTC(), added...)
	if err := s.store.Save(ctx, col); err != nil {
		return fmt.Errorf("save collection: %w", err)
	}
	run.IncidentsNew = len(added)
	if s.metrics != nil {
		s.metrics.IncidentsAdded.Add(float64(len(added)))
	}

	// The collection is already safe on disk; a staging failure loses only
	// the review request, not the data.
	prURL, err := s.stager.Stage(ctx, col, len(added))
	if err != nil {
		return fmt.Errorf("stage update: %w", err)
	}
	run.PullRequestURL = prURL
	return nil
}

// processEntry fetches one matched article and runs structured extraction.
// It returns (nil, nil) for every non-incident outcome; dedup is the
// caller's job.
func (s *Service) processEntry(ctx context.Context, L log.Logger, src feeds.Source, entry feeds.Entry) (*incident.Incident, error) {
	text, err := s.articles.Extract(ctx, entry.Link)
	if err != nil {
		L.Error(ctx, err, "article fetch failed, skipping", "url", entry.Link)
		return nil, err
	}
	if text == "" {
		L.Info(ctx, "no extraction strategy for article origin, skipping", "url", entry.Link)
		return nil, nil
	}

	in, err := s.extractor.ExtractIncident(ctx, text, entry.Link, src.Name)
	if err != nil {
		L.Error(ctx, err, "extraction call failed, skipping", "url", entry.Link)
		return nil, err
	}
	return in, nil
}
