package pipeline

import "github.com/prometheus/client_golang/prometheus"

// Hooks receives pipeline events; the zero value is a no-op. Wired to
// Prometheus by Metrics.Hooks.
type Hooks struct {
	OnExtraction    func(outcome string)
	OnDedup         func(outcome string)
	OnSourcesMerged func(added int)
	OnStagingStep   func(step, status string)
}

func (h Hooks) onExtraction(outcome string) {
	if h.OnExtraction != nil {
		h.OnExtraction(outcome)
	}
}

func (h Hooks) onDedup(outcome string) {
	if h.OnDedup != nil {
		h.OnDedup(outcome)
	}
}

func (h Hooks) onSourcesMerged(added int) {
	if h.OnSourcesMerged != nil {
		h.OnSourcesMerged(added)
	}
}

func (h Hooks) onStagingStep(step, status string) {
	if h.OnStagingStep != nil {
		h.OnStagingStep(step, status)
	}
}

// Metrics holds Prometheus metrics for the scan pipeline.
type Metrics struct {
	ScansTotal       *prometheus.CounterVec
	ScanDuration     *prometheus.HistogramVec
	FeedErrorsTotal  prometheus.Counter
	EntriesSeen      prometheus.Counter
	EntriesMatched   prometheus.Counter
	ExtractionsTotal *prometheus.CounterVec
	DedupTotal       *prometheus.CounterVec
	SourcesMerged    prometheus.Counter
	IncidentsAdded   prometheus.Counter
	StagingSteps     *prometheus.CounterVec
}

// NewMetrics registers and returns pipeline metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ScansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mdwatch_scans_total",
			Help: "Total scan runs by final status.",
		}, []string{"status"}),
		ScanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mdwatch_scan_duration_seconds",
			Help:    "Duration of scan runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s .. ~512s
		}, []string{"status"}),
		FeedErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mdwatch_feed_errors_total",
			Help: "Total feed fetch/parse failures (feed skipped, run continued).",
		}),
		EntriesSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mdwatch_entries_seen_total",
			Help: "Total feed entries inspected.",
		}),
		EntriesMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mdwatch_entries_matched_total",
			Help: "Total feed entries that passed the keyword pre-filter.",
		}),
		ExtractionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mdwatch_extractions_total",
			Help: "Structured extraction outcomes (incident, none, unparseable, invalid, before_cutoff, error).",
		}, []string{"outcome"}),
		DedupTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mdwatch_dedup_total",
			Help: "Deduplication outcomes (exact_source, semantic, new, compare_error).",
		}, []string{"outcome"}),
		SourcesMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mdwatch_sources_merged_total",
			Help: "Total sources merged into existing incidents.",
		}),
		IncidentsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mdwatch_incidents_added_total",
			Help: "Total new incidents appended to the collection.",
		}),
		StagingSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mdwatch_staging_steps_total",
			Help: "Repository staging steps by step name and status.",
		}, []string{"step", "status"}),
	}

	reg.MustRegister(
		m.ScansTotal,
		m.ScanDuration,
		m.FeedErrorsTotal,
		m.EntriesSeen,
		m.EntriesMatched,
		m.ExtractionsTotal,
		m.DedupTotal,
		m.SourcesMerged,
		m.IncidentsAdded,
		m.StagingSteps,
	)

	return m
}

// Hooks returns a Hooks that increments the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnExtraction: func(outcome string) {
			m.ExtractionsTotal.WithLabelValues(outcome).Inc()
		},
		OnDedup: func(outcome string) {
			m.DedupTotal.WithLabelValues(outcome).Inc()
		},
		OnSourcesMerged: func(added int) {
			m.SourcesMerged.Add(float64(added))
		},
		OnStagingStep: func(step, status string) {
			m.StagingSteps.WithLabelValues(step, status).Inc()
		},
	}
}
