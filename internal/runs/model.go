// Package runs defines the scan-run record and its persistence interface.
// Every pipeline scan leaves one run record behind for the API and for
// post-hoc debugging of skipped feeds and staging failures.
package runs

import "time"

// Status tracks where a scan run is in its lifecycle.
type Status string

const (
	// StatusRunning means the scan is currently executing.
	StatusRunning Status = "running"

	// StatusComplete means the scan finished, staging included if needed.
	StatusComplete Status = "complete"

	// StatusFailed means the scan aborted or its staging sequence failed.
	StatusFailed Status = "failed"
)

// Run is the record of one pipeline scan.
type Run struct {
	ID                 string    `json:"id"`
	Status             Status    `json:"status"`
	Trigger            string    `json:"trigger"` // interval, manual, once
	StartedAt          time.Time `json:"started_at"`
	CompletedAt        time.Time `json:"completed_at,omitempty"`
	Duration           float64   `json:"duration_seconds,omitempty"`
	FeedsScanned       int       `json:"feeds_scanned"`
	FeedErrors         int       `json:"feed_errors"`
	EntriesSeen        int       `json:"entries_seen"`
	EntriesMatched     int       `json:"entries_matched"`
	IncidentsExtracted int       `json:"incidents_extracted"`
	Duplicates         int       `json:"duplicates"`
	IncidentsNew       int       `json:"incidents_new"`
	PullRequestURL     string    `json:"pull_request_url,omitempty"`
	Error              string    `json:"error,omitempty"`
}
