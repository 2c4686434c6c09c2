package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"

	"github.com/mdwatch/mdwatch/internal/incident"
)

// Deduper decides whether a candidate incident duplicates one already on
// file, merging the candidate's sources into the existing record(s) when it
// does.
type Deduper struct {
	provider Provider
	logger   log.Logger
	hooks    Hooks
}

// NewDeduper creates the deduplication engine.
func NewDeduper(provider Provider, logger log.Logger, hooks Hooks) *Deduper {
	if logger == nil {
		logger = log.Nop()
	}
	return &Deduper{
		provider: provider,
		logger:   logger,
		hooks:    hooks,
	}
}

// IsDuplicate reports whether the candidate refers to an already-recorded
// incident. The decision order is fixed:
//
//  1. Any shared source URL with an existing incident is a duplicate; the
//     evidence is already on file, so nothing is merged.
//  2. If existing incidents share the candidate's date, the model is asked
//     once whether the candidate is the same event. On "same" the
//     candidate's sources are merged into every same-date incident.
//  3. No same-date incident means no comparison call and no duplicate.
//
// A comparison error or any response other than the literal true token fails
// open: the candidate is treated as new rather than silently dropped.
func (d *Deduper) IsDuplicate(ctx context.Context, candidate *incident.Incident, existing []*incident.Incident) bool {
	for _, ex := range existing {
		for _, s := range candidate.Sources {
			if ex.HasSourceURL(s.URL) {
				d.hooks.onDedup("exact_source")
				return true
			}
		}
	}

	var sameDate []*incident.Incident
	for _, ex := range existing {
		if ex.Date == candidate.Date {
			sameDate = append(sameDate, ex)
		}
	}
	if len(sameDate) == 0 {
		d.hooks.onDedup("new")
		return false
	}

	prompt, err := buildComparisonPrompt(candidate, sameDate)
	if err != nil {
		d.logger.Error(ctx, err, "failed to build comparison prompt", "date", candidate.Date)
		d.hooks.onDedup("compare_error")
		return false
	}

	ctx, span := tracer.Start(ctx, "llm.compare", trace.WithAttributes(
		attribute.String("gen_ai.operation.name", "compare"),
		attribute.String("mdwatch.incident.date", candidate.Date),
		attribute.Int("mdwatch.compare.candidates", len(sameDate)),
	))
	defer span.End()

	raw, err := d.provider.Complete(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.Error(ctx, err, "same-event comparison failed, treating as new", "date", candidate.Date)
		d.hooks.onDedup("compare_error")
		return false
	}

	if !strings.EqualFold(strings.TrimSpace(raw), "true") {
		d.hooks.onDedup("new")
		return false
	}

	merged := 0
	for _, ex := range sameDate {
		merged += ex.MergeSources(candidate.Sources)
	}
	d.logger.Info(ctx, "merged duplicate incident",
		"date", candidate.Date,
		"location", candidate.Location,
		"sources_merged", merged,
	)
	d.hooks.onDedup("semantic")
	d.hooks.onSourcesMerged(merged)
	return true
}

// comparisonSummary is the subset of incident fields the model compares.
type comparisonSummary struct {
	Location    string        `json:"location"`
	Description string        `json:"description"`
	Type        incident.Type `json:"type"`
}

// buildComparisonPrompt bundles the candidate against every same-date
// incident and asks for a single boolean verdict.
func buildComparisonPrompt(candidate *incident.Incident, sameDate []*incident.Incident) (string, error) {
	summaries := make([]comparisonSummary, 0, len(sameDate))
	for _, ex := range sameDate {
		summaries = append(summaries, comparisonSummary{
			Location:    ex.Location,
			Description: ex.Description,
			Type:        ex.Type,
		})
	}
	b, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal comparison set: %w", err)
	}

	return fmt.Sprintf(`Compare these incidents and determine if they are the same event reported differently.
Consider location, type of attack, and description details.
Return only "true" if they are the same incident, or "false" if different.

Incident 1:
Location: %s
Description: %s
Type: %s

Compare with each:
%s`,
		candidate.Location,
		candidate.Description,
		candidate.Type,
		string(b),
	), nil
}
