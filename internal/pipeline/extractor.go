package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"

	"github.com/mdwatch/mdwatch/internal/incident"
)

var tracer = otel.Tracer("github.com/mdwatch/mdwatch/internal/pipeline")

// City is the monitored city; only incidents located there are recorded.
const City = "Magdeburg"

// Cutoff is the fixed date boundary: only incidents after it qualify.
var Cutoff = time.Date(2023, time.December, 19, 0, 0, 0, 0, time.UTC)

// noneSentinel is the literal token the model is instructed to emit when the
// article describes no qualifying incident.
const noneSentinel = "null"

// Extractor is the structured extraction service: it turns article text plus
// provenance into zero or one schema-conforming incident record.
type Extractor struct {
	provider Provider
	logger   log.Logger
	hooks    Hooks
}

// NewExtractor creates the structured extraction service.
func NewExtractor(provider Provider, logger log.Logger, hooks Hooks) *Extractor {
	if logger == nil {
		logger = log.Nop()
	}
	return &Extractor{
		provider: provider,
		logger:   logger,
		hooks:    hooks,
	}
}

// ExtractIncident asks the model to extract a qualifying incident from the
// article text. It returns (nil, nil) when the article describes no
// qualifying incident or when the model's output is unusable (logged, never
// raised), and an error only for provider failures. On success the (url,
// sourceName) provenance pair is already appended to the record's sources.
func (x *Extractor) ExtractIncident(ctx context.Context, articleText, url, sourceName string) (*incident.Incident, error) {
	ctx, span := tracer.Start(ctx, "llm.extract", trace.WithAttributes(
		attribute.String("gen_ai.operation.name", "extract"),
		attribute.String("mdwatch.article.url", url),
		attribute.String("mdwatch.source.name", sourceName),
	))
	defer span.End()

	raw, err := x.provider.Complete(ctx, buildExtractionPrompt(articleText))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		x.hooks.onExtraction("error")
		return nil, fmt.Errorf("extraction call: %w", err)
	}

	res := parseIncident(raw)
	if res.None {
		x.hooks.onExtraction("none")
		return nil, nil
	}
	if res.Err != nil {
		// Malformed model output must not crash the run; it just means no
		// incident from this article.
		x.logger.Warn(ctx, "unusable extraction response", "url", url, "reason", res.Err.Error())
		x.hooks.onExtraction("unparseable")
		return nil, nil
	}

	in := res.Incident
	in.Sources = append(in.Sources, incident.Source{URL: url, Name: sourceName})

	if err := in.Validate(); err != nil {
		x.logger.Warn(ctx, "extracted incident violates schema", "url", url, "reason", err.Error())
		x.hooks.onExtraction("invalid")
		return nil, nil
	}

	// The prompt already constrains the date, but the model is not trusted
	// to enforce it: reject anything on or before the cutoff here.
	date, _ := in.DateOf()
	if !date.After(Cutoff) {
		x.logger.Warn(ctx, "extracted incident predates cutoff", "url", url, "date", in.Date)
		x.hooks.onExtraction("before_cutoff")
		return nil, nil
	}

	x.hooks.onExtraction("incident")
	return in, nil
}

// parseResult is the typed outcome of parsing a model response: exactly one
// of None, Err, or Incident is meaningful.
type parseResult struct {
	Incident *incident.Incident
	None     bool
	Err      error
}

// parseIncident translates the model's raw response into a typed result. The
// "no qualifying incident" sentinel and code-fenced JSON are handled here so
// neither leaks past the service boundary.
func parseIncident(raw string) parseResult {
	s := strings.TrimSpace(raw)
	if strings.EqualFold(s, noneSentinel) {
		return parseResult{None: true}
	}
	s = stripFences(s)

	var in incident.Incident
	if err := json.Unmarshal([]byte(s), &in); err != nil {
		return parseResult{Err: fmt.Errorf("response is not a JSON incident: %w", err)}
	}
	return parseResult{Incident: &in}
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// buildExtractionPrompt constructs the fixed instruction set for structured
// extraction. The instructions pin the city, the motivation criterion, the
// cutoff date, and the exact output contract (one JSON object or "null").
func buildExtractionPrompt(articleText string) string {
	return fmt.Sprintf(`Analysiere diesen Artikel nach rassistisch motivierten Vorfällen in %s.
Extrahiere nur Vorfälle, die:
1. In %s stattgefunden haben
2. Rassistisch oder fremdenfeindlich motiviert waren
3. Nach dem 19. Dezember 2023 passiert sind

Falls kein solcher Vorfall beschrieben wird, antworte ausschließlich mit %q.

Antworte sonst ausschließlich mit einem einzelnen JSON-Objekt mit diesen Feldern:
- date (YYYY-MM-DD)
- location (Ort in %s)
- description (kurze faktische Beschreibung)
- type (physical_attack, verbal_attack, property_damage, oder other)
- status ("verified" nur wenn von Polizei oder Behörden bestätigt, sonst "unverified")
- sources (Array mit url und name; darf leer sein)

Artikel:
%s`,
		City,
		City,
		noneSentinel,
		City,
		articleText,
	)
}
