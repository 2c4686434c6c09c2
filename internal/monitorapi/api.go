// Package monitorapi exposes the monitor over HTTP: the incident collection,
// scan-run history, and a manual scan trigger.
package monitorapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/mdwatch/mdwatch/internal/incident"
	"github.com/mdwatch/mdwatch/internal/runs"
)

const defaultRunsLimit = 50

// CollectionReader loads the current incident collection.
type CollectionReader interface {
	Load(ctx context.Context) (*incident.Collection, error)
}

// ScanTrigger requests an out-of-schedule scan.
type ScanTrigger interface {
	Trigger()
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger     log.Logger
	collection CollectionReader
	runs       runs.Store
	trigger    ScanTrigger
	scanToken  string // bearer token for the manual scan endpoint; empty disables it
}

// New creates a new API handler. scanToken guards the manual scan endpoint;
// when empty the endpoint rejects every request.
func New(logger log.Logger, collection CollectionReader, runStore runs.Store, trigger ScanTrigger, scanToken string) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if collection == nil {
		panic(xerrors.New("collection reader is required"))
	}
	if runStore == nil {
		panic(xerrors.New("run store is required"))
	}
	return &API{
		logger:     logger,
		collection: collection,
		runs:       runStore,
		trigger:    trigger,
		scanToken:  scanToken,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/incidents", a.handleGetIncidents)
		r.Get("/runs", a.handleListRuns)
		r.Get("/runs/{id}", a.handleGetRun)
		r.With(a.requireScanToken).Post("/scan", a.handleTriggerScan)
	})
}

func (a *API) handleGetIncidents(w http.ResponseWriter, r *http.Request) {
	col, err := a.collection.Load(r.Context())
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to load incident collection")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if col.Incidents == nil {
		col.Incidents = []*incident.Incident{}
	}
	writeJSON(w, http.StatusOK, col)
}

func (a *API) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, `{"error":"limit must be a positive integer"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}

	list, err := a.runs.List(r.Context(), limit)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list runs")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*runs.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": list})
}

func (a *API) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("mdwatch.run.id", id))

	run, ok, err := a.runs.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get run", "id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	span.SetAttributes(attribute.String("mdwatch.run.status", string(run.Status)))
	writeJSON(w, http.StatusOK, run)
}

func (a *API) handleTriggerScan(w http.ResponseWriter, r *http.Request) {
	if a.trigger == nil {
		http.Error(w, `{"error":"manual scans disabled"}`, http.StatusServiceUnavailable)
		return
	}
	a.trigger.Trigger()
	a.logger.Info(r.Context(), "manual scan triggered")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scan scheduled"})
}

// requireScanToken validates a Bearer token in constant time. An empty
// configured token never matches; that keeps the endpoint closed rather than
// open when unconfigured.
func (a *API) requireScanToken(next http.Handler) http.Handler {
	expected := []byte(a.scanToken)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			http.Error(w, `{"error":"missing or malformed authorization header"}`, http.StatusUnauthorized)
			return
		}
		got := []byte(auth[len("Bearer "):])
		if len(expected) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing to do with errors here
	_ = json.NewEncoder(w).Encode(v)
}
