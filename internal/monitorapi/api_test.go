package monitorapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mdwatch/mdwatch/internal/incident"
	"github.com/mdwatch/mdwatch/internal/runs"
	"github.com/mdwatch/mdwatch/internal/runs/memstore"
)

type fakeCollection struct {
	col *incident.Collection
	err error
}

func (f *fakeCollection) Load(_ context.Context) (*incident.Collection, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.col == nil {
		return &incident.Collection{}, nil
	}
	return f.col, nil
}

type fakeTrigger struct {
	calls int
}

func (f *fakeTrigger) Trigger() { f.calls++ }

func newTestRouter(t *testing.T, col *fakeCollection, store runs.Store, trig ScanTrigger) chi.Router {
	t.Helper()
	api := New(nil, col, store, trig, "scan-token")
	r := chi.NewRouter()
	api.RegisterRoutes(r)
	return r
}

func TestNew_NilCollection_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for nil collection reader")
		}
	}()
	New(nil, nil, memstore.New(), nil, "")
}

func TestGetIncidents(t *testing.T) {
	t.Parallel()

	col := &fakeCollection{col: &incident.Collection{
		Incidents: []*incident.Incident{{
			Date:        "2024-03-15",
			Location:    "Alter Markt",
			Description: "Verbal abuse of a family",
			Type:        incident.TypeVerbalAttack,
			Status:      incident.StatusUnverified,
			Sources:     []incident.Source{{URL: "https://mdr.de/a1", Name: "MDR"}},
		}},
		LastUpdated: "2024-03-16T00:00:00Z",
	}}
	r := newTestRouter(t, col, memstore.New(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/incidents", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got incident.Collection
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Incidents) != 1 || got.LastUpdated != "2024-03-16T00:00:00Z" {
		t.Errorf("collection = %+v", got)
	}
}

func TestGetIncidents_EmptyCollectionIsNotNull(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &fakeCollection{}, memstore.New(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/incidents", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var got map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(got["incidents"]) != "[]" {
		t.Errorf("incidents = %s, want []", got["incidents"])
	}
}

func TestGetIncidents_LoadError(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &fakeCollection{err: errors.New("corrupt")}, memstore.New(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/incidents", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func seedRuns(t *testing.T, store runs.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := store.Put(context.Background(), &runs.Run{
			ID:        "run-" + string(rune('a'+i)),
			Status:    runs.StatusComplete,
			Trigger:   "interval",
			StartedAt: time.Date(2024, 3, 1+i, 0, 0, 0, 0, time.UTC),
		})
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	seedRuns(t, store, 3)
	r := newTestRouter(t, &fakeCollection{}, store, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=2", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got struct {
		Runs []*runs.Run `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(got.Runs))
	}
	// newest first
	if got.Runs[0].ID != "run-c" {
		t.Errorf("first run = %s, want run-c", got.Runs[0].ID)
	}
}

func TestListRuns_BadLimit(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &fakeCollection{}, memstore.New(), nil)

	for _, limit := range []string{"0", "-1", "abc"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit="+limit, http.NoBody)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: status = %d, want 400", limit, rec.Code)
		}
	}
}

func TestGetRun(t *testing.T) {
	t.Parallel()

	store := memstore.New()
	seedRuns(t, store, 1)
	r := newTestRouter(t, &fakeCollection{}, store, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-a", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got runs.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "run-a" || got.Status != runs.StatusComplete {
		t.Errorf("run = %+v", got)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &fakeCollection{}, memstore.New(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/missing", http.NoBody)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestTriggerScan_Auth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		auth       string
		wantStatus int
		wantCalls  int
	}{
		{"valid token", "Bearer scan-token", http.StatusAccepted, 1},
		{"wrong token", "Bearer nope", http.StatusUnauthorized, 0},
		{"missing header", "", http.StatusUnauthorized, 0},
		{"basic auth", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, 0},
		{"lowercase bearer", "bearer scan-token", http.StatusUnauthorized, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			trig := &fakeTrigger{}
			r := newTestRouter(t, &fakeCollection{}, memstore.New(), trig)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/scan", http.NoBody)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if trig.calls != tt.wantCalls {
				t.Errorf("trigger calls = %d, want %d", trig.calls, tt.wantCalls)
			}
		})
	}
}

func TestTriggerScan_EmptyTokenStaysClosed(t *testing.T) {
	t.Parallel()

	api := New(nil, &fakeCollection{}, memstore.New(), &fakeTrigger{}, "")
	r := chi.NewRouter()
	api.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan", http.NoBody)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestTriggerScan_NoSchedulerWired(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &fakeCollection{}, memstore.New(), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan", http.NoBody)
	req.Header.Set("Authorization", "Bearer scan-token")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
