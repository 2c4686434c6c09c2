package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/linnemanlabs/go-core/log"

	"github.com/mdwatch/mdwatch/internal/incident"
)

// fakeAPI implements just enough of the GitHub REST surface for Stage.
type fakeAPI struct {
	t *testing.T

	fileExists bool
	failStep   string // "get_ref", "create_branch", "update_file", "open_pr"

	createdRef string
	putContent string
	putSHA     string
	putBranch  string
	prHead     string
	prTitle    string
}

func (f *fakeAPI) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "token test-token" {
			f.t.Errorf("Authorization = %q, want token test-token", auth)
		}

		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/git/ref/heads/main"):
			if f.failStep == "get_ref" {
				http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"object": map[string]string{"sha": "base-sha"},
			})

		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/git/refs"):
			if f.failStep == "create_branch" {
				http.Error(w, `{"message":"boom"}`, http.StatusUnprocessableEntity)
				return
			}
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.createdRef = body["ref"]
			if body["sha"] != "base-sha" {
				f.t.Errorf("create ref sha = %q, want base-sha", body["sha"])
			}
			w.WriteHeader(http.StatusCreated)

		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/contents/"):
			if !f.fileExists {
				http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"sha": "file-sha"})

		case r.Method == http.MethodPut && strings.Contains(r.URL.Path, "/contents/"):
			if f.failStep == "update_file" {
				http.Error(w, `{"message":"boom"}`, http.StatusConflict)
				return
			}
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.putContent = body["content"]
			f.putSHA = body["sha"]
			f.putBranch = body["branch"]
			w.WriteHeader(http.StatusOK)

		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/pulls"):
			if f.failStep == "open_pr" {
				http.Error(w, `{"message":"boom"}`, http.StatusForbidden)
				return
			}
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.prHead = body["head"]
			f.prTitle = body["title"]
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"html_url": "https://github.com/example/register/pull/7",
			})

		default:
			f.t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			http.Error(w, "unexpected", http.StatusTeapot)
		}
	})
}

func testCollection() *incident.Collection {
	return &incident.Collection{
		Incidents: []*incident.Incident{{
			Date:        "2024-01-05",
			Location:    "Hauptbahnhof",
			Description: "Attack on a passerby",
			Type:        incident.TypePhysicalAttack,
			Status:      incident.StatusUnverified,
			Sources:     []incident.Source{{URL: "https://a/1", Name: "A"}},
		}},
		LastUpdated: "2024-01-06T00:00:00Z",
	}
}

func newTestClient(t *testing.T, f *fakeAPI) (*Client, func()) {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	c := New(Config{
		Token:   "test-token",
		Repo:    "example/register",
		BaseURL: srv.URL,
	}, log.Nop())
	return c, srv.Close
}

func TestStage_FullSequence(t *testing.T) {
	t.Parallel()

	f := &fakeAPI{t: t, fileExists: true}
	c, done := newTestClient(t, f)
	defer done()

	var steps []string
	c.OnStep = func(step, status string) { steps = append(steps, step+":"+status) }

	prURL, err := c.Stage(context.Background(), testCollection(), 1)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if prURL != "https://github.com/example/register/pull/7" {
		t.Errorf("prURL = %q", prURL)
	}

	if !strings.HasPrefix(f.createdRef, "refs/heads/update-incidents-") {
		t.Errorf("createdRef = %q, want update-incidents- branch", f.createdRef)
	}
	if f.putSHA != "file-sha" {
		t.Errorf("put sha = %q, want file-sha (existing file must be replaced by sha)", f.putSHA)
	}
	if f.putBranch == "" || "refs/heads/"+f.putBranch != f.createdRef {
		t.Errorf("file update branch = %q, created ref = %q", f.putBranch, f.createdRef)
	}
	if f.prHead != f.putBranch {
		t.Errorf("pr head = %q, want %q", f.prHead, f.putBranch)
	}
	if f.prTitle != "Add 1 new incidents" {
		t.Errorf("pr title = %q", f.prTitle)
	}

	decoded, err := base64.StdEncoding.DecodeString(f.putContent)
	if err != nil {
		t.Fatalf("decode staged content: %v", err)
	}
	var staged incident.Collection
	if err := json.Unmarshal(decoded, &staged); err != nil {
		t.Fatalf("staged content is not the collection document: %v", err)
	}
	if len(staged.Incidents) != 1 || staged.LastUpdated != "2024-01-06T00:00:00Z" {
		t.Errorf("staged document mismatch: %+v", staged)
	}

	want := []string{"get_ref:ok", "create_branch:ok", "update_file:ok", "open_pr:ok"}
	if strings.Join(steps, ",") != strings.Join(want, ",") {
		t.Errorf("steps = %v, want %v", steps, want)
	}
}

func TestStage_NewFileOmitsSHA(t *testing.T) {
	t.Parallel()

	f := &fakeAPI{t: t, fileExists: false}
	c, done := newTestClient(t, f)
	defer done()

	if _, err := c.Stage(context.Background(), testCollection(), 1); err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if f.putSHA != "" {
		t.Errorf("put sha = %q, want empty for a new file", f.putSHA)
	}
}

func TestStage_StepFailureAbortsSequence(t *testing.T) {
	t.Parallel()

	cases := []struct {
		failStep string
		wantErr  string
	}{
		{"get_ref", "get_ref"},
		{"create_branch", "create_branch"},
		{"update_file", "update_file"},
		{"open_pr", "open_pr"},
	}

	for _, tc := range cases {
		t.Run(tc.failStep, func(t *testing.T) {
			t.Parallel()

			f := &fakeAPI{t: t, fileExists: true, failStep: tc.failStep}
			c, done := newTestClient(t, f)
			defer done()

			var failed []string
			c.OnStep = func(step, status string) {
				if status == "error" {
					failed = append(failed, step)
				}
			}

			_, err := c.Stage(context.Background(), testCollection(), 1)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %q, want step %q named", err, tc.wantErr)
			}
			if len(failed) != 1 || failed[0] != tc.failStep {
				t.Errorf("failed steps = %v, want [%s]", failed, tc.failStep)
			}
			// nothing after the failed step may have run
			if tc.failStep == "create_branch" && f.prHead != "" {
				t.Error("pull request opened after branch creation failed")
			}
		})
	}
}
