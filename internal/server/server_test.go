package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/drewdunne/releasetrain/internal/config"
	"github.com/drewdunne/releasetrain/internal/event"
	"github.com/drewdunne/releasetrain/internal/history"
	"github.com/drewdunne/releasetrain/internal/metrics"
	"github.com/drewdunne/releasetrain/internal/provider"
	"github.com/drewdunne/releasetrain/internal/provider/providertest"
	"github.com/drewdunne/releasetrain/internal/train"
)

const changelog = `# Changelog

## v0

### Others

- Initial release [#1], by [@alice]

[#1]: https://github.com/acme/widgets/pull/1

[@alice]: https://github.com/alice
`

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Repository.Owner = "acme"
	cfg.Repository.Name = "widgets"
	return cfg
}

func newHost() *providertest.Host {
	h := providertest.New("acme", "widgets", "master", "abc123", map[string]string{
		"CHANGELOG.md": changelog,
	})
	h.AddProposal(provider.PullRequest{
		Number:  7,
		Title:   "Faster widgets",
		Body:    "### Changelog\n\nWidgets are faster now\n",
		HeadRef: "faster",
		HeadSHA: "sha7",
		BaseRef: "master",
		Labels:  []string{"c:ready"},
		Author:  "bob",
	}, map[string]string{"widget.go": "package widget\n"})
	return h
}

// stubRunner returns canned results.
type stubRunner struct {
	mu      sync.Mutex
	err     error
	preview *train.Preview
	reqs    []train.Request
}

func (s *stubRunner) Run(ctx context.Context, req train.Request) (*train.Report, error) {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &train.Report{RunID: "run-1", Version: req.Version}, nil
}

func (s *stubRunner) Preview(ctx context.Context, version string) (*train.Preview, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.preview, nil
}

func TestServer_HealthEndpoint(t *testing.T) {
	srv := New(testConfig(), WithRunner(&stubRunner{}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var health HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("Status = %q, want ok", health.Status)
	}
	if health.Checks["storage"] != "memory" {
		t.Errorf("Checks[storage] = %v, want memory", health.Checks["storage"])
	}
}

type unhealthyStore struct {
	*history.MemoryStore
}

func (unhealthyStore) Health(ctx context.Context) error {
	return errors.New("connection refused")
}

func TestServer_HealthEndpoint_DegradedStatus(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{name: "no runner", opts: nil},
		{name: "storage down", opts: []Option{
			WithRunner(&stubRunner{}),
			WithHistory(unhealthyStore{history.NewMemoryStore(10)}),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(testConfig(), tt.opts...)

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			var health HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
				t.Fatalf("decoding response: %v", err)
			}
			if health.Status != "degraded" {
				t.Errorf("Status = %q, want degraded", health.Status)
			}
		})
	}
}

func TestServer_Prepare(t *testing.T) {
	metrics.Reset()
	host := newHost()
	store := history.NewMemoryStore(10)
	runner := train.NewRunner(host, testConfig(), train.WithRecorder(func(ctx context.Context, r *train.Report) {
		store.Save(ctx, history.FromReport(r))
	}))
	srv := New(testConfig(), WithRunner(runner), WithHistory(store))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/prepare/1.2.0", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %q)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if rec.Body.String() != "OK!" {
		t.Errorf("body = %q, want OK!", rec.Body.String())
	}

	prs := host.PullRequests()
	var proposed *provider.PullRequest
	for i := range prs {
		if prs[i].HeadRef == "proposed" {
			proposed = &prs[i]
		}
	}
	if proposed == nil {
		t.Fatal("no pull request from the proposed branch")
	}
	if proposed.Title != "Release 1.2.0" {
		t.Errorf("Title = %q, want %q", proposed.Title, "Release 1.2.0")
	}
	if !strings.Contains(proposed.Body, "- #7 Faster widgets") {
		t.Errorf("Body does not list #7:\n%s", proposed.Body)
	}

	// The recorded run is served by /runs.
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))
	var list struct {
		Runs []history.Record `json:"runs"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decoding runs: %v", err)
	}
	if len(list.Runs) != 1 {
		t.Fatalf("len(runs) = %d, want 1", len(list.Runs))
	}
	run := list.Runs[0]
	if run.Version != "1.2.0" || run.Status != history.StatusSucceeded || run.Trigger != "manual" {
		t.Errorf("run = %+v", run)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/"+run.ID, nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /runs/{id} status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestServer_PrepareDefaultVersion(t *testing.T) {
	runner := &stubRunner{}
	srv := New(testConfig(), WithRunner(runner))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/prepare", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(runner.reqs) != 1 || runner.reqs[0].Version != "" {
		t.Errorf("requests = %+v, want one with an empty version", runner.reqs)
	}
}

func TestServer_PrepareErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "run in progress",
			err:        train.ErrRunInProgress,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "validation",
			err:        &train.ValidationError{Msg: "trunk master does not exist"},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "external service",
			err:        &train.ExternalServiceError{Op: "listing pull requests", Err: errors.New("rate limited")},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "unexpected",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(testConfig(), WithRunner(&stubRunner{err: tt.err}))

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/prepare/2.0", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tt.err.Error()) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tt.err.Error())
			}
		})
	}
}

func TestServer_PrepareWithoutRunner(t *testing.T) {
	srv := New(testConfig())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/prepare", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestServer_Changelog(t *testing.T) {
	host := newHost()
	srv := New(testConfig(), WithRunner(train.NewRunner(host, testConfig())))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/changelog?version=3.0", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %q)", rec.Code, http.StatusOK, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "<pre>") || !strings.Contains(body, "## 3.0") {
		t.Errorf("body = %q, want rendered changelog for 3.0", body)
	}
	if !strings.Contains(body, "Widgets are faster now") {
		t.Errorf("body does not contain the excerpt of #7:\n%s", body)
	}
	// A preview never moves branches.
	if _, ok := host.Branch("prepare"); ok {
		t.Error("preview created the prepare branch")
	}
}

func TestServer_RunsNotFound(t *testing.T) {
	srv := New(testConfig())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Error.Code != "NOT_FOUND" {
		t.Errorf("Code = %q, want NOT_FOUND", resp.Error.Code)
	}
}

func TestServer_RunsInvalidLimit(t *testing.T) {
	srv := New(testConfig())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs?limit=-1", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	metrics.Reset()
	metrics.RunStarted()
	srv := New(testConfig())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	var m metrics.Metrics
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if m.RunsStarted != 1 {
		t.Errorf("RunsStarted = %d, want 1", m.RunsStarted)
	}
}

func TestServer_WebhookDisabledWithoutSecret(t *testing.T) {
	srv := New(testConfig())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook/github", strings.NewReader("{}")))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func signedRequest(t *testing.T, secret, eventType, payload string) *http.Request {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))

	req := httptest.NewRequest(http.MethodPost, "/webhook/github", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", eventType)
	req.Header.Set("X-GitHub-Delivery", "delivery-1")
	req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	return req
}

func labeledPayload(repo, label string) string {
	return fmt.Sprintf(`{
		"action": "labeled",
		"number": 7,
		"label": {"name": %q},
		"repository": {"full_name": %q},
		"sender": {"login": "bob"}
	}`, label, repo)
}

func TestServer_WebhookRoutesEvents(t *testing.T) {
	const secret = "s3cret"

	tests := []struct {
		name      string
		eventType string
		payload   string
		wantCalls int
	}{
		{
			name:      "ready label",
			eventType: "pull_request",
			payload:   labeledPayload("acme/widgets", "c:ready"),
			wantCalls: 1,
		},
		{
			name:      "other label",
			eventType: "pull_request",
			payload:   labeledPayload("acme/widgets", "bug"),
			wantCalls: 0,
		},
		{
			name:      "other repository",
			eventType: "pull_request",
			payload:   labeledPayload("acme/gadgets", "c:ready"),
			wantCalls: 0,
		},
		{
			name:      "unhandled event",
			eventType: "issues",
			payload:   `{"action": "opened"}`,
			wantCalls: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics.Reset()
			cfg := testConfig()
			cfg.Providers.GitHub.WebhookSecret = secret
			cfg.Events.ProposalLabeled = true

			var calls []*event.Event
			router := event.NewRouter(cfg, func(ctx context.Context, evt *event.Event, merged *config.MergedConfig) error {
				calls = append(calls, evt)
				return nil
			}, nil)
			srv := New(cfg, WithEventRouter(router))

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, signedRequest(t, secret, tt.eventType, tt.payload))
			router.Flush()

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d (body %q)", rec.Code, http.StatusOK, rec.Body.String())
			}
			if len(calls) != tt.wantCalls {
				t.Fatalf("handler calls = %d, want %d", len(calls), tt.wantCalls)
			}
			if got := metrics.Get().WebhooksReceived; got != 1 {
				t.Errorf("WebhooksReceived = %d, want 1", got)
			}
			if tt.wantCalls == 1 {
				evt := calls[0]
				if evt.Type != event.TypeProposalLabeled || evt.Number != 7 || evt.Actor != "bob" {
					t.Errorf("event = %+v", evt)
				}
			}
		})
	}
}

func TestServer_WebhookRejectsBadSignature(t *testing.T) {
	cfg := testConfig()
	cfg.Providers.GitHub.WebhookSecret = "s3cret"
	srv := New(cfg)

	req := signedRequest(t, "wrong", "pull_request", labeledPayload("acme/widgets", "c:ready"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

// TestServer_Lifecycle starts a real listener and drives a manual run through it.
func TestServer_Lifecycle(t *testing.T) {
	metrics.Reset()
	host := newHost()
	srv := New(localConfig(), WithRunner(train.NewRunner(host, testConfig())))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := start(t, ctx, srv)
	baseURL := "http://" + srv.Addr()

	resp, err := http.Post(baseURL+"/prepare/4.0", "text/plain", nil)
	if err != nil {
		t.Fatalf("POST /prepare: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	if got := metrics.Get().RunsSucceeded; got != 1 {
		t.Errorf("RunsSucceeded = %d, want 1", got)
	}
	if _, ok := host.Branch("proposed"); !ok {
		t.Error("proposed branch was not published")
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("ListenAndServeWithShutdown() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("server did not shut down")
	}
}
