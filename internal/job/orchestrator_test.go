package job

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"crewproxy/internal/invoker"
	"crewproxy/internal/registry"
	"crewproxy/internal/remote"
	"crewproxy/internal/testutil"
)

// stubRemote is a fake CrewAI deployment. Each FetchStatus call pops
// the next scripted status response.
type stubRemote struct {
	server       *httptest.Server
	kickoffCalls atomic.Int64
	statusCalls  atomic.Int64
	statuses     []map[string]any
}

func newStubRemote(t *testing.T, statuses ...map[string]any) *stubRemote {
	s := &stubRemote{statuses: statuses}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/kickoff":
			s.kickoffCalls.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]string{"kickoff_id": "k-test"})
		case strings.HasPrefix(r.URL.Path, "/status/"):
			n := s.statusCalls.Add(1)
			idx := int(n) - 1
			if idx >= len(s.statuses) {
				idx = len(s.statuses) - 1
			}
			_ = json.NewEncoder(w).Encode(s.statuses[idx])
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(s.server.Close)
	return s
}

func testOrchestrator(store registry.Store, maxTicks int) *Orchestrator {
	policy := invoker.Policy{
		JitterMin:           time.Millisecond,
		JitterMax:           2 * time.Millisecond,
		TimeoutBackoffStep:  time.Millisecond,
		OverloadBackoffStep: time.Millisecond,
		BreakerBase:         time.Millisecond,
		BreakerStep:         time.Millisecond,
		StatusTimeoutWait:   time.Millisecond,
		Status503Wait:       time.Millisecond,
		Status504Wait:       time.Millisecond,
	}
	inv := invoker.New(remote.NewClient(time.Second), policy, nil)
	return New(inv, store, nil, Config{
		PollInterval: time.Millisecond,
		MaxTicks:     maxTicks,
	})
}

func testSubmission(baseURL string) Submission {
	return Submission{
		APIType: "schema",
		Payload: map[string]any{"inputs": map[string]any{"hackathon_rubric": "criteria"}},
		BaseURL: baseURL,
		Token:   "tok-1",
	}
}

func TestSubmitAndAwait_SuccessOnFirstPoll(t *testing.T) {
	t.Parallel()

	stub := newStubRemote(t, map[string]any{
		"state":       "SUCCESS",
		"result_json": map[string]any{"fields": []any{"innovation", "impact"}},
	})
	store := registry.NewMemStore()
	o := testOrchestrator(store, 20)

	out := o.SubmitAndAwait(context.Background(), testSubmission(stub.server.URL))
	if !out.Success {
		t.Fatalf("Expected success, got error %q", out.Error)
	}
	data, ok := out.Data.(map[string]any)
	if !ok || data["fields"] == nil {
		t.Errorf("Expected fields in result, got %v", out.Data)
	}

	rec, ok := store.Get("k-test")
	if !ok {
		t.Fatal("Expected registry record")
	}
	if rec.Status != registry.StatusSuccess {
		t.Errorf("Expected SUCCESS, got %s", rec.Status)
	}
	if rec.APIType != "schema" || rec.BaseURL != stub.server.URL || rec.Token != "tok-1" {
		t.Errorf("Record missing submission context: %+v", rec)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("Expected created_at to be set")
	}
}

func TestSubmitAndAwait_CompletedIsSuccessSynonym(t *testing.T) {
	t.Parallel()

	stub := newStubRemote(t, map[string]any{
		"state":  "COMPLETED",
		"result": map[string]any{"grade": 87.5},
	})
	store := registry.NewMemStore()
	o := testOrchestrator(store, 20)

	out := o.SubmitAndAwait(context.Background(), testSubmission(stub.server.URL))
	if !out.Success {
		t.Fatalf("Expected success, got error %q", out.Error)
	}
}

func TestSubmitAndAwait_RemoteFailure(t *testing.T) {
	t.Parallel()

	stub := newStubRemote(t, map[string]any{
		"state":  "FAILED",
		"status": "bad rubric",
	})
	store := registry.NewMemStore()
	o := testOrchestrator(store, 20)

	out := o.SubmitAndAwait(context.Background(), testSubmission(stub.server.URL))
	if out.Success {
		t.Fatal("Expected failure")
	}
	if out.Error != "CrewAI task failed: bad rubric" {
		t.Errorf("Unexpected error message: %q", out.Error)
	}

	rec, _ := store.Get("k-test")
	if rec.Status != registry.StatusFailed {
		t.Errorf("Expected FAILED, got %s", rec.Status)
	}
	if rec.Error != out.Error {
		t.Errorf("Persisted error %q differs from returned %q", rec.Error, out.Error)
	}
}

func TestSubmitAndAwait_RemoteFailureWithoutMessage(t *testing.T) {
	t.Parallel()

	stub := newStubRemote(t, map[string]any{"state": "FAILED"})
	store := registry.NewMemStore()
	o := testOrchestrator(store, 20)

	out := o.SubmitAndAwait(context.Background(), testSubmission(stub.server.URL))
	if out.Error != "CrewAI task failed: Unknown error" {
		t.Errorf("Unexpected error message: %q", out.Error)
	}
}

func TestSubmitAndAwait_TimeoutSuspension(t *testing.T) {
	t.Parallel()

	stub := newStubRemote(t, map[string]any{"state": "PENDING"})
	store := registry.NewMemStore()
	o := testOrchestrator(store, 5)

	out := o.SubmitAndAwait(context.Background(), testSubmission(stub.server.URL))
	if out.Success {
		t.Fatal("Expected suspension outcome")
	}
	if !strings.Contains(out.Error, "timed out") {
		t.Errorf("Expected 'timed out' in error, got %q", out.Error)
	}
	if out.Handle != "k-test" {
		t.Errorf("Expected handle on suspension, got %q", out.Handle)
	}

	rec, _ := store.Get("k-test")
	if rec.Status != registry.StatusTimeout {
		t.Errorf("Expected TIMEOUT, got %s", rec.Status)
	}
	// One status fetch per tick, bounded by the budget
	if got := stub.statusCalls.Load(); got != 5 {
		t.Errorf("Expected 5 poll ticks, got %d", got)
	}
}

func TestSubmitAndAwait_KickoffFailureNotPersisted(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	store := registry.NewMemStore()
	o := testOrchestrator(store, 20)

	out := o.SubmitAndAwait(context.Background(), testSubmission(server.URL))
	if out.Success {
		t.Fatal("Expected failure")
	}
	if !strings.HasPrefix(out.Error, "API request failed:") {
		t.Errorf("Unexpected error message: %q", out.Error)
	}
	if len(store.All()) != 0 {
		t.Error("Kickoff failure must not create a registry record")
	}
}

func TestSubmitAndAwait_PollTransportFailurePersistsFailed(t *testing.T) {
	t.Parallel()

	var kicked atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/kickoff" {
			kicked.Store(true)
			_ = json.NewEncoder(w).Encode(map[string]string{"kickoff_id": "k-test"})
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	store := registry.NewMemStore()
	o := testOrchestrator(store, 20)

	out := o.SubmitAndAwait(context.Background(), testSubmission(server.URL))
	if out.Success {
		t.Fatal("Expected failure")
	}

	rec, ok := store.Get("k-test")
	if !ok {
		t.Fatal("Expected persisted record after failed poll")
	}
	if rec.Status != registry.StatusFailed {
		t.Errorf("Expected FAILED, got %s", rec.Status)
	}
}

func TestSubmitAndAwait_PendingVisibleWhilePolling(t *testing.T) {
	t.Parallel()

	stub := newStubRemote(t,
		map[string]any{"state": "PENDING"},
		map[string]any{"state": "PENDING"},
		map[string]any{"state": "SUCCESS", "result_json": map[string]any{"ok": true}},
	)
	store := registry.NewMemStore()
	o := testOrchestrator(store, 20)

	done := make(chan Outcome, 1)
	go func() {
		done <- o.SubmitAndAwait(context.Background(), testSubmission(stub.server.URL))
	}()

	// The PENDING record must be persisted before the first poll tick
	testutil.MustWaitFor(t, func() bool {
		rec, ok := store.Get("k-test")
		return ok && rec.Status == registry.StatusPending
	}, testutil.WithInterval(100*time.Microsecond))

	out := <-done
	if !out.Success {
		t.Fatalf("Expected success, got %q", out.Error)
	}
}

func TestResume_TimeoutThenSuccess(t *testing.T) {
	t.Parallel()

	stub := newStubRemote(t, map[string]any{
		"state":       "SUCCESS",
		"result_json": map[string]any{"eligible": true},
	})
	store := registry.NewMemStore()
	if err := store.Put("k-test", registry.Record{
		Status:    registry.StatusTimeout,
		CreatedAt: time.Now().UTC(),
		APIType:   "eligibility",
		BaseURL:   stub.server.URL,
		Token:     "tok-1",
	}); err != nil {
		t.Fatal(err)
	}

	o := testOrchestrator(store, 20)
	results := o.Resume(context.Background(), []string{"k-test"})

	res := results["k-test"]
	if !res.Success {
		t.Fatalf("Expected success, got %q", res.Error)
	}
	if res.Status != registry.StatusSuccess {
		t.Errorf("Expected SUCCESS status, got %s", res.Status)
	}

	rec, _ := store.Get("k-test")
	if rec.Status != registry.StatusSuccess {
		t.Errorf("Expected registry updated to SUCCESS, got %s", rec.Status)
	}
	// Resume uses the endpoint captured in the record
	if stub.kickoffCalls.Load() != 0 {
		t.Error("Resume must never re-submit")
	}
}

func TestResume_TerminalAnsweredFromRegistry(t *testing.T) {
	t.Parallel()

	stub := newStubRemote(t, map[string]any{"state": "PENDING"})
	store := registry.NewMemStore()
	storedResult := map[string]any{"fields": []any{"a"}}
	if err := store.Put("k-done", registry.Record{
		Status: registry.StatusSuccess, CreatedAt: time.Now().UTC(),
		APIType: "schema", BaseURL: stub.server.URL, Token: "t", Result: storedResult,
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.Put("k-bad", registry.Record{
		Status: registry.StatusFailed, CreatedAt: time.Now().UTC(),
		APIType: "schema", BaseURL: stub.server.URL, Token: "t", Error: "CrewAI task failed: boom",
	}); err != nil {
		t.Fatal(err)
	}

	o := testOrchestrator(store, 20)
	results := o.Resume(context.Background(), []string{"k-done", "k-bad"})

	if res := results["k-done"]; !res.Success || res.Status != registry.StatusSuccess {
		t.Errorf("Unexpected result for k-done: %+v", res)
	}
	if res := results["k-bad"]; res.Success || res.Error != "CrewAI task failed: boom" {
		t.Errorf("Unexpected result for k-bad: %+v", res)
	}
	// Idempotence: no remote calls for already-terminal handles
	if stub.statusCalls.Load() != 0 {
		t.Errorf("Expected no remote calls, got %d", stub.statusCalls.Load())
	}
}

func TestResume_UnknownHandle(t *testing.T) {
	t.Parallel()

	_ = newStubRemote(t, map[string]any{"state": "PENDING"})
	o := testOrchestrator(registry.NewMemStore(), 20)

	results := o.Resume(context.Background(), []string{"missing"})
	res := results["missing"]
	if res.Success {
		t.Fatal("Expected failure for unknown handle")
	}
	if res.Error != "Kickoff ID not found" {
		t.Errorf("Unexpected error: %q", res.Error)
	}
}

func TestResume_StillProcessing(t *testing.T) {
	t.Parallel()

	stub := newStubRemote(t, map[string]any{"state": "PENDING"})
	store := registry.NewMemStore()
	if err := store.Put("k-slow", registry.Record{
		Status: registry.StatusTimeout, CreatedAt: time.Now().UTC(),
		APIType: "grader", BaseURL: stub.server.URL, Token: "t",
	}); err != nil {
		t.Fatal(err)
	}

	o := testOrchestrator(store, 3)
	results := o.Resume(context.Background(), []string{"k-slow"})

	res := results["k-slow"]
	if res.Success {
		t.Fatal("Expected still-processing failure")
	}
	if res.Error != "Still processing after max attempts" {
		t.Errorf("Unexpected error: %q", res.Error)
	}
	// Status stays TIMEOUT, no redundant rewrite
	rec, _ := store.Get("k-slow")
	if rec.Status != registry.StatusTimeout {
		t.Errorf("Expected TIMEOUT unchanged, got %s", rec.Status)
	}
}

func TestResume_HandlesProcessedIndependently(t *testing.T) {
	t.Parallel()

	stub := newStubRemote(t, map[string]any{
		"state":       "SUCCESS",
		"result_json": map[string]any{"ok": true},
	})
	store := registry.NewMemStore()
	if err := store.Put("k-ok", registry.Record{
		Status: registry.StatusTimeout, CreatedAt: time.Now().UTC(),
		APIType: "schema", BaseURL: stub.server.URL, Token: "t",
	}); err != nil {
		t.Fatal(err)
	}

	o := testOrchestrator(store, 20)
	results := o.Resume(context.Background(), []string{"missing", "k-ok"})

	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results["missing"].Success {
		t.Error("Expected missing handle to fail")
	}
	if !results["k-ok"].Success {
		t.Errorf("Expected k-ok to succeed despite sibling failure: %+v", results["k-ok"])
	}
}

func TestRecordAccessors(t *testing.T) {
	t.Parallel()

	stub := newStubRemote(t, map[string]any{"state": "PENDING"})
	store := registry.NewMemStore()
	o := testOrchestrator(store, 20)

	if _, ok := o.Record("nope"); ok {
		t.Error("Expected no record")
	}
	if err := store.Put("k-1", registry.Record{
		Status: registry.StatusPending, CreatedAt: time.Now().UTC(),
		APIType: "schema", BaseURL: stub.server.URL, Token: "t",
	}); err != nil {
		t.Fatal(err)
	}
	if _, ok := o.Record("k-1"); !ok {
		t.Error("Expected record for k-1")
	}
	if len(o.Records()) != 1 {
		t.Error("Expected one record")
	}
	if err := o.ClearRecords(); err != nil {
		t.Fatal(err)
	}
	if len(o.Records()) != 0 {
		t.Error("Expected empty registry after clear")
	}
}
