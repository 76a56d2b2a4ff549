package webhooks

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"wavepick/internal/model"
	"wavepick/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []markRec
	fails []failRec
}

type markRec struct {
	ID      string
	Success bool
	Code    int
	LastErr string
	Next    time.Time
}

type failRec struct {
	ID      string
	Code    int
	LastErr string
}

func (r *recordStore) MarkCallback(ctx context.Context, id string, success bool, next time.Time, lastError string, code int) error {
	r.mu.Lock()
	r.marks = append(r.marks, markRec{ID: id, Success: success, Code: code, LastErr: lastError, Next: next})
	r.mu.Unlock()
	return r.Memory.MarkCallback(ctx, id, success, next, lastError, code)
}

func (r *recordStore) FailCallback(ctx context.Context, id string, lastError string, code int) error {
	r.mu.Lock()
	r.fails = append(r.fails, failRec{ID: id, Code: code, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailCallback(ctx, id, lastError, code)
}

func finishedRun(url string) model.Run {
	return model.Run{ID: "r1", TenantID: "t1", InstanceID: "i1", Status: model.RunSucceeded, CallbackURL: url, Objective: 2.5}
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotTS, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(HeaderSignature)
		gotTS = r.Header.Get(HeaderTimestamp)
		gotType = r.Header.Get(HeaderEvent)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	NewPublisher(rs).RunCompleted(context.Background(), finishedRun(srv.URL), "secret")
	w := NewWorker(rs, 3)
	w.HTTP = srv.Client()

	w.processOnce()

	if gotType != model.EventRunCompleted {
		t.Fatalf("event header: %q", gotType)
	}
	if !Verify("secret", gotTS, gotBody, gotSig, time.Now(), time.Minute) {
		t.Fatalf("signature did not verify: ts=%q sig=%q", gotTS, gotSig)
	}
	if len(rs.marks) != 1 || !rs.marks[0].Success {
		t.Fatalf("expected one successful mark, got %+v", rs.marks)
	}
	list, _ := rs.ListCallbacks(context.Background(), "t1", "r1")
	if len(list) != 1 || list[0].Status != model.CallbackDelivered {
		t.Fatalf("callback status: %+v", list)
	}
}

func TestWorkerProcessOnce_RetryThenFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	NewPublisher(rs).RunCompleted(context.Background(), finishedRun(srv.URL), "")
	w := NewWorker(rs, 2)
	w.HTTP = srv.Client()
	// Backdate the worker clock so the rescheduled retry is already due.
	w.now = func() time.Time { return time.Now().Add(-time.Hour) }

	w.processOnce()
	if len(rs.marks) != 1 || rs.marks[0].Success || rs.marks[0].Code != 500 {
		t.Fatalf("first attempt should be rescheduled: %+v", rs.marks)
	}

	w.processOnce()
	if len(rs.fails) != 1 {
		t.Fatalf("expected terminal failure after max attempts, got marks=%+v fails=%+v", rs.marks, rs.fails)
	}
}

func TestPublisherSkipsRunsWithoutCallback(t *testing.T) {
	rs := store.NewMemory()
	NewPublisher(rs).RunCompleted(context.Background(), finishedRun(""), "")
	if due, _ := rs.FetchDueCallbacks(context.Background(), 10); len(due) != 0 {
		t.Fatalf("nothing should be queued: %+v", due)
	}
}

func TestNextBackoffCapped(t *testing.T) {
	if nextBackoff(0) != time.Second || nextBackoff(3) != 8*time.Second {
		t.Fatalf("unexpected backoff: %v %v", nextBackoff(0), nextBackoff(3))
	}
	if nextBackoff(50) > time.Hour {
		t.Fatalf("backoff not capped")
	}
}

func TestVerifyRejectsStaleAndTampered(t *testing.T) {
	ts := time.Unix(1_700_000_000, 0)
	body := []byte(`{"a":1}`)
	sig := Sign("k", ts, body)
	tsh := formatUnix(ts)
	if !Verify("k", tsh, body, sig, ts.Add(time.Second), time.Minute) {
		t.Fatal("fresh signature rejected")
	}
	if Verify("k", tsh, body, sig, ts.Add(time.Hour), time.Minute) {
		t.Fatal("stale signature accepted")
	}
	if Verify("k", tsh, []byte(`{"a":2}`), sig, ts, time.Minute) {
		t.Fatal("tampered body accepted")
	}
}
