package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"wavepick/internal/model"
	"wavepick/internal/opt"
)

func TestMemoryInstancesAreTenantScoped(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	info, err := m.CreateInstance(ctx, "t1", model.InstanceIn{NItems: 1, LB: 1, UB: 2})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetInstance(ctx, "t1", info.ID); err != nil {
		t.Fatalf("own tenant: %v", err)
	}
	if _, err := m.GetInstance(ctx, "t2", info.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other tenant: want ErrNotFound, got %v", err)
	}
}

func TestMemoryListPagination(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i := 0; i < 5; i++ {
		if _, err := m.CreateInstance(ctx, "t1", model.InstanceIn{}); err != nil {
			t.Fatal(err)
		}
	}
	first, next, err := m.ListInstances(ctx, "t1", "", 3)
	if err != nil || len(first) != 3 || next == "" {
		t.Fatalf("first page: %d items next=%q err=%v", len(first), next, err)
	}
	rest, next, err := m.ListInstances(ctx, "t1", next, 3)
	if err != nil || len(rest) != 2 || next != "" {
		t.Fatalf("second page: %d items next=%q err=%v", len(rest), next, err)
	}
}

func TestMemoryRunsAndMetrics(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	run, err := m.CreateRun(ctx, model.Run{TenantID: "t1", InstanceID: "i1", Status: model.RunQueued})
	if err != nil || run.ID == "" {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.CreateRun(ctx, model.Run{TenantID: "t1", InstanceID: "i2", Status: model.RunQueued}); err != nil {
		t.Fatal(err)
	}
	run.Status = model.RunSucceeded
	if err := m.UpdateRun(ctx, run); err != nil {
		t.Fatal(err)
	}
	got, _ := m.GetRun(ctx, "t1", run.ID)
	if !got.Done() {
		t.Fatalf("want terminal status, got %s", got.Status)
	}
	runs, _, _ := m.ListRuns(ctx, "t1", "i1", "", 0)
	if len(runs) != 1 || runs[0].ID != run.ID {
		t.Fatalf("filter by instance: %+v", runs)
	}

	if _, err := m.GetRunMetrics(ctx, "t1", run.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound before save, got %v", err)
	}
	if err := m.SaveRunMetrics(ctx, "t1", run.ID, opt.Metrics{Iterations: 7}); err != nil {
		t.Fatal(err)
	}
	mx, err := m.GetRunMetrics(ctx, "t1", run.ID)
	if err != nil || mx.Iterations != 7 {
		t.Fatalf("metrics: %+v %v", mx, err)
	}
	if err := m.SaveRunMetrics(ctx, "t2", run.ID, opt.Metrics{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant save: want ErrNotFound, got %v", err)
	}
}

func TestMemoryCallbackLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, err := m.EnqueueCallback(ctx, model.Callback{TenantID: "t1", RunID: "r1", URL: "http://x", Payload: []byte(`{}`)})
	if err != nil {
		t.Fatal(err)
	}
	due, _ := m.FetchDueCallbacks(ctx, 10)
	if len(due) != 1 || due[0].ID != id {
		t.Fatalf("due: %+v", due)
	}
	if err := m.MarkCallback(ctx, id, false, time.Now().Add(time.Hour), "boom", 500); err != nil {
		t.Fatal(err)
	}
	if due, _ := m.FetchDueCallbacks(ctx, 10); len(due) != 0 {
		t.Fatalf("rescheduled callback should not be due yet")
	}
	if err := m.FailCallback(ctx, id, "gave up", 500); err != nil {
		t.Fatal(err)
	}
	list, _ := m.ListCallbacks(ctx, "t1", "r1")
	if len(list) != 1 || list[0].Status != model.CallbackFailed || list[0].Attempts != 2 {
		t.Fatalf("list: %+v", list)
	}
}
