//go:build postgres_integration

package store

import (
	"context"
	"os"
	"testing"

	"wavepick/internal/model"
	"wavepick/internal/wave"
)

func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	ctx := context.Background()
	p, err := NewPostgres(dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	defer p.Close()
	if err := p.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := p.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	in := model.InstanceIn{
		Name:   "it",
		NItems: 1,
		Orders: [][]wave.ItemQty{{{Item: 0, Qty: 2}}},
		Aisles: [][]wave.ItemQty{{{Item: 0, Qty: 5}}},
		LB:     1,
		UB:     5,
	}
	info, err := p.CreateInstance(ctx, "t_it", in)
	if err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}
	rec, err := p.GetInstance(ctx, "t_it", info.ID)
	if err != nil || rec.Body.UB != 5 {
		t.Fatalf("GetInstance: %v %+v", err, rec)
	}
	run, err := p.CreateRun(ctx, model.Run{TenantID: "t_it", InstanceID: info.ID, Status: model.RunQueued})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	run.Status = model.RunSucceeded
	run.Orders = []int{0}
	run.Aisles = []int{0}
	if err := p.UpdateRun(ctx, run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}
	got, err := p.GetRun(ctx, "t_it", run.ID)
	if err != nil || got.Status != model.RunSucceeded || len(got.Orders) != 1 {
		t.Fatalf("GetRun: %v %+v", err, got)
	}
}
