package store

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"fleetroute/internal/model"
	"fleetroute/internal/opt"
)

func TestComputeDedupKeyFromID(t *testing.T) {
	body := []byte(`{"id":"evt_123","type":"x"}`)
	got := computeDedupKey(body)
	if got != "evt_123" {
		t.Fatalf("want evt_123, got %s", got)
	}
}

func TestComputeDedupKeyFromHash(t *testing.T) {
	body := []byte(`{"notId":"x"}`)
	got := computeDedupKey(body)
	// hex-encoded first 8 bytes -> 16 hex chars
	b, err := hex.DecodeString(got)
	if err != nil {
		t.Fatalf("invalid hex: %v", err)
	}
	if len(b) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(b))
	}
}

func TestRebind(t *testing.T) {
	pg := &SQL{driver: DriverPostgres}
	if got := pg.rebind(`SELECT a FROM t WHERE x=? AND y IN (?,?)`); got != `SELECT a FROM t WHERE x=$1 AND y IN ($2,$3)` {
		t.Fatalf("rebind: %s", got)
	}
	lite := &SQL{driver: DriverSQLite}
	if got := lite.rebind(`x=?`); got != `x=?` {
		t.Fatalf("sqlite must keep placeholders: %s", got)
	}
}

func TestNewSQLRejectsUnknownDriver(t *testing.T) {
	if _, err := NewSQL(context.Background(), "mysql", "x"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func newSQLite(t *testing.T) *SQL {
	t.Helper()
	s, err := NewSQL(context.Background(), DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("NewSQL: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// stores runs every contract test against each implementation.
func stores(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewMemory() },
		"sqlite": func(t *testing.T) Store { return newSQLite(t) },
	}
}

func sampleResult(cost float64) opt.Result {
	return opt.Result{
		Routes:     []opt.Route{{VehicleID: "v1", Customers: []opt.Customer{{ID: "c1", Priority: 1}}, Feasible: true}},
		TotalCost:  cost,
		Algorithm:  opt.Algorithm,
		Unassigned: []opt.Unassigned{{CustomerID: "c2", Reason: opt.ReasonOverCapacity}},
	}
}

func TestResults(t *testing.T) {
	for name, mk := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			ctx := context.Background()
			var ids []string
			for i := 0; i < 3; i++ {
				sr, err := s.SaveResult(ctx, "t1", sampleResult(float64(10+i)))
				if err != nil {
					t.Fatalf("save: %v", err)
				}
				ids = append(ids, sr.ID)
				time.Sleep(2 * time.Millisecond)
			}
			got, err := s.GetResult(ctx, "t1", ids[1])
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Result.TotalCost != 11 || len(got.Result.Routes) != 1 || got.Result.Unassigned[0].CustomerID != "c2" {
				t.Fatalf("unexpected result: %+v", got.Result)
			}
			if _, err := s.GetResult(ctx, "t2", ids[1]); !errors.Is(err, ErrNotFound) {
				t.Fatalf("other tenant must not see result, got %v", err)
			}

			page, next, err := s.ListResults(ctx, "t1", "", 2)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(page) != 2 || page[0].ID != ids[0] || next != ids[1] {
				t.Fatalf("first page: %+v next=%q", page, next)
			}
			if page[0].Routes != 1 || page[0].Unassigned != 1 {
				t.Fatalf("summary counts: %+v", page[0])
			}
			page, _, err = s.ListResults(ctx, "t1", next, 2)
			if err != nil || len(page) != 1 || page[0].ID != ids[2] {
				t.Fatalf("second page: %+v err=%v", page, err)
			}
		})
	}
}

func TestOptimizerConfig(t *testing.T) {
	for name, mk := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			ctx := context.Background()
			if _, ok, err := s.GetOptimizerConfig(ctx, "t1"); err != nil || ok {
				t.Fatalf("expected no config, ok=%v err=%v", ok, err)
			}
			stall := true
			want := model.OptimizerOptions{Iterations: 250, TimeBudgetMs: 1500, StopWhenStalled: &stall}
			if err := s.SaveOptimizerConfig(ctx, "t1", want); err != nil {
				t.Fatalf("save: %v", err)
			}
			want.Iterations = 300
			if err := s.SaveOptimizerConfig(ctx, "t1", want); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			got, ok, err := s.GetOptimizerConfig(ctx, "t1")
			if err != nil || !ok {
				t.Fatalf("get: ok=%v err=%v", ok, err)
			}
			if got.Iterations != 300 || got.TimeBudgetMs != 1500 || got.StopWhenStalled == nil || !*got.StopWhenStalled {
				t.Fatalf("unexpected config: %+v", got)
			}
		})
	}
}

func TestSubscriptions(t *testing.T) {
	for name, mk := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			ctx := context.Background()
			a, err := s.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://a", Events: []string{model.EventRouteOptimized}})
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if _, err := s.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://b", Events: []string{"other"}}); err != nil {
				t.Fatalf("create: %v", err)
			}
			subs, err := s.GetSubscriptionsForEvent(ctx, "t1", model.EventRouteOptimized)
			if err != nil || len(subs) != 1 || subs[0].URL != "http://a" {
				t.Fatalf("for event: %+v err=%v", subs, err)
			}
			all, _, err := s.ListSubscriptions(ctx, "t1", "", 10)
			if err != nil || len(all) != 2 {
				t.Fatalf("list: %+v err=%v", all, err)
			}
			if err := s.DeleteSubscription(ctx, "t1", a.ID); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if err := s.DeleteSubscription(ctx, "t1", a.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("second delete: %v", err)
			}
		})
	}
}

func TestWebhookQueue(t *testing.T) {
	for name, mk := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := mk(t)
			ctx := context.Background()
			payload := []byte(`{"id":"evt1"}`)
			id, err := s.EnqueueWebhook(ctx, "t1", "sub1", model.EventRouteOptimized, "http://a", "k", payload)
			if err != nil || id == "" {
				t.Fatalf("enqueue: id=%q err=%v", id, err)
			}
			if dup, err := s.EnqueueWebhook(ctx, "t1", "sub1", model.EventRouteOptimized, "http://a", "k", payload); err != nil || dup != "" {
				t.Fatalf("duplicate must be ignored: id=%q err=%v", dup, err)
			}
			due, err := s.FetchDueWebhookDeliveries(ctx, 10)
			if err != nil || len(due) != 1 || string(due[0].Payload) != string(payload) || due[0].Secret != "k" {
				t.Fatalf("due: %+v err=%v", due, err)
			}

			later := time.Now().Add(time.Hour)
			if err := s.MarkWebhookDelivery(ctx, id, false, &later, "boom", 500, 12); err != nil {
				t.Fatalf("mark: %v", err)
			}
			if due, _ := s.FetchDueWebhookDeliveries(ctx, 10); len(due) != 0 {
				t.Fatalf("retry scheduled in the future must not be due: %+v", due)
			}
			views, _, err := s.ListWebhookDeliveries(ctx, "t1", StatusRetry, "", 10)
			if err != nil || len(views) != 1 || views[0].Attempts != 1 || views[0].LastError != "boom" || views[0].NextAttemptAt == nil {
				t.Fatalf("views: %+v err=%v", views, err)
			}

			if err := s.RetryWebhookDelivery(ctx, "t1", id); err != nil {
				t.Fatalf("retry: %v", err)
			}
			if due, _ := s.FetchDueWebhookDeliveries(ctx, 10); len(due) != 1 {
				t.Fatalf("retried delivery must be due")
			}
			if err := s.FailWebhookDelivery(ctx, id, "gone", 410, 5); err != nil {
				t.Fatalf("fail: %v", err)
			}
			views, _, _ = s.ListWebhookDeliveries(ctx, "t1", StatusFailed, "", 10)
			if len(views) != 1 || views[0].ResponseCode != 410 {
				t.Fatalf("failed views: %+v", views)
			}
			if err := s.RetryWebhookDelivery(ctx, "t2", id); !errors.Is(err, ErrNotFound) {
				t.Fatalf("retry across tenants: %v", err)
			}
		})
	}
}

func TestSQLDeadLetter(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	id, _ := s.EnqueueWebhook(ctx, "t1", "", "x", "http://a", "", []byte(`{}`))
	if err := s.FailWebhookDelivery(ctx, id, "down", 503, 1); err != nil {
		t.Fatalf("fail: %v", err)
	}
	var n, attempts int
	if err := s.db.QueryRow(`SELECT COUNT(*), MAX(attempts) FROM webhook_dlq WHERE delivery_id=?`, id).Scan(&n, &attempts); err != nil {
		t.Fatalf("count dlq: %v", err)
	}
	if n != 1 || attempts != 1 {
		t.Fatalf("dlq rows=%d attempts=%d", n, attempts)
	}
}
