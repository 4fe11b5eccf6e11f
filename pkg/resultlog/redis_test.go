package resultlog

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ruslano69/dbcon/pkg/ingest"
)

func TestNewRunResult(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	stats := ingest.Stats{
		StartTime: start,
		EndTime:   start.Add(1500 * time.Millisecond),
		Duration:  1500 * time.Millisecond,
		Records:   10,
		Inserted:  7,
		Updated:   2,
		Failed:    1,
	}

	ok := NewRunResult("nightly", stats, nil)
	if ok.Status != "success" || ok.Error != nil {
		t.Errorf("unexpected success result %+v", ok)
	}
	if ok.DurationMs != 1500 || ok.Inserted != 7 || ok.Updated != 2 || ok.Failed != 1 {
		t.Errorf("counts not copied: %+v", ok)
	}

	failed := NewRunResult("nightly", stats, errors.New("db down"))
	if failed.Status != "failed" || failed.Error == nil || *failed.Error != "db down" {
		t.Errorf("unexpected failed result %+v", failed)
	}

	payload, err := json.Marshal(failed)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded["error"] != "db down" || decoded["run"] != "nightly" {
		t.Errorf("unexpected payload %s", payload)
	}
	if _, ok := decoded["messages"]; ok {
		t.Error("messages must be omitted for file runs")
	}
}

func TestKeys(t *testing.T) {
	if got := StateKey("orders"); got != "dbcon:ingest:orders:state" {
		t.Errorf("StateKey = %s", got)
	}
	if got := Channel("orders"); got != "dbcon:ingest:orders" {
		t.Errorf("Channel = %s", got)
	}
}

func TestRedisPublisher_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p := NewRedisPublisher(Config{Address: addr, TTL: 60, Name: "dbcon-test"}, "orders")
	defer p.Close()
	if err := p.Ping(ctx); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	stats := ingest.Stats{Records: 3, Inserted: 3}
	if err := p.Publish(ctx, "run", stats, nil); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	raw, err := p.client.Get(ctx, StateKey("dbcon-test")).Bytes()
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	var got RunResult
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got.Status != "success" || got.Inserted != 3 || got.Table != "orders" {
		t.Errorf("unexpected state %+v", got)
	}
}
