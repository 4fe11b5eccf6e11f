package retry

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestDLQ(t *testing.T, config DLQConfig) *DLQ {
	t.Helper()
	if config.FilePath == "" {
		config.FilePath = filepath.Join(t.TempDir(), "dlq.json")
	}
	dlq, err := NewDLQ(config)
	if err != nil {
		t.Fatalf("Failed to create DLQ: %v", err)
	}
	return dlq
}

func TestDLQ_AddAndGet(t *testing.T) {
	dlq := newTestDLQ(t, DLQConfig{MaxSize: 100})

	id, dup := dlq.Add(DLQEntry{
		Attempts:    3,
		LastError:   "connection timeout",
		FailureType: "max_attempts_exceeded",
		Data:        []byte(`{"order_id":"12345"}`),
	})
	if dup {
		t.Error("first entry must not be a duplicate")
	}

	entries := dlq.Get()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].ID != id || id == "" {
		t.Errorf("unexpected ID %q (returned %q)", entries[0].ID, id)
	}
	if entries[0].Fingerprint == "" {
		t.Error("Expected fingerprint for entry with data")
	}
	if entries[0].Timestamp.IsZero() {
		t.Error("Expected timestamp to be filled")
	}
}

// TestDLQ_Dedupe - одинаковый payload дает одну запись
func TestDLQ_Dedupe(t *testing.T) {
	dlq := newTestDLQ(t, DLQConfig{MaxSize: 100})

	data := []byte(`{"table":"items","key":"1"}`)
	id1, _ := dlq.Add(DLQEntry{Attempts: 10, LastError: "e1", FailureType: "statement", Data: data})
	id2, dup := dlq.Add(DLQEntry{Attempts: 10, LastError: "e2", FailureType: "commit", Data: data})
	dlq.Add(DLQEntry{Attempts: 1, LastError: "e3", Data: []byte(`{"key":"2"}`)})

	if !dup || id1 != id2 {
		t.Errorf("expected duplicate with same ID, got %q %q dup=%v", id1, id2, dup)
	}
	if dlq.Size() != 2 {
		t.Fatalf("Expected 2 entries, got %d", dlq.Size())
	}

	entry := dlq.GetByID(id1)
	if entry.Occurrences != 2 || entry.Attempts != 20 || entry.LastError != "e2" {
		t.Errorf("unexpected merged entry %+v", entry)
	}
}

func TestDLQ_MaxSize(t *testing.T) {
	dlq := newTestDLQ(t, DLQConfig{MaxSize: 3})

	for i := 1; i <= 5; i++ {
		dlq.Add(DLQEntry{Attempts: i, LastError: "error", FailureType: "test"})
	}

	entries := dlq.Get()
	if len(entries) != 3 {
		t.Errorf("Expected 3 entries (max size), got %d", len(entries))
	}
	if entries[0].Attempts != 3 {
		t.Errorf("Expected oldest remaining entry to have Attempts 3, got %d", entries[0].Attempts)
	}
}

func TestDLQ_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dlq.json")
	config := DLQConfig{FilePath: path, MaxSize: 100}

	dlq1 := newTestDLQ(t, config)
	dlq1.Add(DLQEntry{Attempts: 3, LastError: "error 1", FailureType: "type1", Data: []byte(`{"a":1}`)})
	dlq1.Add(DLQEntry{Attempts: 5, LastError: "error 2", FailureType: "type2"})

	dlq2 := newTestDLQ(t, config)
	entries := dlq2.Get()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries after load, got %d", len(entries))
	}
	if entries[0].LastError != "error 1" || string(entries[0].Data) != `{"a":1}` {
		t.Errorf("unexpected first entry %+v", entries[0])
	}

	fromFile, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(fromFile) != 2 {
		t.Errorf("ReadFile returned %d entries", len(fromFile))
	}
	if string(fromFile[0].Data) != `{"a":1}` {
		t.Errorf("payload must survive the indented file unchanged, got %s", fromFile[0].Data)
	}

	// отпечаток загруженной записи совпадает с отпечатком того же payload
	if _, duplicate := dlq2.Add(DLQEntry{Attempts: 1, Data: []byte(`{"a":1}`)}); !duplicate {
		t.Error("reloaded entry must dedupe the same payload")
	}
	if Fingerprint(entries[0].Data) != entries[0].Fingerprint {
		t.Errorf("fingerprint %s does not match reloaded data", entries[0].Fingerprint)
	}
}

func TestDLQ_MemoryOnly(t *testing.T) {
	dlq, err := NewDLQ(DLQConfig{})
	if err != nil {
		t.Fatalf("Failed to create DLQ: %v", err)
	}
	dlq.Add(DLQEntry{LastError: "x"})
	if err := dlq.Save(); err != nil {
		t.Errorf("Save without file must be a no-op, got %v", err)
	}
	if dlq.Size() != 1 {
		t.Errorf("Expected 1 entry, got %d", dlq.Size())
	}
}

func TestDLQ_RemoveAndClear(t *testing.T) {
	dlq := newTestDLQ(t, DLQConfig{MaxSize: 100})

	first, _ := dlq.Add(DLQEntry{Attempts: 3, LastError: "error 1"})
	dlq.Add(DLQEntry{Attempts: 4, LastError: "error 2"})

	if !dlq.Remove(first) {
		t.Error("Expected successful removal")
	}
	if dlq.Remove("nonexistent-id") {
		t.Error("Expected false when removing nonexistent entry")
	}
	entries := dlq.Get()
	if len(entries) != 1 || entries[0].LastError != "error 2" {
		t.Errorf("unexpected entries after removal: %+v", entries)
	}
	if dlq.GetByID("nonexistent-id") != nil {
		t.Error("Expected nil for nonexistent ID")
	}

	if err := dlq.Clear(); err != nil {
		t.Errorf("Failed to clear DLQ: %v", err)
	}
	if dlq.Size() != 0 {
		t.Errorf("Expected 0 entries after clear, got %d", dlq.Size())
	}
}

func TestDLQ_CleanupOld(t *testing.T) {
	dlq := newTestDLQ(t, DLQConfig{MaxSize: 100, RetentionPeriod: time.Hour})

	dlq.Add(DLQEntry{Timestamp: time.Now().Add(-2 * time.Hour), LastError: "old error"})
	dlq.Add(DLQEntry{Timestamp: time.Now().Add(-time.Minute), LastError: "new error"})

	if removed := dlq.CleanupOld(); removed != 1 {
		t.Errorf("Expected to remove 1 old entry, removed %d", removed)
	}
	entries := dlq.Get()
	if len(entries) != 1 || entries[0].LastError != "new error" {
		t.Errorf("unexpected entries after cleanup: %+v", entries)
	}
}

func TestDLQ_GetStats(t *testing.T) {
	dlq := newTestDLQ(t, DLQConfig{MaxSize: 100})

	if stats := dlq.GetStats(); stats.TotalEntries != 0 || !stats.OldestEntry.IsZero() {
		t.Errorf("unexpected stats for empty DLQ: %+v", stats)
	}

	base := time.Now().Add(-time.Minute)
	dlq.Add(DLQEntry{Timestamp: base, LastError: "error 1", FailureType: "statement"})
	dlq.Add(DLQEntry{Timestamp: base.Add(time.Second), LastError: "error 2", FailureType: "statement"})
	dlq.Add(DLQEntry{Timestamp: base.Add(2 * time.Second), LastError: "error 3", FailureType: "commit"})

	stats := dlq.GetStats()
	if stats.TotalEntries != 3 {
		t.Errorf("Expected TotalEntries 3, got %d", stats.TotalEntries)
	}
	if stats.FailureTypes["statement"] != 2 || stats.FailureTypes["commit"] != 1 {
		t.Errorf("unexpected failure types %v", stats.FailureTypes)
	}
	if !stats.NewestEntry.After(stats.OldestEntry) {
		t.Error("Expected NewestEntry to be after OldestEntry")
	}
}

func TestNewDLQ_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dlq.json")
	if err := os.WriteFile(path, []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewDLQ(DLQConfig{FilePath: path}); err == nil {
		t.Error("Expected error for corrupt DLQ file")
	}
}
