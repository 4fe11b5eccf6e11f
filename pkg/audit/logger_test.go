package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// memoryAppender собирает записи в памяти
type memoryAppender struct {
	mu      sync.Mutex
	entries []*Entry
	closed  bool
	err     error
}

func (m *memoryAppender) Append(ctx context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryAppender) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memoryAppender) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func TestEntry_Builder(t *testing.T) {
	entry := NewEntry(OpUpsert, StatusSuccess).
		WithUser("loader").
		WithSource("orders.jsonl").
		WithResource("orders").
		WithRecordsAffected(1).
		WithDuration(5*time.Millisecond).
		WithMetadata("outcome", "inserted")

	if entry.ID == "" {
		t.Error("Expected generated ID")
	}
	if entry.Resource != "orders" || entry.RecordsAffected != 1 {
		t.Errorf("unexpected entry %+v", entry)
	}
	if entry.Metadata["outcome"] != "inserted" {
		t.Error("Expected metadata outcome")
	}

	other := NewEntry(OpUpsert, StatusSuccess)
	if other.ID == entry.ID {
		t.Error("IDs must be unique")
	}
}

func TestEntry_WithError(t *testing.T) {
	entry := NewEntry(OpFlush, StatusSuccess).WithError(nil)
	if entry.Status != StatusSuccess {
		t.Errorf("nil error must keep status, got %s", entry.Status)
	}

	entry.WithError(errors.New("boom"))
	if entry.Status != StatusFailure || entry.ErrorMessage != "boom" {
		t.Errorf("unexpected entry %+v", entry)
	}
}

func TestEntry_FilterByLevel(t *testing.T) {
	entry := NewEntry(OpAlter, StatusSuccess).
		WithMetadata("column", "b.2.val").
		WithData("ALTER TABLE orders ADD b.2.val BIGINT NULL")

	minimal := entry.FilterByLevel(LevelMinimal)
	if minimal.Metadata != nil || minimal.Data != nil {
		t.Error("Minimal level should not include metadata or data")
	}

	standard := entry.FilterByLevel(LevelStandard)
	if standard.Data != nil || standard.Metadata == nil {
		t.Error("Standard level keeps metadata only")
	}

	full := entry.FilterByLevel(LevelFull)
	if full.Data == nil {
		t.Error("Full level should include data")
	}

	// Исходная запись не изменяется
	if entry.Data == nil || entry.Metadata == nil {
		t.Error("FilterByLevel must not modify the original entry")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{"": LevelStandard, "minimal": LevelMinimal, "full": LevelFull}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("Expected error for unknown level")
	}
}

func TestFileAppender_Write(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "audit.log")

	appender, err := NewFileAppender(FileAppenderConfig{FilePath: path, FormatJSON: true, Level: LevelStandard})
	if err != nil {
		t.Fatalf("Failed to create file appender: %v", err)
	}

	for i := 0; i < 3; i++ {
		entry := NewEntry(OpUpsert, StatusSuccess).WithResource("orders").WithRecordsAffected(1)
		if err := appender.Append(context.Background(), entry); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := appender.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open audit file: %v", err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("line %d is not JSON: %v", lines, err)
		}
		if e.Operation != OpUpsert {
			t.Errorf("unexpected operation %s", e.Operation)
		}
		lines++
	}
	if lines != 3 {
		t.Errorf("Expected 3 lines, got %d", lines)
	}
}

func TestFileAppender_Rotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	appender, err := NewFileAppender(FileAppenderConfig{FilePath: path, MaxBackups: 2})
	if err != nil {
		t.Fatalf("Failed to create file appender: %v", err)
	}
	defer appender.Close()

	// Уменьшаем порог, чтобы не писать мегабайты
	appender.maxSize = 200

	for i := 0; i < 20; i++ {
		entry := NewEntry(OpUpsert, StatusSuccess).WithResource("orders")
		if err := appender.Append(context.Background(), entry); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("Expected first backup: %v", err)
	}
	if _, err := os.Stat(path + ".2"); err != nil {
		t.Errorf("Expected second backup: %v", err)
	}
	if _, err := os.Stat(path + ".3"); err == nil {
		t.Error("Backups beyond MaxBackups must be removed")
	}
	if appender.CurrentSize() > 200 {
		t.Errorf("current file exceeds max size: %d", appender.CurrentSize())
	}
}

func TestWriterAppender(t *testing.T) {
	var buf bytes.Buffer
	appender := NewWriterAppender(&buf, LevelStandard, false)

	entry := NewEntry(OpFlush, StatusPartial).WithResource("orders").WithRecordsAffected(7)
	if err := appender.Append(context.Background(), entry); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "flush partial table=orders records=7") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestMultiAppender(t *testing.T) {
	ok := &memoryAppender{}
	failing := &memoryAppender{err: errors.New("disk full")}
	multi := NewMultiAppender(failing, ok)

	err := multi.Append(context.Background(), NewEntry(OpUpsert, StatusSuccess))
	if err == nil {
		t.Error("Expected error from failing appender")
	}
	if ok.count() != 1 {
		t.Error("Healthy appender must still receive the entry")
	}

	multi.Add(&memoryAppender{})
	if multi.Len() != 3 {
		t.Errorf("Expected 3 appenders, got %d", multi.Len())
	}
	if err := multi.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if !ok.closed {
		t.Error("Close must reach every appender")
	}
}

func TestAuditLogger_Sync(t *testing.T) {
	mem := &memoryAppender{}
	config := SyncConfig()
	config.DefaultUser = "dbconcli"
	logger := NewLogger(config, mem)
	defer logger.Close()

	entry := NewEntry(OpUpsert, StatusSuccess)
	if err := logger.Log(context.Background(), entry); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	if mem.count() != 1 {
		t.Fatalf("Expected 1 entry, got %d", mem.count())
	}
	if mem.entries[0].User != "dbconcli" {
		t.Errorf("Expected default user, got %q", mem.entries[0].User)
	}
}

func TestAuditLogger_Async(t *testing.T) {
	mem := &memoryAppender{}
	logger := NewLogger(DefaultConfig(), mem)

	for i := 0; i < 50; i++ {
		logger.Log(context.Background(), NewEntry(OpUpsert, StatusSuccess))
	}

	// Close дописывает очередь
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if mem.count() != 50 {
		t.Errorf("Expected 50 entries, got %d", mem.count())
	}
	if !mem.closed {
		t.Error("Appender must be closed")
	}
}

func TestAuditLogger_Closed(t *testing.T) {
	logger := NewLogger(SyncConfig(), &memoryAppender{})
	logger.Close()

	if err := logger.Log(context.Background(), NewEntry(OpUpsert, StatusSuccess)); !errors.Is(err, ErrLoggerClosed) {
		t.Errorf("Expected ErrLoggerClosed, got %v", err)
	}
	// Повторный Close безопасен
	if err := logger.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestAuditLogger_OnError(t *testing.T) {
	var got []error
	config := SyncConfig()
	config.OnError = func(err error) { got = append(got, err) }

	logger := NewLogger(config, &memoryAppender{err: errors.New("unavailable")})
	defer logger.Close()

	if err := logger.Log(context.Background(), NewEntry(OpUpsert, StatusSuccess)); err == nil {
		t.Error("Expected appender error")
	}
	if len(got) != 1 {
		t.Errorf("Expected OnError to be called once, got %d", len(got))
	}
}
