package audit_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ruslano69/dbcon/pkg/adapters"
	_ "github.com/ruslano69/dbcon/pkg/adapters/sqlite"
	"github.com/ruslano69/dbcon/pkg/audit"
)

func newTableAppender(t *testing.T, batch int) *audit.TableAppender {
	t.Helper()
	ctx := context.Background()

	conn, err := adapters.New(ctx, adapters.Config{Type: "sqlite", DSN: filepath.Join(t.TempDir(), "audit.db")})
	if err != nil {
		t.Fatalf("Failed to open SQLite: %v", err)
	}
	t.Cleanup(func() { conn.Close(ctx) })

	appender, err := audit.NewTableAppender(ctx, audit.TableAppenderConfig{
		Conn:       conn,
		Level:      audit.LevelStandard,
		BatchSize:  batch,
		AutoCreate: true,
	})
	if err != nil {
		t.Fatalf("Failed to create table appender: %v", err)
	}
	return appender
}

func TestTableAppender_Append(t *testing.T) {
	ctx := context.Background()
	appender := newTableAppender(t, 0)

	entry := audit.NewEntry(audit.OpUpsert, audit.StatusSuccess).
		WithResource("orders").
		WithRecordsAffected(1).
		WithMetadata("outcome", "inserted")
	if err := appender.Append(ctx, entry); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	appender.Append(ctx, audit.NewEntry(audit.OpFlush, audit.StatusSuccess))

	n, err := appender.Count(ctx, audit.OpUpsert)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 upsert entry, got %d", n)
	}
	if n, _ := appender.Count(ctx, ""); n != 2 {
		t.Errorf("Expected 2 entries, got %d", n)
	}
}

func TestTableAppender_Batch(t *testing.T) {
	ctx := context.Background()
	appender := newTableAppender(t, 5)

	for i := 0; i < 12; i++ {
		appender.Append(ctx, audit.NewEntry(audit.OpUpsert, audit.StatusSuccess).WithRecordsAffected(int64(i)))
	}

	// Две полные пачки записаны, две записи ждут Flush
	if n, _ := appender.Count(ctx, ""); n != 10 {
		t.Errorf("Expected 10 entries before flush, got %d", n)
	}
	if err := appender.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if n, _ := appender.Count(ctx, ""); n != 12 {
		t.Errorf("Expected 12 entries, got %d", n)
	}
}

func TestTableAppender_DeleteOld(t *testing.T) {
	ctx := context.Background()
	appender := newTableAppender(t, 0)

	for i := 0; i < 5; i++ {
		appender.Append(ctx, audit.NewEntry(audit.OpUpsert, audit.StatusSuccess))
	}

	deleted, err := appender.DeleteOlderThan(ctx, time.Now().Add(2*time.Second))
	if err != nil {
		t.Fatalf("DeleteOlderThan failed: %v", err)
	}
	if deleted != 5 {
		t.Errorf("Expected 5 deleted entries, got %d", deleted)
	}
	if n, _ := appender.Count(ctx, ""); n != 0 {
		t.Errorf("Expected 0 entries after delete, got %d", n)
	}
}
