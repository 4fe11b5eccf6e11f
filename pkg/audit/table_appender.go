package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ruslano69/dbcon/pkg/adapters"
	"github.com/ruslano69/dbcon/pkg/record"
)

// TableAppender пишет записи журнала в таблицу через adapters.Conn.
// Соединение должно быть отдельным от соединения движка: appender
// фиксирует свою транзакцию сам.
type TableAppender struct {
	mu        sync.Mutex
	conn      adapters.Conn
	table     string
	level     Level
	batchSize int
	queue     []*Entry
}

// TableAppenderConfig - конфигурация табличного appender
type TableAppenderConfig struct {
	Conn adapters.Conn

	// Table - имя таблицы (по умолчанию dbcon_audit)
	Table string

	Level Level

	// BatchSize - записи копятся до BatchSize и пишутся одной транзакцией (0 = сразу)
	BatchSize int

	// AutoCreate - создать таблицу, если ее нет
	AutoCreate bool
}

var auditColumns = []string{
	"id", "ts", "operation", "status", "user_name", "source", "resource",
	"records_affected", "duration_ms", "error_message", "metadata", "data",
}

// NewTableAppender создает appender и при необходимости таблицу
func NewTableAppender(ctx context.Context, config TableAppenderConfig) (*TableAppender, error) {
	if config.Conn == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if config.Table == "" {
		config.Table = "dbcon_audit"
	}
	if err := adapters.ValidateIdentifier(config.Table); err != nil {
		return nil, fmt.Errorf("invalid audit table: %w", err)
	}

	ta := &TableAppender{
		conn:      config.Conn,
		table:     config.Table,
		level:     config.Level,
		batchSize: config.BatchSize,
	}
	if config.AutoCreate {
		if err := ta.createTable(ctx); err != nil {
			return nil, fmt.Errorf("failed to create audit table: %w", err)
		}
	}
	return ta, nil
}

// createTable создает таблицу с типами диалекта
func (ta *TableAppender) createTable(ctx context.Context) error {
	exists, err := ta.conn.TableExists(ctx, ta.table)
	if err != nil || exists {
		return err
	}

	d := ta.conn.Dialect()
	types := d.DefaultTypes()
	text, integer, datetime := types[record.TagText], types[record.TagInteger], types[record.TagDatetime]

	defs := make([]string, len(auditColumns))
	for i, c := range auditColumns {
		sqlType := text
		switch c {
		case "ts":
			sqlType = datetime
		case "records_affected", "duration_ms":
			sqlType = integer
		}
		defs[i] = d.QuoteIdentifier(c) + " " + sqlType
	}

	query := fmt.Sprintf("CREATE TABLE %s (%s)", adapters.QuoteTable(d, ta.table), strings.Join(defs, ", "))
	if _, err := ta.conn.Exec(ctx, query); err != nil {
		return err
	}
	return ta.conn.Commit(ctx)
}

// Append пишет запись сразу или копит до BatchSize
func (ta *TableAppender) Append(ctx context.Context, entry *Entry) error {
	ta.mu.Lock()
	defer ta.mu.Unlock()

	ta.queue = append(ta.queue, entry.FilterByLevel(ta.level))
	if ta.batchSize > 0 && len(ta.queue) < ta.batchSize {
		return nil
	}
	return ta.flush(ctx)
}

// flush пишет очередь одной транзакцией (под ta.mu)
func (ta *TableAppender) flush(ctx context.Context) error {
	if len(ta.queue) == 0 {
		return nil
	}

	d := ta.conn.Dialect()
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		adapters.QuoteTable(d, ta.table),
		quoteAll(d, auditColumns),
		strings.TrimSuffix(strings.Repeat("?, ", len(auditColumns)), ", "))

	rows := make([][]any, len(ta.queue))
	for i, e := range ta.queue {
		rows[i] = entryRow(e)
	}
	if _, err := ta.conn.ExecMany(ctx, query, rows); err != nil {
		return fmt.Errorf("failed to insert audit entries: %w", err)
	}
	if err := ta.conn.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit audit entries: %w", err)
	}
	ta.queue = ta.queue[:0]
	return nil
}

func entryRow(e *Entry) []any {
	var metadata, data any
	if len(e.Metadata) > 0 {
		if b, err := json.Marshal(e.Metadata); err == nil {
			metadata = string(b)
		}
	}
	if e.Data != nil {
		if b, err := json.Marshal(e.Data); err == nil {
			data = string(b)
		}
	}
	return []any{
		e.ID,
		e.Timestamp.Format(record.DatetimeLayout),
		string(e.Operation),
		string(e.Status),
		e.User,
		e.Source,
		e.Resource,
		e.RecordsAffected,
		e.Duration.Milliseconds(),
		e.ErrorMessage,
		metadata,
		data,
	}
}

// Flush пишет накопленные записи
func (ta *TableAppender) Flush() error {
	ta.mu.Lock()
	defer ta.mu.Unlock()
	return ta.flush(context.Background())
}

// Close пишет остаток очереди. Соединение закрывает владелец.
func (ta *TableAppender) Close() error {
	return ta.Flush()
}

// Count - количество записей операции (пустая operation = все)
func (ta *TableAppender) Count(ctx context.Context, operation Operation) (int64, error) {
	d := ta.conn.Dialect()
	query := "SELECT COUNT(*) FROM " + adapters.QuoteTable(d, ta.table)
	var args []any
	if operation != "" {
		query += " WHERE " + d.QuoteIdentifier("operation") + " = ?"
		args = append(args, string(operation))
	}

	rows, err := ta.conn.Query(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", err)
	}
	defer rows.Close()

	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, rows.Err()
}

// DeleteOlderThan удаляет записи старше before
func (ta *TableAppender) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	d := ta.conn.Dialect()
	query := fmt.Sprintf("DELETE FROM %s WHERE %s < ?", adapters.QuoteTable(d, ta.table), d.QuoteIdentifier("ts"))
	res, err := ta.conn.Exec(ctx, query, before.Format(record.DatetimeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old entries: %w", err)
	}
	if err := ta.conn.Commit(ctx); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func quoteAll(d adapters.Dialect, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.QuoteIdentifier(n)
	}
	return strings.Join(quoted, ", ")
}
