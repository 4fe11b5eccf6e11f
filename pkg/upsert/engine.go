// Package upsert - движок загрузки записей в таблицу с изменяющейся схемой.
//
// Запись проходит путь: Flatten → Normalize → определение типов (typemap) →
// создание таблицы и недостающих колонок → INSERT или UPDATE по наличию
// ключа в кэше → выполнение с повторами и переподключением.
//
// Использование:
//
//	conn, _ := adapters.New(ctx, adapters.Config{Type: "sqlite", DSN: "app.db"})
//	engine, _ := upsert.New(ctx, conn, upsert.Config{Table: "orders", KeyColumn: "id"})
//	defer engine.Close(ctx)
//
//	outcome, err := engine.Upsert(ctx, rec, upsert.Options{Force: true})
package upsert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ruslano69/dbcon/pkg/adapters"
	"github.com/ruslano69/dbcon/pkg/audit"
	"github.com/ruslano69/dbcon/pkg/record"
	"github.com/ruslano69/dbcon/pkg/retry"
	"github.com/ruslano69/dbcon/pkg/typemap"
)

// Config - конфигурация движка для одной таблицы
type Config struct {
	// Table - целевая таблица (допускается schema.table)
	Table string `yaml:"table"`

	// KeyColumn - колонка первичного ключа
	KeyColumn string `yaml:"key_column"`

	// Composite - политика составного ключа; заменяет KeyColumn
	Composite *CompositeKey `yaml:"composite,omitempty"`

	// ListKeys - кандидаты ключа для списков записей (первый найденный побеждает)
	ListKeys []string `yaml:"list_keys,omitempty"`

	// Separator - разделитель уровней в именах колонок (по умолчанию ".")
	Separator string `yaml:"separator,omitempty"`

	// Types - цепочка разрешения SQL типов
	Types typemap.Config `yaml:"types"`

	// Retry - повторы операторов; пустая конфигурация = retry.StatementDefaults()
	Retry retry.Config `yaml:"retry"`

	// ReconnectAttempts - переподключения при ошибке фиксации (0 = 1, <0 = без них)
	ReconnectAttempts int `yaml:"reconnect_attempts"`

	// Strict - исчерпание попыток возвращает ExhaustedError
	Strict bool `yaml:"strict"`

	// BatchRecache - перечитывать ключи перед каждым Flush
	BatchRecache bool `yaml:"batch_recache"`

	// Verbose - трассировка операторов
	Verbose bool `yaml:"verbose"`

	Logger *slog.Logger `yaml:"-"`
	Audit  audit.Logger `yaml:"-"`
}

// Options - параметры одного Upsert
type Options struct {
	// Force - перезаписать строку с существующим ключом
	Force bool
	// NoCreateColumns - отсутствующая колонка является ошибкой
	NoCreateColumns bool
	// Recache - перечитать ключи перед проверкой
	Recache bool
	// KeepNulls - записывать NULL поля (по умолчанию пропускаются)
	KeepNulls bool
}

// Outcome - результат Upsert
type Outcome int

const (
	// NoOutcome - операция завершилась ошибкой
	NoOutcome Outcome = iota
	// Inserted - строка добавлена
	Inserted
	// Updated - строка с существующим ключом перезаписана
	Updated
	// Rejected - ключ уже есть, Force не задан
	Rejected
	// Dropped - попытки исчерпаны в мягком режиме, запись ушла в DLQ
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Rejected:
		return "rejected"
	case Dropped:
		return "dropped"
	default:
		return "none"
	}
}

// Engine - движок одной таблицы. Методы сериализуются мьютексом.
type Engine struct {
	mu sync.Mutex

	cfg      Config
	conn     adapters.Conn
	dialect  adapters.Dialect
	mapper   *typemap.Mapper
	selector record.KeySelector
	cache    *SchemaCache
	recon    *Reconciler
	exec     *Executor
	log      *slog.Logger
	audit    audit.Logger

	buffer []*record.Record
	closed bool
}

// New создает движок и читает схему и ключи таблицы
func New(ctx context.Context, conn adapters.Conn, cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	dialect := conn.Dialect()

	mapper, err := typemap.New(cfg.Types, dialect.DefaultTypes())
	if err != nil {
		return nil, fmt.Errorf("invalid type mapping: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("table", cfg.Table)

	if cfg.Retry.MaxAttempts == 0 && !cfg.Retry.Enabled {
		dlq := cfg.Retry.DLQ
		cfg.Retry = retry.StatementDefaults()
		if dlq.Enabled {
			cfg.Retry.DLQ = dlq
		}
	}
	reconnects := cfg.ReconnectAttempts
	if reconnects == 0 {
		reconnects = 1
	}

	exec, err := NewExecutor(conn, ExecutorConfig{
		Retry:             cfg.Retry,
		ReconnectAttempts: reconnects,
		Strict:            cfg.Strict,
		Verbose:           cfg.Verbose,
		Logger:            log,
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:      cfg,
		conn:     conn,
		dialect:  dialect,
		mapper:   mapper,
		selector: record.Keys(cfg.ListKeys...),
		exec:     exec,
		log:      log,
		audit:    cfg.Audit,
	}
	e.cache = NewSchemaCache(conn, cfg.Table, e.keyColumn())
	e.recon = NewReconciler(conn, exec, e.cache, log)
	e.recon.onDDL = e.auditDDL

	if err := e.cache.Refresh(ctx); err != nil {
		return nil, err
	}
	if err := e.cache.RefreshKeys(ctx); err != nil {
		return nil, err
	}
	log.Debug("schema loaded", "exists", e.cache.Exists(), "columns", len(e.cache.Columns()), "keys", e.cache.KeyCount())
	return e, nil
}

func (c *Config) validate() error {
	if c.Table == "" {
		return errors.New("table is required")
	}
	schema, name := adapters.SplitTable(c.Table)
	if schema != "" {
		if err := adapters.ValidateIdentifier(schema); err != nil {
			return fmt.Errorf("invalid table: %w", err)
		}
	}
	if err := adapters.ValidateIdentifier(name); err != nil {
		return fmt.Errorf("invalid table: %w", err)
	}

	if c.Composite != nil {
		if len(c.Composite.Fields) == 0 {
			return errors.New("composite key requires fields")
		}
		if err := adapters.ValidateIdentifier(c.Composite.Column); err != nil {
			return fmt.Errorf("invalid composite key column: %w", err)
		}
		return nil
	}
	if err := adapters.ValidateIdentifier(c.KeyColumn); err != nil {
		return fmt.Errorf("invalid key column: %w", err)
	}
	return nil
}

// keyColumn - действующая колонка ключа
func (e *Engine) keyColumn() string {
	if e.cfg.Composite != nil {
		return e.cfg.Composite.Column
	}
	return e.cfg.KeyColumn
}

// prepare раскрывает списки и вложенные записи
func (e *Engine) prepare(rec *record.Record) *record.Record {
	return record.Normalize(record.Flatten(rec, e.selector), e.cfg.Separator)
}

// RefreshSchema перечитывает колонки таблицы
func (e *Engine) RefreshSchema(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.Refresh(ctx)
}

// RefreshKeys перечитывает значения ключа
func (e *Engine) RefreshKeys(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.RefreshKeys(ctx)
}

// HasColumn - есть ли колонка в кэше схемы
func (e *Engine) HasColumn(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.HasColumn(name)
}

// HasKey - есть ли значение ключа в кэше
func (e *Engine) HasKey(value any) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.HasKey(record.KeyString(value))
}

// Columns возвращает колонки таблицы из кэша
func (e *Engine) Columns() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache.Columns()
}

// DLQ возвращает очередь недоставленных записей (nil если отключена)
func (e *Engine) DLQ() *retry.DLQ {
	return e.exec.DLQ()
}

// Close сохраняет DLQ и закрывает соединение.
// Незафиксированный буфер пакета теряется.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	if n := len(e.buffer); n > 0 {
		e.log.Warn("closing with unflushed records", "pending", n)
		e.buffer = nil
	}
	return errors.Join(e.exec.Close(), e.conn.Close(ctx))
}

func (e *Engine) auditUpsert(ctx context.Context, key string, outcome Outcome, err error, d time.Duration) {
	if e.audit == nil {
		return
	}
	entry := audit.NewEntry(audit.OpUpsert, audit.StatusSuccess).
		WithResource(e.cfg.Table).
		WithDuration(d).
		WithMetadata("outcome", outcome.String()).
		WithMetadata("key", key)
	switch outcome {
	case Inserted, Updated:
		entry.WithRecordsAffected(1)
	case Dropped:
		entry.Status = audit.StatusPartial
	}
	entry.WithError(err)
	if logErr := e.audit.Log(ctx, entry); logErr != nil {
		e.log.Warn("audit failed", "error", logErr)
	}
}

func (e *Engine) auditFlush(ctx context.Context, report FlushReport, err error) {
	if e.audit == nil {
		return
	}
	entry := audit.NewEntry(audit.OpFlush, audit.StatusSuccess).
		WithResource(e.cfg.Table).
		WithDuration(report.Duration).
		WithRecordsAffected(int64(report.Inserted + report.Updated)).
		WithMetadata("inserted", report.Inserted).
		WithMetadata("updated", report.Updated).
		WithMetadata("dropped", report.Dropped)
	if report.Dropped > 0 {
		entry.Status = audit.StatusPartial
	}
	entry.WithError(err)
	if logErr := e.audit.Log(ctx, entry); logErr != nil {
		e.log.Warn("audit failed", "error", logErr)
	}
}

func (e *Engine) auditDDL(ctx context.Context, statement string) {
	if e.audit == nil {
		return
	}
	entry := audit.NewEntry(audit.OpAlter, audit.StatusSuccess).
		WithResource(e.cfg.Table).
		WithData(statement)
	if logErr := e.audit.Log(ctx, entry); logErr != nil {
		e.log.Warn("audit failed", "error", logErr)
	}
}
