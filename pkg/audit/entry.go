package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Level - детализация записей, которые пишет appender
type Level int

const (
	// LevelMinimal - без метаданных и данных
	LevelMinimal Level = iota

	// LevelStandard - с метаданными, без данных
	LevelStandard

	// LevelFull - все поля, включая текст DDL и данные записи
	LevelFull
)

// String - строковое представление уровня
func (l Level) String() string {
	switch l {
	case LevelMinimal:
		return "minimal"
	case LevelStandard:
		return "standard"
	case LevelFull:
		return "full"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}

// ParseLevel разбирает уровень из конфигурации
func ParseLevel(s string) (Level, error) {
	switch s {
	case "minimal":
		return LevelMinimal, nil
	case "", "standard":
		return LevelStandard, nil
	case "full":
		return LevelFull, nil
	}
	return LevelStandard, fmt.Errorf("unknown audit level %q", s)
}

// Operation - вид операции движка
type Operation string

const (
	OpUpsert  Operation = "upsert"
	OpFlush   Operation = "flush"
	OpAlter   Operation = "alter" // CREATE TABLE / ADD COLUMN
	OpIngest  Operation = "ingest"
	OpConsume Operation = "consume"
	OpPublish Operation = "publish"
	OpReplay  Operation = "replay"
)

// Status - статус выполнения операции
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	// StatusPartial - часть записей ушла в DLQ
	StatusPartial Status = "partial"
)

// Entry - запись журнала операций
type Entry struct {
	ID              string                 `json:"id"`
	Timestamp       time.Time              `json:"timestamp"`
	Operation       Operation              `json:"operation"`
	Status          Status                 `json:"status"`
	User            string                 `json:"user,omitempty"`
	Source          string                 `json:"source,omitempty"`
	Resource        string                 `json:"resource,omitempty"` // таблица
	RecordsAffected int64                  `json:"records_affected,omitempty"`
	Duration        time.Duration          `json:"duration,omitempty"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`

	// Data пишется только на LevelFull
	Data interface{} `json:"data,omitempty"`
}

// NewEntry создает запись с новым ID
func NewEntry(operation Operation, status Status) *Entry {
	return &Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Operation: operation,
		Status:    status,
		Metadata:  make(map[string]interface{}),
	}
}

func (e *Entry) WithUser(user string) *Entry {
	e.User = user
	return e
}

func (e *Entry) WithSource(source string) *Entry {
	e.Source = source
	return e
}

func (e *Entry) WithResource(resource string) *Entry {
	e.Resource = resource
	return e
}

func (e *Entry) WithRecordsAffected(count int64) *Entry {
	e.RecordsAffected = count
	return e
}

func (e *Entry) WithDuration(duration time.Duration) *Entry {
	e.Duration = duration
	return e
}

// WithError переводит запись в StatusFailure (nil игнорируется)
func (e *Entry) WithError(err error) *Entry {
	if err != nil {
		e.ErrorMessage = err.Error()
		e.Status = StatusFailure
	}
	return e
}

func (e *Entry) WithMetadata(key string, value interface{}) *Entry {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func (e *Entry) WithData(data interface{}) *Entry {
	e.Data = data
	return e
}

// ToJSON - JSON одной строкой
func (e *Entry) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// String - однострочное текстовое представление
func (e *Entry) String() string {
	s := fmt.Sprintf("[%s] %s %s table=%s records=%d duration=%v",
		e.Timestamp.Format(time.RFC3339),
		e.Operation,
		e.Status,
		e.Resource,
		e.RecordsAffected,
		e.Duration,
	)
	if e.ErrorMessage != "" {
		s += " error=" + e.ErrorMessage
	}
	return s
}

// Clone - копия записи с собственной картой метаданных
func (e *Entry) Clone() *Entry {
	clone := *e
	if e.Metadata != nil {
		clone.Metadata = make(map[string]interface{}, len(e.Metadata))
		for k, v := range e.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// FilterByLevel возвращает копию без полей, не положенных уровню
func (e *Entry) FilterByLevel(level Level) *Entry {
	filtered := e.Clone()
	switch level {
	case LevelMinimal:
		filtered.Metadata = nil
		filtered.Data = nil
	case LevelStandard:
		filtered.Data = nil
	}
	return filtered
}
