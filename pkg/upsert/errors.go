package upsert

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ruslano69/dbcon/pkg/record"
)

var (
	// ErrClosed возвращается при обращении к закрытому движку
	ErrClosed = errors.New("engine is closed")

	// ErrNoResult - оператор не дал результата после всех попыток
	ErrNoResult = errors.New("statement gave no result")

	// ErrColumnMissing - колонки нет в таблице, а создание колонок отключено
	ErrColumnMissing = errors.New("column does not exist")
)

// MissingKeyError - в записи нет значения ключевой колонки
type MissingKeyError struct {
	Column string
	// Row - номер строки буфера (-1 для одиночной записи)
	Row int
}

func (e *MissingKeyError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("row %d has no value for key column %q", e.Row, e.Column)
	}
	return fmt.Sprintf("record has no value for key column %q", e.Column)
}

// UnresolvedTypeError - ни один уровень маппера не дал SQL тип для колонки,
// которую нужно создать
type UnresolvedTypeError struct {
	Column string
	Tag    record.Tag
}

func (e *UnresolvedTypeError) Error() string {
	return fmt.Sprintf("no SQL type for column %q (value type %s)", e.Column, e.Tag)
}

// InvalidColumnError - имя колонки записи не проходит проверку идентификатора
type InvalidColumnError struct {
	Column string
	Err    error
}

func (e *InvalidColumnError) Error() string {
	return fmt.Sprintf("invalid column %q: %v", e.Column, e.Err)
}

func (e *InvalidColumnError) Unwrap() error {
	return e.Err
}

// SchemaError - не удалось создать таблицу или добавить колонку.
// С ErrColumnMissing - колонки нет, а создание колонок отключено.
type SchemaError struct {
	Table     string
	Column    string
	Statement string
	Err       error
}

func (e *SchemaError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("schema error on %s.%s: %v", e.Table, e.Column, e.Err)
	}
	return fmt.Sprintf("schema error on %s: %v", e.Table, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// ShapeMismatchError - строки буфера имеют разный набор колонок
type ShapeMismatchError struct {
	Row     int
	Missing []string
	Extra   []string
}

func (e *ShapeMismatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "row %d does not match batch shape", e.Row)
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ", missing %v", e.Missing)
	}
	if len(e.Extra) > 0 {
		fmt.Fprintf(&b, ", extra %v", e.Extra)
	}
	return b.String()
}

// FailureKind - вид исчерпанной операции
type FailureKind int

const (
	// StatementFailure - выполнение оператора
	StatementFailure FailureKind = iota
	// CommitFailure - фиксация транзакции (с переподключением)
	CommitFailure
)

func (k FailureKind) String() string {
	if k == CommitFailure {
		return "commit"
	}
	return "statement"
}

// failureType - значение FailureType в DLQ
func (k FailureKind) failureType() string {
	if k == CommitFailure {
		return "commit_failed"
	}
	return "max_attempts_exceeded"
}

// ExhaustedError возвращается в strict режиме, когда исчерпаны попытки
// выполнения оператора или переподключения при фиксации
type ExhaustedError struct {
	Kind      FailureKind
	Statement string
	Attempts  int
	Err       error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Kind, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}
