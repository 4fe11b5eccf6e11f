package base

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/ruslano69/dbcon/pkg/adapters"
	"github.com/ruslano69/dbcon/pkg/record"
)

// Compile-time check
var _ adapters.Dialect = (*StandardDialect)(nil)

// StandardDialect - общая реализация adapters.Dialect, параметризуемая
// конкретной СУБД. Диалекты в подпакетах заполняют поля и при необходимости
// переопределяют методы.
type StandardDialect struct {
	// Type - имя типа в фабрике ("sqlite", "postgres", ...)
	Type string

	// Driver - имя драйвера database/sql
	Driver string

	// Bind - тип плейсхолдеров sqlx
	Bind int

	// OpenQuote / CloseQuote - символы квотирования идентификаторов
	OpenQuote  string
	CloseQuote string

	// Sensitive - регистрозависимые имена колонок
	Sensitive bool

	// Params - предел числа параметров в одном операторе
	Params int

	// Types - типы по умолчанию для уровня typed
	Types map[record.Tag]string

	// AddColumnFormat - формат ALTER TABLE: table, column, type
	AddColumnFormat string

	// ExistsQuery возвращает одно число (0 или 1/количество)
	ExistsQuery string

	// ColumnsQuery возвращает одну колонку с именами
	ColumnsQuery string

	// TableArgs - параметры для ExistsQuery/ColumnsQuery по имени таблицы
	TableArgs func(table string) []any

	// InitStatements выполняются после подключения (PRAGMA, SET ...)
	InitStatements []string
}

// Name - тип СУБД
func (d *StandardDialect) Name() string { return d.Type }

// DriverName - имя драйвера
func (d *StandardDialect) DriverName() string { return d.Driver }

// BindType - тип плейсхолдеров
func (d *StandardDialect) BindType() int { return d.Bind }

// CaseSensitive - регистрозависимость имен
func (d *StandardDialect) CaseSensitive() bool { return d.Sensitive }

// MaxParams - предел параметров
func (d *StandardDialect) MaxParams() int {
	if d.Params <= 0 {
		return 999
	}
	return d.Params
}

// QuoteIdentifier квотирует имя, удваивая закрывающую кавычку внутри
func (d *StandardDialect) QuoteIdentifier(name string) string {
	return d.OpenQuote + strings.ReplaceAll(name, d.CloseQuote, d.CloseQuote+d.CloseQuote) + d.CloseQuote
}

// DefaultTypes возвращает копию таблицы типов по умолчанию
func (d *StandardDialect) DefaultTypes() map[record.Tag]string {
	out := make(map[record.Tag]string, len(d.Types))
	for k, v := range d.Types {
		out[k] = v
	}
	return out
}

// AddColumnSQL строит ALTER TABLE для nullable колонки
func (d *StandardDialect) AddColumnSQL(table, column, sqlType string) string {
	format := d.AddColumnFormat
	if format == "" {
		format = "ALTER TABLE %s ADD COLUMN %s %s NULL"
	}
	return fmt.Sprintf(format, adapters.QuoteTable(d, table), d.QuoteIdentifier(column), sqlType)
}

func (d *StandardDialect) args(table string) []any {
	if d.TableArgs != nil {
		return d.TableArgs(table)
	}
	return []any{table}
}

// TableExists проверяет существование таблицы по ExistsQuery
func (d *StandardDialect) TableExists(ctx context.Context, q sqlx.QueryerContext, table string) (bool, error) {
	var n int
	row := q.QueryRowxContext(ctx, sqlx.Rebind(d.Bind, d.ExistsQuery), d.args(table)...)
	if err := row.Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return n > 0, nil
}

// ListColumns читает имена колонок по ColumnsQuery
func (d *StandardDialect) ListColumns(ctx context.Context, q sqlx.QueryerContext, table string) ([]string, error) {
	rows, err := q.QueryxContext(ctx, sqlx.Rebind(d.Bind, d.ColumnsQuery), d.args(table)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns of %s: %w", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column name: %w", err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list columns of %s: %w", table, err)
	}
	return columns, nil
}

// Prepare выполняет InitStatements
func (d *StandardDialect) Prepare(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range d.InitStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}
