package postgres

import (
	_ "github.com/jackc/pgx/v5/stdlib" // драйвер "pgx" для database/sql
	"github.com/jmoiron/sqlx"

	"github.com/ruslano69/dbcon/pkg/adapters"
	"github.com/ruslano69/dbcon/pkg/adapters/base"
)

// AdapterType - тип СУБД в фабрике
const AdapterType = "postgres"

// Compile-time check
var _ adapters.Dialect = (*Dialect)(nil)

// Регистрация диалекта в глобальной фабрике
func init() {
	adapters.Register(AdapterType, func() adapters.Dialect {
		return New()
	})
}

// Dialect - диалект PostgreSQL через pgx/v5/stdlib
type Dialect struct {
	base.StandardDialect
}

// New создает диалект PostgreSQL.
// Таблица без схемы ищется в current_schema().
func New() *Dialect {
	return &Dialect{StandardDialect: base.StandardDialect{
		Type:       AdapterType,
		Driver:     "pgx",
		Bind:       sqlx.DOLLAR,
		OpenQuote:  `"`,
		CloseQuote: `"`,
		// Квотированные идентификаторы в PostgreSQL регистрозависимы
		Sensitive:       true,
		Params:          65535,
		Types:           DefaultTypes(),
		AddColumnFormat: "ALTER TABLE %s ADD COLUMN %s %s NULL",
		ExistsQuery: `
			SELECT COUNT(*)
			FROM information_schema.tables
			WHERE table_schema = COALESCE(NULLIF(?, ''), current_schema())
			  AND table_name = ?`,
		ColumnsQuery: `
			SELECT column_name
			FROM information_schema.columns
			WHERE table_schema = COALESCE(NULLIF(?, ''), current_schema())
			  AND table_name = ?
			ORDER BY ordinal_position`,
		TableArgs: func(table string) []any {
			schema, name := adapters.SplitTable(table)
			return []any{schema, name}
		},
	}}
}
