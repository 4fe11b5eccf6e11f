package mysql

import (
	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/ruslano69/dbcon/pkg/adapters"
	"github.com/ruslano69/dbcon/pkg/adapters/base"
)

// AdapterType - тип СУБД в фабрике
const AdapterType = "mysql"

// Compile-time check
var _ adapters.Dialect = (*Dialect)(nil)

// Регистрация диалекта в глобальной фабрике
func init() {
	adapters.Register(AdapterType, func() adapters.Dialect {
		return New()
	})
}

// Dialect - диалект MySQL / MariaDB
type Dialect struct {
	base.StandardDialect
}

// New создает диалект MySQL.
// Таблица без схемы ищется в DATABASE().
func New() *Dialect {
	return &Dialect{StandardDialect: base.StandardDialect{
		Type:            AdapterType,
		Driver:          "mysql",
		Bind:            sqlx.QUESTION,
		OpenQuote:       "`",
		CloseQuote:      "`",
		Sensitive:       false,
		Params:          65535,
		Types:           DefaultTypes(),
		AddColumnFormat: "ALTER TABLE %s ADD COLUMN %s %s NULL",
		ExistsQuery: `
			SELECT COUNT(*)
			FROM information_schema.tables
			WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE())
			  AND table_name = ?`,
		ColumnsQuery: `
			SELECT column_name
			FROM information_schema.columns
			WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE())
			  AND table_name = ?
			ORDER BY ordinal_position`,
		TableArgs: func(table string) []any {
			schema, name := adapters.SplitTable(table)
			return []any{schema, name}
		},
	}}
}
