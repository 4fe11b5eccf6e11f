package sqlite

import (
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/ruslano69/dbcon/pkg/adapters"
	"github.com/ruslano69/dbcon/pkg/adapters/base"
)

// AdapterType - тип СУБД в фабрике
const AdapterType = "sqlite"

const driverSqlite = "sqlite"

// Compile-time check
var _ adapters.Dialect = (*Dialect)(nil)

// Регистрация диалекта в глобальной фабрике
func init() {
	adapters.Register(AdapterType, func() adapters.Dialect {
		return New()
	})
}

// Dialect - диалект SQLite (modernc.org/sqlite, без cgo)
type Dialect struct {
	base.StandardDialect
}

// New создает диалект SQLite
func New() *Dialect {
	return &Dialect{StandardDialect: base.StandardDialect{
		Type:       AdapterType,
		Driver:     driverSqlite,
		Bind:       sqlx.QUESTION,
		OpenQuote:  `"`,
		CloseQuote: `"`,
		// Имена колонок в SQLite сравниваются без учета регистра
		Sensitive:       false,
		Params:          32766,
		Types:           DefaultTypes(),
		AddColumnFormat: "ALTER TABLE %s ADD COLUMN %s %s",
		ExistsQuery: `
			SELECT COUNT(*)
			FROM sqlite_master
			WHERE type = 'table' AND name = ?`,
		ColumnsQuery: `SELECT name FROM pragma_table_info(?) ORDER BY cid`,
		InitStatements: []string{
			// Ждем освобождения блокировки вместо немедленной ошибки SQLITE_BUSY
			"PRAGMA busy_timeout = 5000",
			// Synchronous NORMAL: fsync только на критичных моментах
			"PRAGMA synchronous = NORMAL",
			// Temp store в памяти
			"PRAGMA temp_store = MEMORY",
		},
	}}
}
