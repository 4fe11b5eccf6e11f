//go:build windows || cgo

package odbc

import (
	_ "github.com/alexbrainman/odbc" // ODBC driver manager binding
	"github.com/jmoiron/sqlx"

	"github.com/ruslano69/dbcon/pkg/adapters"
	"github.com/ruslano69/dbcon/pkg/adapters/base"
	"github.com/ruslano69/dbcon/pkg/adapters/mssql"
)

// AdapterType - тип СУБД в фабрике
const AdapterType = "odbc"

// Compile-time check
var _ adapters.Dialect = (*Dialect)(nil)

func init() {
	adapters.Register(AdapterType, func() adapters.Dialect {
		return New()
	})
}

// Dialect - ODBC соединение с SQL Server (строка вида
// Driver={ODBC Driver 17 for SQL Server};Server=...;Database=...;).
// Квотирование и типы - как у SQL Server, плейсхолдеры - '?'.
type Dialect struct {
	base.StandardDialect
}

// New создает диалект ODBC
func New() *Dialect {
	return &Dialect{StandardDialect: base.StandardDialect{
		Type:            AdapterType,
		Driver:          "odbc",
		Bind:            sqlx.QUESTION,
		OpenQuote:       "[",
		CloseQuote:      "]",
		Sensitive:       false,
		Params:          2100,
		Types:           mssql.DefaultTypes(),
		AddColumnFormat: "ALTER TABLE %s ADD %s %s NULL",
		ExistsQuery: `
			SELECT COUNT(*)
			FROM INFORMATION_SCHEMA.TABLES
			WHERE TABLE_SCHEMA = ?
			  AND TABLE_NAME = ?`,
		ColumnsQuery: `
			SELECT COLUMN_NAME
			FROM INFORMATION_SCHEMA.COLUMNS
			WHERE TABLE_SCHEMA = ?
			  AND TABLE_NAME = ?
			ORDER BY ORDINAL_POSITION`,
		TableArgs: mssql.TableArgs,
	}}
}
