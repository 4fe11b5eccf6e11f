package mssql

import (
	_ "github.com/denisenkom/go-mssqldb" // MS SQL Server driver
	"github.com/jmoiron/sqlx"

	"github.com/ruslano69/dbcon/pkg/adapters"
	"github.com/ruslano69/dbcon/pkg/adapters/base"
)

// AdapterType - database type in the factory
const AdapterType = "mssql"

// DefaultSchema is used when the table name carries no schema.
const DefaultSchema = "dbo"

// Compile-time check
var _ adapters.Dialect = (*Dialect)(nil)

func init() {
	// Register MS SQL Server dialect in factory
	adapters.Register(AdapterType, func() adapters.Dialect {
		return New()
	})
}

// Dialect implements adapters.Dialect for Microsoft SQL Server.
// The "sqlserver" driver takes @p1..@pN placeholders.
type Dialect struct {
	base.StandardDialect
}

// New creates the SQL Server dialect.
// SQL Server limits a statement to 2100 parameters.
func New() *Dialect {
	return &Dialect{StandardDialect: base.StandardDialect{
		Type:            AdapterType,
		Driver:          "sqlserver",
		Bind:            sqlx.AT,
		OpenQuote:       "[",
		CloseQuote:      "]",
		Sensitive:       false,
		Params:          2100,
		Types:           DefaultTypes(),
		AddColumnFormat: "ALTER TABLE %s ADD %s %s NULL",
		ExistsQuery: `
			SELECT COUNT(*)
			FROM INFORMATION_SCHEMA.TABLES
			WHERE TABLE_SCHEMA = ?
			  AND TABLE_NAME = ?
			  AND TABLE_TYPE = 'BASE TABLE'`,
		ColumnsQuery: `
			SELECT COLUMN_NAME
			FROM INFORMATION_SCHEMA.COLUMNS
			WHERE TABLE_SCHEMA = ?
			  AND TABLE_NAME = ?
			ORDER BY ORDINAL_POSITION`,
		TableArgs: TableArgs,
	}}
}

// TableArgs splits "schema.table", defaulting the schema to dbo.
func TableArgs(table string) []any {
	schema, name := adapters.SplitTable(table)
	if schema == "" {
		schema = DefaultSchema
	}
	return []any{schema, name}
}
