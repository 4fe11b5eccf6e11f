// Package base предоставляет общую реализацию SQL диалекта для всех адаптеров БД
//
// Диалекты (SQLite, PostgreSQL, MySQL, MS SQL Server, ODBC) отличаются только
// квотированием идентификаторов, плейсхолдерами, запросами метаданных и
// таблицами типов по умолчанию. StandardDialect собирает эти различия в поля,
// а подпакеты заполняют их и регистрируют диалект в фабрике.
//
// # Использование
//
//	func New() *Dialect {
//	    return &Dialect{StandardDialect: base.StandardDialect{
//	        Type:         "sqlite",
//	        Driver:       "sqlite",
//	        Bind:         sqlx.QUESTION,
//	        OpenQuote:    `"`,
//	        CloseQuote:   `"`,
//	        ExistsQuery:  "SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?",
//	        ColumnsQuery: "SELECT name FROM pragma_table_info(?)",
//	    }}
//	}
package base
