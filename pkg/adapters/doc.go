/*
Package adapters предоставляет соединение с СУБД для движка upsert.

# Архитектура

	┌─────────────────────────────────────────┐
	│    Upsert engine (pkg/upsert)           │
	└─────────────────┬───────────────────────┘
	                  │ adapters.Conn
	┌─────────────────▼───────────────────────┐
	│  SQLConn (sqlx, одно соединение,        │  ← pkg/adapters/conn.go
	│  неявная транзакция до Commit)          │
	└─────────────────┬───────────────────────┘
	                  │ adapters.Dialect
	   ┌──────┬───────┼────────┬────────┐
	   │      │       │        │        │
	 sqlite postgres mysql   mssql    odbc     ← подпакеты, регистрация в init()

Диалект отвечает за квотирование идентификаторов, плейсхолдеры,
запросы метаданных (существование таблицы, список колонок) и
типы колонок по умолчанию.

# Использование

	import (
	    "github.com/ruslano69/dbcon/pkg/adapters"
	    _ "github.com/ruslano69/dbcon/pkg/adapters/sqlite"
	)

	conn, err := adapters.New(ctx, adapters.Config{Type: "sqlite", DSN: "file:app.db"})
	if err != nil {
	    return err
	}
	defer conn.Close(ctx)
*/
package adapters
