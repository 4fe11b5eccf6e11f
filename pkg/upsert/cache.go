package upsert

import (
	"context"
	"fmt"

	"github.com/ruslano69/dbcon/pkg/adapters"
	"github.com/ruslano69/dbcon/pkg/record"
)

// SchemaCache - колонки целевой таблицы и множество значений ключа.
// Кэш не устаревает по времени: после внешних изменений таблицы вызывающий
// код сам обновляет его через Refresh и RefreshKeys.
type SchemaCache struct {
	conn      adapters.Conn
	dialect   adapters.Dialect
	table     string
	keyColumn string

	exists  bool
	columns map[string]string // folded → имя в таблице
	order   []string
	keys    map[string]struct{}
}

// NewSchemaCache создает пустой кэш для таблицы
func NewSchemaCache(conn adapters.Conn, table, keyColumn string) *SchemaCache {
	return &SchemaCache{
		conn:      conn,
		dialect:   conn.Dialect(),
		table:     table,
		keyColumn: keyColumn,
		columns:   make(map[string]string),
		keys:      make(map[string]struct{}),
	}
}

// Refresh заменяет набор колонок прочитанным из метаданных таблицы
func (c *SchemaCache) Refresh(ctx context.Context) error {
	exists, err := c.conn.TableExists(ctx, c.table)
	if err != nil {
		return fmt.Errorf("failed to check table %s: %w", c.table, err)
	}

	var columns []string
	if exists {
		columns, err = c.conn.ListColumns(ctx, c.table)
		if err != nil {
			return fmt.Errorf("failed to read columns of %s: %w", c.table, err)
		}
	}

	c.exists = exists
	c.columns = make(map[string]string, len(columns))
	c.order = c.order[:0]
	for _, name := range columns {
		c.AddColumn(name)
	}
	return nil
}

// RefreshKeys перечитывает значения ключевой колонки.
// Если таблицы или ключевой колонки еще нет, множество пусто.
func (c *SchemaCache) RefreshKeys(ctx context.Context) error {
	keys := make(map[string]struct{})
	if !c.exists || !c.HasColumn(c.keyColumn) {
		c.keys = keys
		return nil
	}

	rows, err := c.conn.Query(ctx, selectKeysSQL(c.dialect, c.table, c.column(c.keyColumn)))
	if err != nil {
		return fmt.Errorf("failed to read keys of %s: %w", c.table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return fmt.Errorf("failed to scan key: %w", err)
		}
		if v == nil {
			continue
		}
		keys[record.KeyString(v)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read keys of %s: %w", c.table, err)
	}

	c.keys = keys
	return nil
}

// Exists - существует ли таблица
func (c *SchemaCache) Exists() bool { return c.exists }

// HasColumn - есть ли колонка (с учетом регистрозависимости СУБД)
func (c *SchemaCache) HasColumn(name string) bool {
	_, ok := c.columns[adapters.FoldName(c.dialect, name)]
	return ok
}

// HasKey - есть ли значение ключа в канонической форме record.KeyString
func (c *SchemaCache) HasKey(key string) bool {
	_, ok := c.keys[key]
	return ok
}

// AddColumn добавляет колонку в кэш без обращения к БД
func (c *SchemaCache) AddColumn(name string) {
	folded := adapters.FoldName(c.dialect, name)
	if _, ok := c.columns[folded]; ok {
		return
	}
	c.columns[folded] = name
	c.order = append(c.order, name)
	c.exists = true
}

// AddKey добавляет значение ключа в кэш без обращения к БД
func (c *SchemaCache) AddKey(key string) {
	c.keys[key] = struct{}{}
}

// Columns возвращает колонки в порядке таблицы
func (c *SchemaCache) Columns() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// KeyCount - размер множества ключей
func (c *SchemaCache) KeyCount() int { return len(c.keys) }

// column возвращает имя колонки в том виде, в котором оно есть в таблице
func (c *SchemaCache) column(name string) string {
	if actual, ok := c.columns[adapters.FoldName(c.dialect, name)]; ok {
		return actual
	}
	return name
}
