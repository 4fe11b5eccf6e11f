package sqlite

import "github.com/ruslano69/dbcon/pkg/record"

// DefaultTypes возвращает типы колонок SQLite по тегу значения.
// SQLite использует динамическую типизацию: имя типа задает только affinity,
// поэтому BOOLEAN и DATETIME сохраняются как объявленные имена.
func DefaultTypes() map[record.Tag]string {
	return map[record.Tag]string{
		record.TagInteger:  "INTEGER",
		record.TagBoolean:  "BOOLEAN",
		record.TagText:     "TEXT",
		record.TagDecimal:  "REAL",
		record.TagDatetime: "DATETIME",
	}
}
