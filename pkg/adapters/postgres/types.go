package postgres

import "github.com/ruslano69/dbcon/pkg/record"

// DefaultTypes возвращает типы колонок PostgreSQL по тегу значения
func DefaultTypes() map[record.Tag]string {
	return map[record.Tag]string{
		record.TagInteger:  "BIGINT",
		record.TagBoolean:  "BOOLEAN",
		record.TagText:     "TEXT",
		record.TagDecimal:  "DOUBLE PRECISION",
		record.TagDatetime: "TIMESTAMP",
	}
}
