package mysql

import "github.com/ruslano69/dbcon/pkg/record"

// DefaultTypes возвращает типы колонок MySQL по тегу значения.
// TINYINT(1) - принятое в MySQL представление BOOLEAN.
func DefaultTypes() map[record.Tag]string {
	return map[record.Tag]string{
		record.TagInteger:  "BIGINT",
		record.TagBoolean:  "TINYINT(1)",
		record.TagText:     "TEXT",
		record.TagDecimal:  "DOUBLE",
		record.TagDatetime: "DATETIME",
	}
}
