package upsert

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ruslano69/dbcon/pkg/adapters"
	"github.com/ruslano69/dbcon/pkg/record"
)

// Построение SQL. Значения всегда передаются параметрами '?', которые
// соединение переписывает под плейсхолдеры своего драйвера. В текст
// интерполируются только проверенные имена таблицы и колонок.

func quoteColumns(d adapters.Dialect, columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = d.QuoteIdentifier(c)
	}
	return out
}

// createTableSQL - CREATE TABLE с колонками в порядке записи
func createTableSQL(d adapters.Dialect, table string, typed TypedRecord) string {
	defs := make([]string, len(typed))
	for i, c := range typed {
		defs[i] = d.QuoteIdentifier(c.Column) + " " + c.Type
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", adapters.QuoteTable(d, table), strings.Join(defs, ", "))
}

// insertSQL - INSERT на rows строк: VALUES (?, ?), (?, ?)
func insertSQL(d adapters.Dialect, table string, columns []string, rows int) string {
	group := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	groups := make([]string, rows)
	for i := range groups {
		groups[i] = group
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		adapters.QuoteTable(d, table),
		strings.Join(quoteColumns(d, columns), ", "),
		strings.Join(groups, ", "))
}

// updateSQL - UPDATE по ключу; последний параметр - значение ключа
func updateSQL(d adapters.Dialect, table string, columns []string, key string) string {
	sets := make([]string, len(columns))
	for i, c := range quoteColumns(d, columns) {
		sets[i] = c + " = ?"
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		adapters.QuoteTable(d, table), strings.Join(sets, ", "), d.QuoteIdentifier(key))
}

// selectKeysSQL - проекция ключевой колонки
func selectKeysSQL(d adapters.Dialect, table, key string) string {
	return fmt.Sprintf("SELECT %s FROM %s", d.QuoteIdentifier(key), adapters.QuoteTable(d, table))
}

// rowsPerStatement - сколько строк помещается в один оператор
func rowsPerStatement(columns, maxParams int) int {
	if columns <= 0 {
		return 1
	}
	n := maxParams / columns
	if n < 1 {
		return 1
	}
	return n
}

// bindValue приводит значение к виду параметра по классу колонки.
// Пустая строка и nil передаются как NULL.
func bindValue(v any, class record.Tag) any {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok && s == "" {
		return nil
	}

	switch class {
	case record.TagBoolean:
		if b, ok := truthy(v); ok {
			return b
		}
	case record.TagInteger:
		switch x := v.(type) {
		case int64:
			return x
		case bool:
			if x {
				return int64(1)
			}
			return int64(0)
		case float64:
			if x == math.Trunc(x) {
				return int64(x)
			}
		case string:
			if i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
				return i
			}
		}
	case record.TagDecimal:
		switch x := v.(type) {
		case int64, float64:
			return x
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
				return f
			}
		}
	case record.TagDatetime:
		if t, ok := parseTime(v); ok {
			return t.Format(record.DatetimeLayout)
		}
	case record.TagText:
		if s, ok := v.(string); ok {
			return s
		}
		return record.Scalar(v).String()
	}
	return v
}

// truthy - значение для колонки класса boolean
func truthy(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case int64:
		return x != 0, true
	case float64:
		return x != 0, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		return b, err == nil
	}
	return false, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	record.DatetimeLayout,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// Literal возвращает литеральное SQL представление значения.
// Используется только для журналов и DLQ: NULL для nil и пустой строки,
// 0/1 для boolean, число без кавычек для integer, иначе строка N'...'
// в которой апостроф заменен на ’.
func Literal(v any, class record.Tag) string {
	b := bindValue(v, class)
	switch x := b.(type) {
	case nil:
		return "NULL"
	case bool:
		if x {
			return "1"
		}
		return "0"
	case int64:
		if class == record.TagInteger || class == record.TagBoolean || class == record.TagDecimal {
			return strconv.FormatInt(x, 10)
		}
	case float64:
		if class == record.TagDecimal {
			return strconv.FormatFloat(x, 'g', -1, 64)
		}
	}
	return "N'" + strings.ReplaceAll(record.Scalar(b).String(), "'", "’") + "'"
}

// inline подставляет литералы вместо параметров '?'.
// Имена в тексте проверены и '?' не содержат.
func inline(query string, literals []string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' && n < len(literals) {
			b.WriteString(literals[n])
			n++
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
