package adapters

import (
	"fmt"
	"strings"
	"unicode"
)

// MaxIdentifierLength - предел длины имени колонки или таблицы
const MaxIdentifierLength = 128

// ValidateIdentifier проверяет имя по разрешенному набору символов:
// буквы, цифры, '_', '.', '-', пробел и '$'.
// Имена интерполируются в текст DDL/DML, поэтому кавычки и ';' недопустимы.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("empty identifier")
	}
	if len(name) > MaxIdentifierLength {
		return fmt.Errorf("identifier %q is longer than %d bytes", name, MaxIdentifierLength)
	}
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
		case r == '_', r == '.', r == '-', r == ' ', r == '$':
		default:
			return fmt.Errorf("invalid character %q in identifier %q", r, name)
		}
	}
	return nil
}

// QuoteTable квотирует имя таблицы, возможно с указанием схемы (schema.table)
func QuoteTable(d Dialect, table string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = d.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

// SplitTable разделяет имя на схему и таблицу
func SplitTable(table string) (schema, name string) {
	if i := strings.LastIndex(table, "."); i >= 0 {
		return table[:i], table[i+1:]
	}
	return "", table
}

// FoldName приводит имя колонки к форме сравнения в кэше
func FoldName(d Dialect, name string) string {
	if d == nil || d.CaseSensitive() {
		return name
	}
	return strings.ToLower(name)
}
