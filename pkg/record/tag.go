package record

import (
	"fmt"
	"strings"
	"time"
)

// Tag - закрытый перечень типов значений, определяемый один раз на входе данных.
// TypeMapper работает только с тегами и не инспектирует значения.
type Tag uint8

const (
	TagUnknown Tag = iota
	TagInteger
	TagBoolean
	TagText
	TagDecimal
	TagDatetime
)

var tagNames = map[Tag]string{
	TagUnknown:  "unknown",
	TagInteger:  "integer",
	TagBoolean:  "boolean",
	TagText:     "text",
	TagDecimal:  "decimal",
	TagDatetime: "datetime",
}

// String - строковое представление тега
func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tag(%d)", t)
}

// ParseTag разбирает имя тега (регистр не важен).
// Принимаются также синонимы pandas-типов: int64, float64, bool, object, datetime64[ns].
func ParseTag(s string) (Tag, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "integer", "int", "int64":
		return TagInteger, nil
	case "boolean", "bool":
		return TagBoolean, nil
	case "text", "string", "object", "str":
		return TagText, nil
	case "decimal", "float", "float64", "real":
		return TagDecimal, nil
	case "datetime", "timestamp", "datetime64[ns]":
		return TagDatetime, nil
	case "unknown", "":
		return TagUnknown, nil
	default:
		return TagUnknown, fmt.Errorf("unknown value tag: %q", s)
	}
}

// MarshalText реализует encoding.TextMarshaler
func (t Tag) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText реализует encoding.TextUnmarshaler
func (t *Tag) UnmarshalText(text []byte) error {
	parsed, err := ParseTag(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TagOf возвращает тег нормализованного скалярного значения
func TagOf(v any) Tag {
	switch v.(type) {
	case nil:
		return TagUnknown
	case bool:
		return TagBoolean
	case int64:
		return TagInteger
	case float64:
		return TagDecimal
	case time.Time:
		return TagDatetime
	case string:
		return TagText
	default:
		return TagUnknown
	}
}

// MergeTags объединяет теги двух значений одной колонки.
// NULL не влияет на результат, integer+decimal дает decimal,
// любое другое расхождение сводится к text.
func MergeTags(a, b Tag) Tag {
	switch {
	case a == TagUnknown:
		return b
	case b == TagUnknown:
		return a
	case a == b:
		return a
	case (a == TagInteger && b == TagDecimal) || (a == TagDecimal && b == TagInteger):
		return TagDecimal
	default:
		return TagText
	}
}
