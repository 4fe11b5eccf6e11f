package upsert

import (
	"strings"

	"github.com/ruslano69/dbcon/pkg/adapters"
	"github.com/ruslano69/dbcon/pkg/record"
	"github.com/ruslano69/dbcon/pkg/typemap"
)

// TypedColumn - одно поле записи после определения типа.
// Type пуст, если маппер не смог разрешить тип.
type TypedColumn struct {
	Column string
	Type   string
	Tag    record.Tag
	Value  any
}

// Class - класс значения по SQL типу колонки
func (c TypedColumn) Class() record.Tag {
	if c.Type == "" {
		return c.Tag
	}
	return typemap.Classify(c.Type)
}

// TypedRecord - колонки одной записи в порядке исходной записи
type TypedRecord []TypedColumn

// Columns возвращает имена колонок
func (t TypedRecord) Columns() []string {
	out := make([]string, len(t))
	for i, c := range t {
		out[i] = c.Column
	}
	return out
}

// Index возвращает позицию колонки или -1
func (t TypedRecord) Index(column string) int {
	for i, c := range t {
		if c.Column == column {
			return i
		}
	}
	return -1
}

// Record собирает плоскую запись из значений колонок
func (t TypedRecord) Record() *record.Record {
	rec := record.New()
	for _, c := range t {
		rec.SetScalar(c.Column, c.Value)
	}
	return rec
}

// CompositeKey - политика составного ключа: значения Fields, приведенные к
// строке и соединенные Separator, образуют колонку Column
type CompositeKey struct {
	Column    string   `yaml:"column"`
	Fields    []string `yaml:"fields"`
	Separator string   `yaml:"separator,omitempty"`
}

// DefaultCompositeSeparator - разделитель составного ключа по умолчанию
const DefaultCompositeSeparator = "+"

func (c *CompositeKey) separator() string {
	if c.Separator == "" {
		return DefaultCompositeSeparator
	}
	return c.Separator
}

// Join строит значение ключа в порядке Fields.
// lookup возвращает значение поля и признак его наличия.
func (c *CompositeKey) Join(lookup func(field string) (any, bool)) (string, error) {
	parts := make([]string, len(c.Fields))
	for i, field := range c.Fields {
		v, ok := lookup(field)
		if !ok || v == nil {
			return "", &MissingKeyError{Column: field, Row: -1}
		}
		parts[i] = record.KeyString(v)
	}
	return strings.Join(parts, c.separator()), nil
}

// typeRecord определяет типы колонок плоской записи.
// NULL значения пропускаются, если keepNulls не задан.
func typeRecord(flat *record.Record, mapper *typemap.Mapper, keepNulls bool) (TypedRecord, error) {
	typed := make(TypedRecord, 0, flat.Len())
	var err error
	flat.Range(func(column string, v record.Value) bool {
		if v.IsNull() && !keepNulls {
			return true
		}
		if vErr := adapters.ValidateIdentifier(column); vErr != nil {
			err = &InvalidColumnError{Column: column, Err: vErr}
			return false
		}
		tag := v.Tag()
		sqlType, _ := mapper.Map(column, tag)
		value := v.Interface()
		if v.Kind() != record.KindScalar {
			value = v.String()
		}
		typed = append(typed, TypedColumn{Column: column, Type: sqlType, Tag: tag, Value: value})
		return true
	})
	if err != nil {
		return nil, err
	}
	return typed, nil
}

// withComposite добавляет (или заменяет) колонку составного ключа
func withComposite(typed TypedRecord, key *CompositeKey, mapper *typemap.Mapper) (TypedRecord, error) {
	value, err := key.Join(func(field string) (any, bool) {
		i := typed.Index(field)
		if i < 0 {
			return nil, false
		}
		return typed[i].Value, true
	})
	if err != nil {
		return nil, err
	}

	sqlType, _ := mapper.Map(key.Column, record.TagText)
	col := TypedColumn{Column: key.Column, Type: sqlType, Tag: record.TagText, Value: value}
	if i := typed.Index(key.Column); i >= 0 {
		typed[i] = col
		return typed, nil
	}
	return append(typed, col), nil
}
