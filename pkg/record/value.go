package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Kind - вид значения в дереве записи
type Kind uint8

const (
	// KindScalar - скалярное значение (nil, bool, int64, float64, string, time.Time)
	KindScalar Kind = iota

	// KindMapping - вложенная запись
	KindMapping

	// KindList - список значений
	KindList
)

// String - строковое представление вида
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindMapping:
		return "mapping"
	case KindList:
		return "list"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Value - узел дерева записи: скаляр, вложенная запись или список.
// Нулевое значение Value - скаляр NULL.
type Value struct {
	kind   Kind
	scalar any
	fields *Record
	items  []Value
}

// Null возвращает скаляр NULL
func Null() Value {
	return Value{}
}

// Scalar создает скалярное значение.
// Целые типы приводятся к int64, вещественные к float64, []byte к string,
// json.Number к int64/float64. Прочие типы сохраняются в текстовом виде.
func Scalar(v any) Value {
	return Value{kind: KindScalar, scalar: normalizeScalar(v)}
}

// Mapping создает значение-запись
func Mapping(r *Record) Value {
	if r == nil {
		r = New()
	}
	return Value{kind: KindMapping, fields: r}
}

// List создает значение-список
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, items: items}
}

// Kind возвращает вид значения
func (v Value) Kind() Kind {
	return v.kind
}

// Interface возвращает скалярное значение (nil для записей и списков)
func (v Value) Interface() any {
	if v.kind != KindScalar {
		return nil
	}
	return v.scalar
}

// Record возвращает вложенную запись (nil если значение не запись)
func (v Value) Record() *Record {
	if v.kind != KindMapping {
		return nil
	}
	return v.fields
}

// Items возвращает элементы списка
func (v Value) Items() []Value {
	if v.kind != KindList {
		return nil
	}
	return v.items
}

// IsNull проверяет скаляр на NULL
func (v Value) IsNull() bool {
	return v.kind == KindScalar && v.scalar == nil
}

// Tag возвращает тег типа значения
func (v Value) Tag() Tag {
	switch v.kind {
	case KindScalar:
		return TagOf(v.scalar)
	default:
		// Вложенные структуры после нормализации хранятся как текст
		return TagText
	}
}

// Equal сравнивает два значения структурно
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindScalar:
		if t, ok := v.scalar.(time.Time); ok {
			ot, ok := o.scalar.(time.Time)
			return ok && t.Equal(ot)
		}
		return v.scalar == o.scalar
	case KindMapping:
		return v.fields.Equal(o.fields)
	case KindList:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// String возвращает литеральное представление значения (JSON для записей и списков)
func (v Value) String() string {
	if v.kind == KindScalar {
		switch s := v.scalar.(type) {
		case nil:
			return ""
		case string:
			return s
		case time.Time:
			return s.Format(time.RFC3339Nano)
		default:
			return fmt.Sprint(s)
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		// NaN и Inf не кодируются в JSON: пишем их текстом, сохраняя структуру
		var buf bytes.Buffer
		v.writeLoose(&buf)
		return buf.String()
	}
	return string(data)
}

// writeLoose - как writeJSON, но скаляр без JSON представления
// записывается через fmt.Sprint
func (v Value) writeLoose(buf *bytes.Buffer) {
	switch v.kind {
	case KindMapping:
		buf.WriteByte('{')
		for i, k := range v.fields.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			v.fields.values[k].writeLoose(buf)
		}
		buf.WriteByte('}')
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			item.writeLoose(buf)
		}
		buf.WriteByte(']')
	default:
		if err := v.writeJSON(buf); err != nil {
			buf.WriteString(fmt.Sprint(v.scalar))
		}
	}
}

// normalizeScalar приводит значение к одному из поддерживаемых скалярных типов
func normalizeScalar(v any) any {
	switch x := v.(type) {
	case nil, bool, int64, float64, string, time.Time:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case *time.Time:
		if x == nil {
			return nil
		}
		return *x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
