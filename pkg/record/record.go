package record

import (
	"math"
	"sort"
	"strconv"
	"time"
)

// Record - упорядоченное отображение имя → значение.
// Порядок ключей - порядок вставки; он сохраняется при сопоставлении
// колонок с позиционными параметрами запросов.
type Record struct {
	keys   []string
	values map[string]Value
}

// New создает пустую запись
func New() *Record {
	return &Record{values: make(map[string]Value)}
}

// Set устанавливает значение. Существующий ключ сохраняет свою позицию.
func (r *Record) Set(key string, v Value) *Record {
	if r.values == nil {
		r.values = make(map[string]Value)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
	return r
}

// SetScalar - сокращение для Set(key, Scalar(v))
func (r *Record) SetScalar(key string, v any) *Record {
	return r.Set(key, Scalar(v))
}

// Get возвращает значение по ключу
func (r *Record) Get(key string) (Value, bool) {
	if r == nil {
		return Value{}, false
	}
	v, ok := r.values[key]
	return v, ok
}

// Has проверяет наличие ключа
func (r *Record) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// Delete удаляет ключ
func (r *Record) Delete(key string) {
	if _, ok := r.values[key]; !ok {
		return
	}
	delete(r.values, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i:i], r.keys[i+1:]...)
			break
		}
	}
}

// Keys возвращает копию списка ключей в порядке вставки
func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len возвращает количество полей
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Range обходит поля в порядке вставки; fn возвращает false для остановки
func (r *Record) Range(fn func(key string, v Value) bool) {
	if r == nil {
		return
	}
	for _, k := range r.keys {
		if !fn(k, r.values[k]) {
			return
		}
	}
}

// Clone возвращает поверхностную копию записи
func (r *Record) Clone() *Record {
	out := &Record{
		keys:   make([]string, len(r.keys)),
		values: make(map[string]Value, len(r.values)),
	}
	copy(out.keys, r.keys)
	for k, v := range r.values {
		out.values[k] = v
	}
	return out
}

// Equal сравнивает записи с учетом порядка ключей
func (r *Record) Equal(o *Record) bool {
	if r.Len() != o.Len() {
		return false
	}
	for i, k := range r.keys {
		if o.keys[i] != k {
			return false
		}
		if !r.values[k].Equal(o.values[k]) {
			return false
		}
	}
	return true
}

// FromMap строит запись из Go-отображения.
// Порядок ключей map не определен, поэтому ключи сортируются.
func FromMap(m map[string]any) *Record {
	r := New()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r.Set(k, valueOf(m[k]))
	}
	return r
}

func valueOf(v any) Value {
	switch x := v.(type) {
	case Value:
		return x
	case *Record:
		return Mapping(x)
	case map[string]any:
		return Mapping(FromMap(x))
	case []map[string]any:
		items := make([]Value, len(x))
		for i, item := range x {
			items[i] = Mapping(FromMap(item))
		}
		return List(items...)
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			items[i] = valueOf(item)
		}
		return List(items...)
	default:
		return Scalar(v)
	}
}

// KeyString возвращает каноническое строковое представление значения ключа.
// Драйверы возвращают ключи как int64, []byte, string или float64 -
// каноническая форма делает их сравнимыми со значениями из записей.
func KeyString(v any) string {
	switch x := normalizeScalar(v).(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case time.Time:
		return x.Format(DatetimeLayout)
	default:
		return Scalar(x).String()
	}
}

// DatetimeLayout - текстовый формат временных меток при передаче в БД
const DatetimeLayout = "2006-01-02 15:04:05"
