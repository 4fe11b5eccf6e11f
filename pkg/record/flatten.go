package record

// KeySelector - упорядоченный список имен-кандидатов для ключа элементов списка.
// Используется первый кандидат, присутствующий в элементе.
type KeySelector struct {
	candidates []string
}

// Key создает селектор с одним именем
func Key(name string) KeySelector {
	return KeySelector{candidates: []string{name}}
}

// Keys создает селектор с несколькими кандидатами в порядке приоритета
func Keys(names ...string) KeySelector {
	c := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" {
			c = append(c, n)
		}
	}
	return KeySelector{candidates: c}
}

// Candidates возвращает имена-кандидаты
func (s KeySelector) Candidates() []string {
	out := make([]string, len(s.candidates))
	copy(out, s.candidates)
	return out
}

// IsZero - селектор без кандидатов
func (s KeySelector) IsZero() bool {
	return len(s.candidates) == 0
}

func (s KeySelector) choose(r *Record) (string, bool) {
	for _, c := range s.candidates {
		if r.Has(c) {
			return c, true
		}
	}
	return "", false
}

// Flatten преобразует списки записей во вложенные отображения по значению ключа.
//
//	{"a": [{"id": 1, "x": 2}]}  →  {"a": {"1": {"x": 2}}}
//
// Скаляры копируются без изменений, вложенные записи обрабатываются рекурсивно.
// Список, который нельзя однозначно развернуть (пустой, из скаляров, смешанный,
// элементы без ключа или с нескалярным ключом), заменяется его JSON-литералом.
// При повторе ключа побеждает более поздний элемент.
func Flatten(rec *Record, sel KeySelector) *Record {
	out := New()
	rec.Range(func(k string, v Value) bool {
		out.Set(k, flattenValue(v, sel))
		return true
	})
	return out
}

func flattenValue(v Value, sel KeySelector) Value {
	switch v.kind {
	case KindMapping:
		return Mapping(Flatten(v.fields, sel))
	case KindList:
		return flattenList(v, sel)
	default:
		return v
	}
}

func flattenList(list Value, sel KeySelector) Value {
	if len(list.items) == 0 || sel.IsZero() {
		return Scalar(list.String())
	}

	out := New()
	for _, item := range list.items {
		if item.kind != KindMapping {
			return Scalar(list.String())
		}
		name, ok := sel.choose(item.fields)
		if !ok {
			return Scalar(list.String())
		}
		kv, _ := item.fields.Get(name)
		if kv.kind != KindScalar || kv.IsNull() {
			return Scalar(list.String())
		}

		inner := item.fields.Clone()
		inner.Delete(name)
		out.Set(KeyString(kv.scalar), Mapping(Flatten(inner, sel)))
	}
	return Mapping(out)
}

// PathSeparator - разделитель уровней в именах колонок нормализованной записи
const PathSeparator = "."

// Normalize разворачивает вложенные записи в плоскую запись с составными
// именами колонок: {"b": {"2": {"val": 0}}} → {"b.2.val": 0}.
// Оставшиеся списки сохраняются JSON-литералом, пустые вложенные записи
// колонок не порождают.
func Normalize(rec *Record, sep string) *Record {
	if sep == "" {
		sep = PathSeparator
	}
	out := New()
	normalizeInto(out, "", rec, sep)
	return out
}

func normalizeInto(out *Record, prefix string, rec *Record, sep string) {
	rec.Range(func(k string, v Value) bool {
		name := k
		if prefix != "" {
			name = prefix + sep + k
		}
		switch v.kind {
		case KindMapping:
			normalizeInto(out, name, v.fields, sep)
		case KindList:
			out.Set(name, Scalar(v.String()))
		default:
			out.Set(name, v)
		}
		return true
	})
}
