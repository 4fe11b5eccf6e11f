package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrNotObject возвращается, когда элемент верхнего уровня не является JSON-объектом
var ErrNotObject = errors.New("record must be a JSON object")

// DecodeJSON разбирает один JSON-объект с сохранением порядка ключей.
// Целые числа получают тег integer, дробные - decimal.
func DecodeJSON(data []byte) (*Record, error) {
	dec := NewDecoder(bytes.NewReader(data))
	rec, err := dec.Next()
	if err == io.EOF {
		return nil, fmt.Errorf("decode record: %w", io.ErrUnexpectedEOF)
	}
	return rec, err
}

// DecodeJSONMany разбирает объект или массив объектов
func DecodeJSONMany(data []byte) ([]*Record, error) {
	dec := NewDecoder(bytes.NewReader(data))
	var out []*Record
	for {
		rec, err := dec.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

// Decoder - потоковый разбор записей: JSON Lines, последовательность объектов
// или массивы объектов верхнего уровня.
type Decoder struct {
	dec     *json.Decoder
	inArray bool
}

// NewDecoder создает декодер поверх r
func NewDecoder(r io.Reader) *Decoder {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return &Decoder{dec: dec}
}

// Next возвращает следующую запись или io.EOF
func (d *Decoder) Next() (*Record, error) {
	for {
		if d.inArray {
			if d.dec.More() {
				tok, err := d.dec.Token()
				if err != nil {
					return nil, fmt.Errorf("decode record: %w", err)
				}
				if delim, ok := tok.(json.Delim); !ok || delim != '{' {
					return nil, ErrNotObject
				}
				return decodeObject(d.dec)
			}
			// закрывающая ']'
			if _, err := d.dec.Token(); err != nil {
				return nil, fmt.Errorf("decode record: %w", err)
			}
			d.inArray = false
			continue
		}

		tok, err := d.dec.Token()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		delim, ok := tok.(json.Delim)
		if !ok {
			return nil, ErrNotObject
		}
		switch delim {
		case '{':
			return decodeObject(d.dec)
		case '[':
			d.inArray = true
		default:
			return nil, ErrNotObject
		}
	}
}

// decodeObject читает тело объекта после открывающей '{'
func decodeObject(dec *json.Decoder) (*Record, error) {
	rec := New()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("decode record: unexpected token %v", tok)
		}
		v, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		rec.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, fmt.Errorf("decode record: %w", err)
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			r, err := decodeObject(dec)
			if err != nil {
				return Value{}, err
			}
			return Mapping(r), nil
		case '[':
			items := []Value{}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, fmt.Errorf("decode record: %w", err)
			}
			return List(items...), nil
		}
		return Value{}, fmt.Errorf("decode record: unexpected delimiter %v", t)
	default:
		return Scalar(t), nil
	}
}

// MarshalJSON сериализует запись с сохранением порядка ключей
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := r.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON разбирает запись с сохранением порядка ключей
func (r *Record) UnmarshalJSON(data []byte) error {
	parsed, err := DecodeJSON(data)
	if err != nil {
		return err
	}
	*r = *parsed
	return nil
}

func (r *Record) writeJSON(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	for i, k := range r.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		if err := r.values[k].writeJSON(buf); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// MarshalJSON сериализует значение
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) writeJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindMapping:
		return v.fields.writeJSON(buf)
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	}

	scalar := v.scalar
	if t, ok := scalar.(time.Time); ok {
		scalar = t.Format(time.RFC3339Nano)
	}
	data, err := json.Marshal(scalar)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}
