// Package processors - преобразование и проверка записей перед загрузкой:
// маскирование, нормализация и валидация полей.
//
// Поле адресуется ключом записи; путь через точку ("customer.email")
// спускается во вложенные записи. Обрабатываются только скалярные значения,
// NULL пропускается.
package processors

import (
	"context"
	"fmt"
	"strings"

	"github.com/ruslano69/dbcon/pkg/record"
)

// Processor обрабатывает запись перед Upsert. Запись может изменяться на месте.
type Processor interface {
	// Name возвращает имя процессора
	Name() string

	// Process возвращает обработанную запись или ошибку (*ValidationError
	// для записи, не прошедшей проверку)
	Process(ctx context.Context, rec *record.Record) (*record.Record, error)
}

// Config содержит конфигурацию процессора
type Config struct {
	Type   string         `yaml:"type"`   // field_masker, field_normalizer, field_validator
	Params map[string]any `yaml:"params"` // Параметры процессора
}

// ValidationError - значение поля не прошло проверку или нормализацию
type ValidationError struct {
	Processor string
	Field     string
	Rule      string
	Value     string
	Msg       string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: field %q (%s): %s", e.Processor, e.Field, e.Rule, e.Msg)
	}
	return fmt.Sprintf("%s: field %q = %q (%s): %s", e.Processor, e.Field, e.Value, e.Rule, e.Msg)
}

// lookup находит запись-владельца поля по пути через точку
func lookup(rec *record.Record, path string) (*record.Record, string, bool) {
	parts := strings.Split(path, ".")
	owner := rec
	for _, p := range parts[:len(parts)-1] {
		v, ok := owner.Get(p)
		if !ok || v.Kind() != record.KindMapping {
			return nil, "", false
		}
		owner = v.Record()
	}
	key := parts[len(parts)-1]
	if !owner.Has(key) {
		return nil, "", false
	}
	return owner, key, true
}

// scalarText возвращает текст скалярного не-NULL значения поля
func scalarText(rec *record.Record, path string) (owner *record.Record, key, text string, ok bool) {
	owner, key, ok = lookup(rec, path)
	if !ok {
		return nil, "", "", false
	}
	v, _ := owner.Get(key)
	if v.Kind() != record.KindScalar || v.IsNull() {
		return nil, "", "", false
	}
	return owner, key, v.String(), true
}

// stringParams читает params["fields"] как отображение поле -> строка
func stringParams(params map[string]any) (map[string]string, error) {
	fields, ok := params["fields"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'fields' parameter")
	}
	out := make(map[string]string, len(fields))
	for name, v := range fields {
		out[name] = fmt.Sprintf("%v", v)
	}
	return out, nil
}
