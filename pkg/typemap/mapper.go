// Package typemap определяет SQL-тип колонки по имени и тегу значения.
//
// Порядок разрешения: точное имя (direct) → префикс (prefix) → суффикс (suffix)
// → тег значения (typed). Первое совпадение побеждает. Неявного типа по
// умолчанию нет: неразрешенная колонка - ошибка конфигурации.
package typemap

import (
	"fmt"
	"strings"

	"github.com/ruslano69/dbcon/pkg/record"
)

// Config - конфигурация маппера
type Config struct {
	Direct map[string]string `yaml:"direct,omitempty"`
	Prefix Rules             `yaml:"prefix,omitempty"`
	Suffix Rules             `yaml:"suffix,omitempty"`
	// Typed - тег значения (integer, boolean, text, decimal, datetime) → SQL тип
	Typed map[string]string `yaml:"typed,omitempty"`
}

// Mapper - неизменяемая цепочка разрешения типов
type Mapper struct {
	direct map[string]string
	prefix Rules
	suffix Rules
	typed  map[record.Tag]string
}

// New создает маппер из конфигурации.
// defaults используется для уровня typed, если конфигурация его не задает.
func New(cfg Config, defaults map[record.Tag]string) (*Mapper, error) {
	m := &Mapper{
		direct: make(map[string]string, len(cfg.Direct)),
		typed:  make(map[record.Tag]string),
	}

	for name, sqlType := range cfg.Direct {
		if err := ValidateType(sqlType); err != nil {
			return nil, fmt.Errorf("direct %q: %w", name, err)
		}
		m.direct[name] = sqlType
	}
	for _, r := range cfg.Prefix {
		if err := ValidateType(r.Type); err != nil {
			return nil, fmt.Errorf("prefix %q: %w", r.Pattern, err)
		}
	}
	for _, r := range cfg.Suffix {
		if err := ValidateType(r.Type); err != nil {
			return nil, fmt.Errorf("suffix %q: %w", r.Pattern, err)
		}
	}
	m.prefix = append(Rules(nil), cfg.Prefix...)
	m.suffix = append(Rules(nil), cfg.Suffix...)

	if len(cfg.Typed) == 0 {
		for tag, sqlType := range defaults {
			m.typed[tag] = sqlType
		}
		return m, nil
	}

	for name, sqlType := range cfg.Typed {
		tag, err := record.ParseTag(name)
		if err != nil {
			return nil, fmt.Errorf("typed: %w", err)
		}
		if err := ValidateType(sqlType); err != nil {
			return nil, fmt.Errorf("typed %q: %w", name, err)
		}
		m.typed[tag] = sqlType
	}
	return m, nil
}

// MustNew - как New, но паникует при ошибке (для статических конфигураций)
func MustNew(cfg Config, defaults map[record.Tag]string) *Mapper {
	m, err := New(cfg, defaults)
	if err != nil {
		panic(err)
	}
	return m
}

// Map возвращает SQL тип колонки; false - тип не разрешен ни одним уровнем
func (m *Mapper) Map(column string, tag record.Tag) (string, bool) {
	if t, ok := m.direct[column]; ok {
		return t, true
	}
	for _, r := range m.prefix {
		if strings.HasPrefix(column, r.Pattern) {
			return r.Type, true
		}
	}
	for _, r := range m.suffix {
		if strings.HasSuffix(column, r.Pattern) {
			return r.Type, true
		}
	}
	if t, ok := m.typed[tag]; ok {
		return t, true
	}
	return "", false
}

// ValidateType проверяет строку SQL типа по консервативному набору символов:
// буквы, цифры, пробел, скобки и запятая (varchar(max), decimal(18, 4)).
func ValidateType(sqlType string) error {
	if strings.TrimSpace(sqlType) == "" {
		return fmt.Errorf("empty SQL type")
	}
	for _, r := range sqlType {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == ' ', r == '(', r == ')', r == ',', r == '_':
		default:
			return fmt.Errorf("invalid character %q in SQL type %q", r, sqlType)
		}
	}
	return nil
}

// Classify определяет класс значения по SQL типу колонки.
// Класс управляет приведением параметров и литеральным представлением.
func Classify(sqlType string) record.Tag {
	t := strings.ToLower(strings.TrimSpace(sqlType))
	switch {
	case t == "":
		return record.TagUnknown
	case t == "bit", strings.Contains(t, "bool"), t == "tinyint(1)":
		return record.TagBoolean
	case strings.Contains(t, "int"):
		return record.TagInteger
	case strings.Contains(t, "date"), strings.Contains(t, "time"):
		return record.TagDatetime
	case strings.Contains(t, "decimal"), strings.Contains(t, "numeric"),
		strings.Contains(t, "float"), strings.Contains(t, "real"),
		strings.Contains(t, "double"), strings.Contains(t, "money"):
		return record.TagDecimal
	default:
		return record.TagText
	}
}
