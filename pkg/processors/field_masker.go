package processors

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ruslano69/dbcon/pkg/record"
)

// MaskPattern определяет тип маскирования
type MaskPattern string

const (
	// MaskPartial маскирует среднюю часть (email: j***@example.com)
	MaskPartial MaskPattern = "partial"
	// MaskMiddle маскирует середину (phone: +1 (555) XXX-X567)
	MaskMiddle MaskPattern = "middle"
	// MaskStars заменяет все на звездочки (**** *****)
	MaskStars MaskPattern = "stars"
	// MaskFirst2Last2 показывает только первые 2 и последние 2 символа (1234 5678 → 12** **78)
	MaskFirst2Last2 MaskPattern = "first2_last2"
)

// FieldMasker маскирует чувствительные поля записи (PII) до записи в таблицу.
// Маскированное значение всегда текстовое.
type FieldMasker struct {
	fields map[string]MaskPattern

	emailRegex *regexp.Regexp
}

// NewFieldMasker создает новый маскировщик полей
func NewFieldMasker(fields map[string]MaskPattern) *FieldMasker {
	return &FieldMasker{
		fields:     fields,
		emailRegex: regexp.MustCompile(`^([a-zA-Z0-9._%+-]+)@([a-zA-Z0-9.-]+\.[a-zA-Z]{2,})$`),
	}
}

// Name возвращает имя процессора
func (m *FieldMasker) Name() string {
	return "field_masker"
}

// Process маскирует поля, присутствующие в записи
func (m *FieldMasker) Process(_ context.Context, rec *record.Record) (*record.Record, error) {
	for field, pattern := range m.fields {
		owner, key, text, ok := scalarText(rec, field)
		if !ok || text == "" {
			continue
		}
		owner.SetScalar(key, m.maskValue(text, pattern))
	}
	return rec, nil
}

// maskValue применяет маскирование к значению
func (m *FieldMasker) maskValue(value string, pattern MaskPattern) string {
	switch pattern {
	case MaskPartial:
		if parts := m.emailRegex.FindStringSubmatch(value); len(parts) == 3 {
			// john.doe@example.com → j***@example.com
			return firstRune(parts[1]) + "***@" + parts[2]
		}
		return maskPartial(value)
	case MaskMiddle:
		return maskMiddle(value)
	case MaskFirst2Last2:
		return maskFirst2Last2(value)
	default:
		return maskStars(value)
	}
}

func firstRune(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}

// maskPartial: "Hello World" → "H***d"
func maskPartial(value string) string {
	runes := []rune(value)
	if len(runes) <= 2 {
		return "***"
	}
	return string(runes[0]) + "***" + string(runes[len(runes)-1])
}

// maskMiddle заменяет цифры на X, оставляя по 4 цифры с краев
// (по половине, если цифр меньше 8):
// "1234 5678 9012 3456" → "1234 XXXX XXXX 3456"
func maskMiddle(value string) string {
	digits := 0
	for _, r := range value {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if digits <= 4 {
		return strings.Repeat("X", utf8.RuneCountInString(value))
	}
	visible := 4
	if digits < 8 {
		visible = digits / 2
	}

	runes := []rune(value)
	seen := 0
	for i, r := range runes {
		if !unicode.IsDigit(r) {
			continue
		}
		seen++
		if seen > visible && seen <= digits-visible {
			runes[i] = 'X'
		}
	}
	return string(runes)
}

// maskStars заменяет все символы, кроме разделителей: "123-45-6789" → "***-**-****"
func maskStars(value string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(" -()./", r) {
			return r
		}
		return '*'
	}, value)
}

// maskFirst2Last2 оставляет первые и последние 2 символа, пробелы сохраняются:
// "1234 567890" → "12** ****90"
func maskFirst2Last2(value string) string {
	total := 0
	for _, r := range value {
		if r != ' ' {
			total++
		}
	}
	if total <= 4 {
		return strings.Repeat("*", utf8.RuneCountInString(value))
	}

	var b strings.Builder
	pos := 0
	for _, r := range value {
		if r == ' ' {
			b.WriteRune(r)
			continue
		}
		if pos < 2 || pos >= total-2 {
			b.WriteRune(r)
		} else {
			b.WriteRune('*')
		}
		pos++
	}
	return b.String()
}

// NewFieldMaskerFromConfig создает FieldMasker из конфигурации:
//
//	params:
//	  fields:
//	    email: partial
//	    card: middle
func NewFieldMaskerFromConfig(params map[string]any) (*FieldMasker, error) {
	fields, err := stringParams(params)
	if err != nil {
		return nil, err
	}

	patterns := make(map[string]MaskPattern, len(fields))
	for name, p := range fields {
		pattern := MaskPattern(p)
		switch pattern {
		case MaskPartial, MaskMiddle, MaskStars, MaskFirst2Last2:
			patterns[name] = pattern
		default:
			return nil, fmt.Errorf("invalid mask pattern '%s' for field '%s'", pattern, name)
		}
	}
	return NewFieldMasker(patterns), nil
}
