package processors

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ruslano69/dbcon/pkg/record"
)

// NormalizeRule определяет правило нормализации
type NormalizeRule string

const (
	// NormalizePhone приводит телефон к формату 79991234567
	NormalizePhone NormalizeRule = "phone"
	// NormalizeEmail приводит email к нижнему регистру
	NormalizeEmail NormalizeRule = "email"
	// NormalizeWhitespace убирает лишние пробелы
	NormalizeWhitespace NormalizeRule = "whitespace"
	// NormalizeUpperCase приводит к верхнему регистру
	NormalizeUpperCase NormalizeRule = "uppercase"
	// NormalizeLowerCase приводит к нижнему регистру
	NormalizeLowerCase NormalizeRule = "lowercase"
	// NormalizeDate приводит DD.MM.YYYY к YYYY-MM-DD
	NormalizeDate NormalizeRule = "date"
)

// FieldNormalizer приводит значения полей к единому формату.
// Результат нормализации - текст.
type FieldNormalizer struct {
	fields map[string]NormalizeRule

	phoneRegex      *regexp.Regexp
	whitespaceRegex *regexp.Regexp
	dateRegex       *regexp.Regexp
}

// NewFieldNormalizer создает новый нормализатор полей
func NewFieldNormalizer(fields map[string]NormalizeRule) *FieldNormalizer {
	return &FieldNormalizer{
		fields:          fields,
		phoneRegex:      regexp.MustCompile(`[^\d+]`),
		whitespaceRegex: regexp.MustCompile(`\s+`),
		dateRegex:       regexp.MustCompile(`^(\d{1,2})[./\-](\d{1,2})[./\-](\d{2}|\d{4})$`),
	}
}

// Name возвращает имя процессора
func (n *FieldNormalizer) Name() string {
	return "field_normalizer"
}

// Process нормализует поля записи; значение, которое нельзя нормализовать,
// дает *ValidationError
func (n *FieldNormalizer) Process(_ context.Context, rec *record.Record) (*record.Record, error) {
	for field, rule := range n.fields {
		owner, key, text, ok := scalarText(rec, field)
		if !ok {
			continue
		}
		normalized, err := n.normalize(text, rule)
		if err != nil {
			return nil, &ValidationError{
				Processor: n.Name(),
				Field:     field,
				Rule:      string(rule),
				Value:     text,
				Msg:       err.Error(),
			}
		}
		if normalized != text {
			owner.SetScalar(key, normalized)
		}
	}
	return rec, nil
}

func (n *FieldNormalizer) normalize(value string, rule NormalizeRule) (string, error) {
	switch rule {
	case NormalizePhone:
		return n.normalizePhone(value), nil
	case NormalizeEmail:
		email := strings.ToLower(strings.TrimSpace(value))
		if !strings.Contains(email, "@") || !strings.Contains(email, ".") {
			return "", fmt.Errorf("invalid email format")
		}
		return email, nil
	case NormalizeWhitespace:
		return n.whitespaceRegex.ReplaceAllString(strings.TrimSpace(value), " "), nil
	case NormalizeUpperCase:
		return strings.ToUpper(value), nil
	case NormalizeLowerCase:
		return strings.ToLower(value), nil
	case NormalizeDate:
		return n.normalizeDate(value)
	}
	return "", fmt.Errorf("unknown normalize rule: %s", rule)
}

// normalizePhone: "+7 (999) 123-45-67" и "8(999)123-45-67" → "79991234567".
// Номера другого формата возвращаются как есть.
func (n *FieldNormalizer) normalizePhone(value string) string {
	cleaned := strings.TrimPrefix(n.phoneRegex.ReplaceAllString(value, ""), "+")
	if len(cleaned) == 11 && cleaned[0] == '8' {
		cleaned = "7" + cleaned[1:]
	}
	if len(cleaned) != 11 || cleaned[0] != '7' {
		return value
	}
	return cleaned
}

// normalizeDate: "01.12.2024" → "2024-12-01", "15/03/24" → "2024-03-15".
// Значение уже в формате YYYY-MM-DD не меняется.
func (n *FieldNormalizer) normalizeDate(value string) (string, error) {
	value = strings.TrimSpace(value)
	if len(value) == 10 && value[4] == '-' && value[7] == '-' {
		return value, nil
	}
	m := n.dateRegex.FindStringSubmatch(value)
	if m == nil {
		return "", fmt.Errorf("invalid date format")
	}
	day, month, year := pad2(m[1]), pad2(m[2]), m[3]
	if len(year) == 2 {
		year = "20" + year
	}
	return year + "-" + month + "-" + day, nil
}

// NewFieldNormalizerFromConfig создает FieldNormalizer из конфигурации:
//
//	params:
//	  fields:
//	    email: email
//	    phone: phone
func NewFieldNormalizerFromConfig(params map[string]any) (*FieldNormalizer, error) {
	fields, err := stringParams(params)
	if err != nil {
		return nil, err
	}

	rules := make(map[string]NormalizeRule, len(fields))
	for name, r := range fields {
		rule := NormalizeRule(r)
		switch rule {
		case NormalizePhone, NormalizeEmail, NormalizeWhitespace,
			NormalizeUpperCase, NormalizeLowerCase, NormalizeDate:
			rules[name] = rule
		default:
			return nil, fmt.Errorf("invalid normalize rule '%s' for field '%s'", rule, name)
		}
	}
	return NewFieldNormalizer(rules), nil
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
