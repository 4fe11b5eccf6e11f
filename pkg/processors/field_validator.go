package processors

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ruslano69/dbcon/pkg/record"
)

// ValidationRule определяет тип правила валидации
type ValidationRule string

const (
	// ValidateRegex - валидация по регулярному выражению
	ValidateRegex ValidationRule = "regex"
	// ValidateRange - числовой диапазон "min-max"
	ValidateRange ValidationRule = "range"
	// ValidateEnum - список допустимых значений "a,b,c"
	ValidateEnum ValidationRule = "enum"
	// ValidateRequired - поле присутствует и не пустое
	ValidateRequired ValidationRule = "required"
	// ValidateLength - длина строки в символах "min-max"
	ValidateLength ValidationRule = "length"
	// ValidateEmail - email адрес
	ValidateEmail ValidationRule = "email"
	// ValidatePhone - телефонный номер
	ValidatePhone ValidationRule = "phone"
	// ValidateURL - http(s) URL
	ValidateURL ValidationRule = "url"
	// ValidateDate - дата YYYY-MM-DD
	ValidateDate ValidationRule = "date"
)

var knownRules = map[ValidationRule]bool{
	ValidateRegex: true, ValidateRange: true, ValidateEnum: true,
	ValidateRequired: true, ValidateLength: true, ValidateEmail: true,
	ValidatePhone: true, ValidateURL: true, ValidateDate: true,
}

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phoneRegex    = regexp.MustCompile(`^\+?\d{10,15}$`)
	urlRegex      = regexp.MustCompile(`^https?://[^\s/$.?#].[^\s]*$`)
	intervalRegex = regexp.MustCompile(`^(-?[\d.]+)-(-?[\d.]+)$`)
)

// FieldValidationRule содержит правило валидации для поля
type FieldValidationRule struct {
	Type   ValidationRule
	Param  string // regex pattern, "min-max", "a,b,c"
	ErrMsg string // сообщение вместо стандартного

	re *regexp.Regexp
}

// FieldValidator проверяет поля записи. Запись, не прошедшая проверку,
// возвращается как *ValidationError и не попадает в таблицу.
type FieldValidator struct {
	fields           map[string][]FieldValidationRule
	order            []string
	stopOnFirstError bool
}

// NewFieldValidator создает валидатор; regex правила компилируются сразу
func NewFieldValidator(fields map[string][]FieldValidationRule, stopOnFirstError bool) (*FieldValidator, error) {
	v := &FieldValidator{
		fields:           make(map[string][]FieldValidationRule, len(fields)),
		stopOnFirstError: stopOnFirstError,
	}
	for name, rules := range fields {
		compiled := make([]FieldValidationRule, len(rules))
		for i, rule := range rules {
			if !knownRules[rule.Type] {
				return nil, fmt.Errorf("unknown validation rule type: %s", rule.Type)
			}
			if rule.Type == ValidateRegex {
				re, err := regexp.Compile(rule.Param)
				if err != nil {
					return nil, fmt.Errorf("invalid regex for field '%s': %w", name, err)
				}
				rule.re = re
			}
			compiled[i] = rule
		}
		v.fields[name] = compiled
		v.order = append(v.order, name)
	}
	sort.Strings(v.order)
	return v, nil
}

// Name возвращает имя процессора
func (v *FieldValidator) Name() string {
	return "field_validator"
}

// Process проверяет запись; без stopOnFirstError возвращает все нарушения
// через errors.Join
func (v *FieldValidator) Process(_ context.Context, rec *record.Record) (*record.Record, error) {
	var errs []error
	for _, field := range v.order {
		_, _, text, present := scalarText(rec, field)
		for _, rule := range v.fields[field] {
			var err error
			switch {
			case rule.Type == ValidateRequired:
				if !present || strings.TrimSpace(text) == "" {
					err = errors.New("field is required but empty")
				}
			case !present:
				continue
			default:
				err = rule.check(text)
			}
			if err == nil {
				continue
			}

			msg := err.Error()
			if rule.ErrMsg != "" {
				msg = rule.ErrMsg
			}
			verr := &ValidationError{Processor: v.Name(), Field: field, Rule: string(rule.Type), Value: text, Msg: msg}
			if v.stopOnFirstError {
				return nil, verr
			}
			errs = append(errs, verr)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return rec, nil
}

func (r FieldValidationRule) check(value string) error {
	switch r.Type {
	case ValidateRegex:
		if !r.re.MatchString(value) {
			return fmt.Errorf("does not match pattern '%s'", r.Param)
		}
	case ValidateRange:
		lo, hi, err := interval(r.Param)
		if err != nil {
			return err
		}
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return errors.New("not a valid number")
		}
		if n < lo || n > hi {
			return fmt.Errorf("out of range [%g, %g]", lo, hi)
		}
	case ValidateEnum:
		for _, allowed := range strings.Split(r.Param, ",") {
			if strings.TrimSpace(allowed) == value {
				return nil
			}
		}
		return fmt.Errorf("not in allowed list [%s]", r.Param)
	case ValidateLength:
		lo, hi, err := interval(r.Param)
		if err != nil {
			return err
		}
		n := float64(len([]rune(value)))
		if n < lo || n > hi {
			return fmt.Errorf("length %g is out of range [%g, %g]", n, lo, hi)
		}
	case ValidateEmail:
		if !emailRegex.MatchString(value) {
			return errors.New("invalid email format")
		}
	case ValidatePhone:
		cleaned := strings.Map(func(c rune) rune {
			if (c >= '0' && c <= '9') || c == '+' {
				return c
			}
			return -1
		}, value)
		if !phoneRegex.MatchString(cleaned) {
			return errors.New("invalid phone format")
		}
	case ValidateURL:
		if !urlRegex.MatchString(value) {
			return errors.New("invalid URL format")
		}
	case ValidateDate:
		if _, err := time.Parse("2006-01-02", value); err != nil {
			return errors.New("invalid date format (expected YYYY-MM-DD)")
		}
	}
	return nil
}

// interval разбирает "min-max"
func interval(param string) (lo, hi float64, err error) {
	m := intervalRegex.FindStringSubmatch(param)
	if m == nil {
		return 0, 0, fmt.Errorf("invalid range format '%s', expected 'min-max'", param)
	}
	if lo, err = strconv.ParseFloat(m[1], 64); err != nil {
		return 0, 0, fmt.Errorf("invalid min value in range '%s'", param)
	}
	if hi, err = strconv.ParseFloat(m[2], 64); err != nil {
		return 0, 0, fmt.Errorf("invalid max value in range '%s'", param)
	}
	return lo, hi, nil
}

// NewFieldValidatorFromConfig создает FieldValidator из конфигурации.
// Правило задается строкой "type:param" или отображением {type, error}:
//
//	params:
//	  stop_on_first_error: true
//	  fields:
//	    age: ["required", "range:0-150"]
//	    status: "enum:active,inactive"
//	    email: [{type: email, error: "bad email"}]
func NewFieldValidatorFromConfig(params map[string]any) (*FieldValidator, error) {
	fields, ok := params["fields"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'fields' parameter")
	}
	stop, _ := params["stop_on_first_error"].(bool)

	rules := make(map[string][]FieldValidationRule, len(fields))
	for name, raw := range fields {
		var items []any
		switch x := raw.(type) {
		case []any:
			items = x
		default:
			items = []any{x}
		}
		for _, item := range items {
			rule, err := parseRule(item)
			if err != nil {
				return nil, fmt.Errorf("field '%s': %w", name, err)
			}
			rules[name] = append(rules[name], rule)
		}
	}
	return NewFieldValidator(rules, stop)
}

// parseRule разбирает "type:param" или {type: "type:param", error: "..."}
func parseRule(item any) (FieldValidationRule, error) {
	switch x := item.(type) {
	case string:
		kind, param, _ := strings.Cut(x, ":")
		return FieldValidationRule{Type: ValidationRule(kind), Param: param}, nil
	case map[string]any:
		s, ok := x["type"].(string)
		if !ok {
			return FieldValidationRule{}, fmt.Errorf("missing 'type' in rule map")
		}
		rule, err := parseRule(s)
		if err != nil {
			return rule, err
		}
		rule.ErrMsg, _ = x["error"].(string)
		return rule, nil
	}
	return FieldValidationRule{}, fmt.Errorf("unsupported rule %v", item)
}
