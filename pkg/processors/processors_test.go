package processors

import (
	"context"
	"errors"
	"testing"

	"github.com/ruslano69/dbcon/pkg/record"
)

func mustRecord(t *testing.T, src string) *record.Record {
	t.Helper()
	rec, err := record.DecodeJSON([]byte(src))
	if err != nil {
		t.Fatalf("DecodeJSON(%s) failed: %v", src, err)
	}
	return rec
}

func field(t *testing.T, rec *record.Record, path ...string) string {
	t.Helper()
	cur := rec
	for _, p := range path[:len(path)-1] {
		v, _ := cur.Get(p)
		cur = v.Record()
	}
	v, ok := cur.Get(path[len(path)-1])
	if !ok {
		t.Fatalf("field %v missing", path)
	}
	return v.String()
}

func TestMaskValues(t *testing.T) {
	m := NewFieldMasker(nil)
	tests := []struct {
		value   string
		pattern MaskPattern
		want    string
	}{
		{"john.doe@example.com", MaskPartial, "j***@example.com"},
		{"Hello World", MaskPartial, "H***d"},
		{"ab", MaskPartial, "***"},
		{"Иванов", MaskPartial, "И***в"},
		{"1234 5678 9012 3456", MaskMiddle, "1234 XXXX XXXX 3456"},
		{"123", MaskMiddle, "XXX"},
		{"123-45-6789", MaskStars, "***-**-****"},
		{"1234 567890", MaskFirst2Last2, "12** ****90"},
		{"abcd", MaskFirst2Last2, "****"},
	}
	for _, tt := range tests {
		if got := m.maskValue(tt.value, tt.pattern); got != tt.want {
			t.Errorf("mask(%q, %s) = %q, want %q", tt.value, tt.pattern, got, tt.want)
		}
	}
}

func TestFieldMasker_Process(t *testing.T) {
	m := NewFieldMasker(map[string]MaskPattern{
		"email":         MaskPartial,
		"customer.card": MaskMiddle,
		"missing":       MaskStars,
		"empty_is_null": MaskStars,
	})
	rec := mustRecord(t, `{"id": 1, "email": "john@example.com", "customer": {"card": "1234567812345678"}, "empty_is_null": null}`)

	out, err := m.Process(context.Background(), rec)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if got := field(t, out, "email"); got != "j***@example.com" {
		t.Errorf("email = %q", got)
	}
	if got := field(t, out, "customer", "card"); got != "1234XXXXXXXX5678" {
		t.Errorf("card = %q", got)
	}
	if v, _ := out.Get("empty_is_null"); !v.IsNull() {
		t.Error("NULL must stay NULL")
	}
	if out.Has("missing") {
		t.Error("absent field must not be created")
	}
}

func TestFieldNormalizer(t *testing.T) {
	n := NewFieldNormalizer(map[string]NormalizeRule{
		"phone": NormalizePhone,
		"email": NormalizeEmail,
		"name":  NormalizeWhitespace,
		"code":  NormalizeUpperCase,
		"born":  NormalizeDate,
	})
	rec := mustRecord(t, `{"phone": "8 (999) 123-45-67", "email": " John@Example.COM ", "name": "  Ivan   Petrov ", "code": "ab1", "born": "1.3.24"}`)

	out, err := n.Process(context.Background(), rec)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	want := map[string]string{
		"phone": "79991234567",
		"email": "john@example.com",
		"name":  "Ivan Petrov",
		"code":  "AB1",
		"born":  "2024-03-01",
	}
	for k, w := range want {
		if got := field(t, out, k); got != w {
			t.Errorf("%s = %q, want %q", k, got, w)
		}
	}

	_, err = n.Process(context.Background(), mustRecord(t, `{"email": "not-an-email"}`))
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "email" {
		t.Errorf("expected ValidationError for email, got %v", err)
	}
}

func TestFieldValidator(t *testing.T) {
	v, err := NewFieldValidatorFromConfig(map[string]any{
		"fields": map[string]any{
			"id":     "required",
			"age":    []any{"range:0-150"},
			"status": "enum:active,inactive",
			"email":  []any{map[string]any{"type": "email", "error": "bad email"}},
			"code":   "regex:^[A-Z]{3}$",
			"born":   "date",
		},
	})
	if err != nil {
		t.Fatalf("NewFieldValidatorFromConfig failed: %v", err)
	}

	ok := mustRecord(t, `{"id": 1, "age": 30, "status": "active", "email": "a@b.io", "code": "ABC", "born": "2000-02-29"}`)
	if _, err := v.Process(context.Background(), ok); err != nil {
		t.Errorf("valid record rejected: %v", err)
	}

	optional := mustRecord(t, `{"id": 2}`)
	if _, err := v.Process(context.Background(), optional); err != nil {
		t.Errorf("absent optional fields must pass: %v", err)
	}

	bad := mustRecord(t, `{"age": 200, "status": "gone", "email": "x", "code": "abc", "born": "2001-02-29"}`)
	_, err = v.Process(context.Background(), bad)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	joined, isJoin := err.(interface{ Unwrap() []error })
	if !isJoin || len(joined.Unwrap()) != 6 {
		t.Fatalf("expected 6 violations, got %v", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatal("expected ValidationError in joined error")
	}
	for _, e := range joined.Unwrap() {
		if errors.As(e, &verr) && verr.Field == "email" && verr.Msg != "bad email" {
			t.Errorf("custom message lost: %v", verr)
		}
	}
}

func TestFieldValidator_StopOnFirstError(t *testing.T) {
	v, err := NewFieldValidator(map[string][]FieldValidationRule{
		"a": {{Type: ValidateRequired}},
		"b": {{Type: ValidateRequired}},
	}, true)
	if err != nil {
		t.Fatalf("NewFieldValidator failed: %v", err)
	}
	_, err = v.Process(context.Background(), mustRecord(t, `{}`))
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "a" {
		t.Errorf("expected first violation on a, got %v", err)
	}
}

func TestFieldValidator_BadConfig(t *testing.T) {
	if _, err := NewFieldValidatorFromConfig(map[string]any{"fields": map[string]any{"x": "luhn"}}); err == nil {
		t.Error("expected error for unknown rule")
	}
	if _, err := NewFieldValidatorFromConfig(map[string]any{"fields": map[string]any{"x": "regex:("}}); err == nil {
		t.Error("expected error for invalid regex")
	}
}

func TestBuild(t *testing.T) {
	p, err := Build(nil)
	if err != nil || p != nil {
		t.Fatalf("empty config must give nil processor, got %v, %v", p, err)
	}

	p, err = Build([]Config{
		{Type: "field_normalizer", Params: map[string]any{"fields": map[string]any{"email": "email"}}},
		{Type: "field_masker", Params: map[string]any{"fields": map[string]any{"email": "partial"}}},
		{Type: "field_validator", Params: map[string]any{"fields": map[string]any{"id": "required"}}},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	out, err := p.Process(context.Background(), mustRecord(t, `{"id": 1, "email": "John@Example.com"}`))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if got := field(t, out, "email"); got != "j***@example.com" {
		t.Errorf("email = %q", got)
	}

	_, err = p.Process(context.Background(), mustRecord(t, `{"email": "a@b.io"}`))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("chain must keep ValidationError reachable, got %v", err)
	}

	if _, err := Build([]Config{{Type: "encrypt"}}); err == nil {
		t.Error("expected error for unknown type")
	}
	if got := NewFactory().Types(); len(got) != 3 || got[0] != "field_masker" {
		t.Errorf("Types = %v", got)
	}
}
