package money

import (
	"encoding/json"
	"errors"
	"testing"

	"golang.org/x/text/language"
)

func TestParseCanonicalAndLegacy(t *testing.T) {
	tcs := []struct {
		in   string
		want string
	}{
		{"48000", "48000.00"},
		{"1234.5", "1234.50"},
		{"-12.25", "-12.25"},
		{"1,234,567.89 C-bills", "1234567.89"},
		{"1.234.567,89", "1234567.89"},
		{"12,5", "12.50"},
		{"1,234", "1234.00"},
		{"1'234.50", "1234.50"},
		{"C-bills 2,000", "2000.00"},
		{"(1,000.00)", "-1000.00"},
		{"1.234.567", "1234567.00"},
		{"48.000 C-bills", "48000.00"},
		{"48,000 C-bills", "48000.00"},
		{"48.5 C-bills", "48.50"},
		{"$1,250", "1250.00"},
		{"C-bills -300", "-300.00"},
		{"1 234,50", "1234.50"},
	}
	for _, tc := range tcs {
		got, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", tc.in, err)
		}
		if got.String() != tc.want {
			t.Fatalf("Parse(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestParseRejectsEmptyAndNonNumeric(t *testing.T) {
	for _, in := range []string{"", "   ", "C-bills", "n/a", "abc9xyz", "CB 12-34", "12 34", "1,,234", "1.234,567.89", "(500", "1,23,456", "9xyz", "( 500 )"} {
		if _, err := Parse(in); !errors.Is(err, ErrInvalid) {
			t.Fatalf("Parse(%q) error = %v, want ErrInvalid", in, err)
		}
	}
}

func TestArithmetic(t *testing.T) {
	salary := Of(1500)
	if got := salary.Times(24); !got.Equal(Of(36000)) {
		t.Fatalf("Times = %s", got)
	}
	if got := Of(100).DividedBy(3); got.String() != "33.33" {
		t.Fatalf("DividedBy = %s", got)
	}
	if got := Of(100).DividedBy(0); !got.IsZero() {
		t.Fatalf("DividedBy zero = %s, want 0", got)
	}
	if got := Of(10).Minus(Of(25)); !got.IsNegative() {
		t.Fatalf("Minus = %s, want negative", got)
	}
	if Of(5).Cmp(Of(4)) != 1 {
		t.Fatalf("Cmp ordering broken")
	}
}

func TestFormatUsesLocaleGrouping(t *testing.T) {
	m := MustParse("1234567.5")
	if got := m.Format(language.English); got != "1,234,567.50" {
		t.Fatalf("English format = %q", got)
	}
	if got := m.Format(language.German); got != "1.234.567,50" {
		t.Fatalf("German format = %q", got)
	}
	big := MustParse("123456789012345678.91")
	if got := big.Format(language.English); got != "123,456,789,012,345,678.91" {
		t.Fatalf("large amount format = %q", got)
	}
	if got := MustParse("-950").Format(language.English); got != "-950.00" {
		t.Fatalf("negative format = %q", got)
	}
}

func TestJSONAcceptsNumbersAndStrings(t *testing.T) {
	var v struct {
		A Money `json:"a"`
		B Money `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a": 12.5, "b": "3,000.00"}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.A.String() != "12.50" || v.B.String() != "3000.00" {
		t.Fatalf("unexpected values: %s %s", v.A, v.B)
	}
	out, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"a":"12.50","b":"3000.00"}` {
		t.Fatalf("canonical json = %s", out)
	}
}

func TestScan(t *testing.T) {
	var m Money
	if err := m.Scan("1,000.25"); err != nil {
		t.Fatalf("scan string: %v", err)
	}
	if m.String() != "1000.25" {
		t.Fatalf("scan = %s", m)
	}
	if err := m.Scan(int64(7)); err != nil || m.String() != "7.00" {
		t.Fatalf("scan int: %v %s", err, m)
	}
	if err := m.Scan(true); err == nil {
		t.Fatalf("expected error scanning bool")
	}
}
