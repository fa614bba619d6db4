// Package money implements the currency amounts owed and paid by the turnover ledger.
package money

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Money is a decimal currency amount. The zero value is zero.
type Money struct {
	amount decimal.Decimal
}

// ErrInvalid is returned when a string holds no recognizable amount.
var ErrInvalid = errors.New("invalid money amount")

func Zero() Money { return Money{} }

// Of returns a whole-unit amount.
func Of(units int64) Money {
	return Money{amount: decimal.NewFromInt(units)}
}

// Parse reads a canonical amount ("1234.50") or a legacy locale-formatted one
// ("1,234.50 C-bills", "1.234,50", "1'234.50").
func Parse(s string) (Money, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Money{}, fmt.Errorf("%w: empty", ErrInvalid)
	}
	if d, err := decimal.NewFromString(raw); err == nil {
		return Money{amount: d}, nil
	}
	cleaned, err := normalizeLegacy(raw)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", err, s)
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return Money{amount: d}, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// normalizeLegacy turns a legacy amount into decimal.NewFromString input. The
// number may carry a currency word or symbol on either side, separated by a
// space unless it is a symbol, a sign or parentheses. Inside the number only
// digits and separators are allowed. A lone comma or dot followed by exactly
// three digits groups thousands; otherwise the last comma or dot is the
// decimal mark.
func normalizeLegacy(raw string) (string, error) {
	runes := []rune(raw)
	first, last := -1, -1
	for i, r := range runes {
		if unicode.IsDigit(r) {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return "", ErrInvalid
	}
	negative, err := legacySign(runes[:first], runes[last+1:])
	if err != nil {
		return "", err
	}
	num, err := legacyNumber(runes[first : last+1])
	if err != nil {
		return "", err
	}
	if negative {
		num = "-" + num
	}
	return num, nil
}

func isMinus(r rune) bool { return r == '-' || r == '−' }

// boundary reports whether r may separate a currency word from the number.
func boundary(r rune) bool { return unicode.IsSpace(r) || unicode.Is(unicode.Sc, r) }

func legacySign(prefix, suffix []rune) (bool, error) {
	negative, paren := false, false
	i := len(prefix)
	if i > 0 && (isMinus(prefix[i-1]) || prefix[i-1] == '+') {
		negative = isMinus(prefix[i-1])
		i--
	}
	if i > 0 && prefix[i-1] == '(' {
		paren = true
		i--
	}
	if i > 0 && !boundary(prefix[i-1]) {
		return false, ErrInvalid
	}
	if !paren && (strings.ContainsRune(string(prefix), '(') || strings.ContainsRune(string(suffix), ')')) {
		return false, ErrInvalid
	}
	j := 0
	if paren {
		if len(suffix) == 0 || suffix[0] != ')' {
			return false, ErrInvalid
		}
		j = 1
		negative = true
	}
	if j < len(suffix) && !boundary(suffix[j]) {
		return false, ErrInvalid
	}
	return negative, nil
}

func groupSeparator(r rune) bool {
	switch r {
	case ',', '.', '\'', '’', ' ', '\u00a0', '\u202f':
		return true
	}
	return false
}

func legacyNumber(core []rune) (string, error) {
	commas, dots := 0, 0
	lastComma, lastDot := -1, -1
	for i, r := range core {
		switch {
		case unicode.IsDigit(r):
		case r == ',':
			commas++
			lastComma = i
		case r == '.':
			dots++
			lastDot = i
		case groupSeparator(r):
		default:
			return "", ErrInvalid
		}
	}
	decimalAt := -1
	switch {
	case commas > 0 && dots > 0:
		decimalAt = max(lastComma, lastDot)
		if (core[decimalAt] == ',' && commas > 1) || (core[decimalAt] == '.' && dots > 1) {
			return "", ErrInvalid
		}
	case commas == 1 && len(core)-lastComma-1 != 3:
		decimalAt = lastComma
	case dots == 1 && len(core)-lastDot-1 != 3:
		decimalAt = lastDot
	}
	whole, frac := core, []rune(nil)
	if decimalAt >= 0 {
		whole, frac = core[:decimalAt], core[decimalAt+1:]
		for _, r := range frac {
			if !unicode.IsDigit(r) {
				return "", ErrInvalid
			}
		}
	}
	var b strings.Builder
	var sep rune
	groups := strings.FieldsFunc(string(whole), groupSeparator)
	for _, r := range whole {
		if groupSeparator(r) {
			if sep != 0 && r != sep {
				return "", ErrInvalid
			}
			sep = r
		}
	}
	for i, g := range groups {
		n := len([]rune(g))
		if len(groups) > 1 && ((i == 0 && n > 3) || (i > 0 && n != 3)) {
			return "", ErrInvalid
		}
		b.WriteString(g)
	}
	if sep != 0 && strings.Count(string(whole), string(sep)) != len(groups)-1 {
		return "", ErrInvalid
	}
	if len(frac) > 0 {
		b.WriteByte('.')
		b.WriteString(string(frac))
	}
	return b.String(), nil
}

func (m Money) Plus(o Money) Money  { return Money{amount: m.amount.Add(o.amount)} }
func (m Money) Minus(o Money) Money { return Money{amount: m.amount.Sub(o.amount)} }

// Times multiplies by a whole factor.
func (m Money) Times(n int64) Money {
	return Money{amount: m.amount.Mul(decimal.NewFromInt(n))}
}

// DividedBy splits the amount into n parts rounded to cents. Dividing by zero
// yields zero.
func (m Money) DividedBy(n int64) Money {
	if n == 0 {
		return Money{}
	}
	return Money{amount: m.amount.DivRound(decimal.NewFromInt(n), 2)}
}

func (m Money) Neg() Money { return Money{amount: m.amount.Neg()} }

func (m Money) IsZero() bool     { return m.amount.IsZero() }
func (m Money) IsPositive() bool { return m.amount.IsPositive() }
func (m Money) IsNegative() bool { return m.amount.IsNegative() }

func (m Money) Cmp(o Money) int     { return m.amount.Cmp(o.amount) }
func (m Money) Equal(o Money) bool { return m.amount.Equal(o.amount) }

// String returns the canonical form with two decimals.
func (m Money) String() string {
	return m.amount.StringFixed(2)
}

// Format renders the amount with locale grouping, e.g. "1,234.50" for English.
// The separators come from the locale; the digits come from the exact decimal.
func (m Money) Format(tag language.Tag) string {
	group, mark := separators(tag)
	fixed := m.amount.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")
	var b strings.Builder
	if m.amount.IsNegative() {
		b.WriteByte('-')
	}
	for i, r := range whole {
		if i > 0 && group != 0 && (len(whole)-i)%3 == 0 {
			b.WriteRune(group)
		}
		b.WriteRune(r)
	}
	b.WriteRune(mark)
	b.WriteString(frac)
	return b.String()
}

// separators reads the grouping and decimal runes of a locale off a sample
// number. group is zero when the locale does not group.
func separators(tag language.Tag) (group, mark rune) {
	sample := []rune(message.NewPrinter(tag).Sprint(number.Decimal(12345.5, number.MinFractionDigits(1), number.MaxFractionDigits(1))))
	mark = '.'
	if len(sample) >= 2 {
		mark = sample[len(sample)-2]
	}
	if len(sample) == 8 {
		group = sample[2]
	}
	return group, mark
}

func (m Money) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Money) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// UnmarshalJSON accepts both quoted strings and bare numbers.
func (m *Money) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*m = Money{}
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		return m.UnmarshalText([]byte(s))
	}
	return m.UnmarshalText([]byte(trimmed))
}

// Value stores the canonical string form.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

func (m *Money) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = Money{}
		return nil
	case string:
		return m.UnmarshalText([]byte(v))
	case []byte:
		return m.UnmarshalText(v)
	case int64:
		*m = Of(v)
		return nil
	case float64:
		*m = Money{amount: decimal.NewFromFloat(v)}
		return nil
	default:
		return fmt.Errorf("money: cannot scan %T", src)
	}
}
