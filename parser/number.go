package parser

import (
	"bytes"
	"strconv"

	"github.com/shopspring/decimal"
)

// Number accepts a JSON number or a JSON string holding a decimal. Anything
// else, including NaN, Inf, empty strings and null, is rejected.
type Number struct {
	d   decimal.Decimal
	set bool
}

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return Malformedf("number is null")
	}
	s := string(b)
	if b[0] == '"' {
		unq, err := strconv.Unquote(s)
		if err != nil {
			return Malformedf("bad quoted number %s", s)
		}
		s = unq
	}
	d, err := ParseDecimal(s)
	if err != nil {
		return err
	}
	n.d = d
	n.set = true
	return nil
}

// IsSet reports whether the number was present on the wire.
func (n Number) IsSet() bool { return n.set }

// Require fails with ErrMalformedPayload when any of nums was absent.
func Require(nums ...Number) error {
	for i, n := range nums {
		if !n.set {
			return Malformedf("required numeric field %d missing", i)
		}
	}
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	return []byte(n.d.String()), nil
}

func (n Number) Float64() float64 { return n.d.InexactFloat64() }

// Int64 truncates toward zero; use for integral fields such as timestamps.
func (n Number) Int64() int64 { return n.d.IntPart() }

func (n Number) Decimal() decimal.Decimal { return n.d }

func (n Number) String() string { return n.d.String() }

// NewNumber is mostly useful in tests.
func NewNumber(f float64) Number { return Number{d: decimal.NewFromFloat(f), set: true} }

// ParseDecimal parses s strictly.
func ParseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Decimal{}, Malformedf("empty number")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, Malformedf("invalid number %q", s)
	}
	return d, nil
}

// ParseFloat parses s strictly into a float64.
func ParseFloat(s string) (float64, error) {
	d, err := ParseDecimal(s)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

// ParseInt parses an integral decimal string.
func ParseInt(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, Malformedf("invalid integer %q", s)
	}
	return v, nil
}
