package ledger

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type amountKind uint8

const (
	amountNull amountKind = iota
	amountNumber
	amountText
)

// Amount is an invoice total exactly as it was entered or extracted.
// The raw form (JSON number, string or null) survives a save/load cycle;
// arithmetic goes through Decimal.
type Amount struct {
	kind amountKind
	raw  string
}

// NewAmount returns a numeric amount.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{kind: amountNumber, raw: d.String()}
}

// ParseAmount turns operator input into an Amount. Well-formed numbers are
// stored as numbers, anything else is kept verbatim as text.
func ParseAmount(s string) Amount {
	t := strings.TrimSpace(s)
	if t != "" && json.Valid([]byte(t)) {
		if _, err := decimal.NewFromString(t); err == nil && t[0] != '"' {
			return Amount{kind: amountNumber, raw: t}
		}
	}
	return Amount{kind: amountText, raw: s}
}

// IsNull reports whether no total was provided.
func (a Amount) IsNull() bool { return a.kind == amountNull }

// String returns the raw value, or "" for null.
func (a Amount) String() string { return a.raw }

var leadingNumber = regexp.MustCompile(`^[+-]?(\d+(\.\d+)?|\.\d+)([eE][+-]?\d+)?`)

// Decimal coerces the amount the way a lenient float parse would: the
// leading numeric prefix counts, anything non-numeric is zero. A prefix
// outside the float64 range (overflow or underflow) is zero too.
func (a Amount) Decimal() decimal.Decimal {
	m := leadingNumber.FindString(strings.TrimSpace(a.raw))
	if m == "" {
		return decimal.Zero
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsInf(f, 0) || f == 0 {
		return decimal.Zero
	}
	if i := strings.IndexByte(m, '.'); i >= 0 && (i == 0 || m[i-1] < '0' || m[i-1] > '9') {
		m = m[:i] + "0" + m[i:]
	}
	d, err := decimal.NewFromString(m)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) MarshalJSON() ([]byte, error) {
	switch a.kind {
	case amountNumber:
		return []byte(a.raw), nil
	case amountText:
		return json.Marshal(a.raw)
	}
	return []byte("null"), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*a = Amount{}
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount{kind: amountText, raw: s}
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*a = Amount{kind: amountNumber, raw: n.String()}
	}
	return nil
}
