package calc

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrDivideByZero    = errors.New("divide by zero")
	ErrUnknownOperator = errors.New("unknown operator")
	ErrUnknownAction   = errors.New("unknown action")
)

// DivideByZeroMessage is what the display shows after a division by zero.
const DivideByZeroMessage = "Cannot divide by zero"

type Operator int

const (
	OpNone Operator = iota
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
)

func (o Operator) String() string {
	switch o {
	case OpAdd:
		return "+"
	case OpSubtract:
		return "-"
	case OpMultiply:
		return "*"
	case OpDivide:
		return "/"
	default:
		return ""
	}
}

func (o Operator) valid() bool {
	return o >= OpAdd && o <= OpDivide
}

// ParseOperator accepts the ASCII symbols and the keypad glyphs.
func ParseOperator(sym string) (Operator, bool) {
	switch strings.TrimSpace(sym) {
	case "+":
		return OpAdd, true
	case "-", "−":
		return OpSubtract, true
	case "*", "×", "x":
		return OpMultiply, true
	case "/", "÷":
		return OpDivide, true
	default:
		return OpNone, false
	}
}

// Compute applies op to a and b. The result is always passed through Round12.
func Compute(a, b float64, op Operator) (float64, error) {
	var res float64
	switch op {
	case OpAdd:
		res = a + b
	case OpSubtract:
		res = a - b
	case OpMultiply:
		res = a * b
	case OpDivide:
		if b == 0 {
			return 0, ErrDivideByZero
		}
		res = a / b
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownOperator, op)
	}
	return Round12(res), nil
}

// maxExact is the largest magnitude at which every integer is representable.
const maxExact = 1 << 53

// Round12 rounds x to 12 decimal places, half away from zero.
// Values whose scaled form has no fractional bits left are returned as is.
func Round12(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	scaled := x * 1e12
	if math.IsInf(scaled, 0) || math.Abs(scaled) >= maxExact {
		return x
	}
	r := math.Round(scaled) / 1e12
	if r == 0 {
		// drop the sign of negative zero
		return 0
	}
	return r
}

// FormatNumber renders v the way the display expects: the shortest decimal that
// round-trips, switching to exponent form only for very large or very small
// magnitudes.
func FormatNumber(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	case v == 0:
		return "0"
	}
	abs := math.Abs(v)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(v, 'e', -1, 64)
		mant, exp, ok := strings.Cut(s, "e")
		if !ok || len(exp) < 2 {
			return s
		}
		digits := strings.TrimLeft(exp[1:], "0")
		if digits == "" {
			digits = "0"
		}
		return mant + "e" + exp[:1] + digits
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// parseOperand reads a buffer value. A lone decimal point or an unparsable
// buffer counts as zero.
func parseOperand(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "." {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return v
		}
		return 0
	}
	return v
}
