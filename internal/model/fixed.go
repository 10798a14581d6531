package model

import (
	"math"
	"math/bits"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"tradecore/pkg/exception"
)

const (
	// FixedPrecision is the number of decimal places every raw value is scaled to.
	FixedPrecision = 9
	// FixedScalar is 10^FixedPrecision.
	FixedScalar int64 = 1_000_000_000
)

var pow10 = [FixedPrecision + 1]int64{
	1, 10, 100, 1_000, 10_000, 100_000, 1_000_000, 10_000_000, 100_000_000, 1_000_000_000,
}

func checkPrecision(precision uint8) error {
	if precision > FixedPrecision {
		return errors.Wrap(exception.ErrInvalidPrecision, "precision exceeds fixed precision").With("precision", precision)
	}
	return nil
}

// rawFromFloat rounds value to precision decimals and scales it to FixedPrecision.
func rawFromFloat(value float64, precision uint8) (int64, error) {
	if err := checkPrecision(precision); err != nil {
		return 0, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, errors.Wrap(exception.ErrInvalidArgument, "value is not finite")
	}
	rounded := math.RoundToEven(value * float64(pow10[precision]))
	if rounded > float64(math.MaxInt64/pow10[FixedPrecision-precision]) {
		return 0, exception.ErrOverflow
	}
	if rounded < float64(math.MinInt64/pow10[FixedPrecision-precision]) {
		return 0, exception.ErrUnderflow
	}
	return int64(rounded) * pow10[FixedPrecision-precision], nil
}

// rawFromString parses a decimal string and infers the precision from its fractional digits.
func rawFromString(s string) (int64, uint8, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, 0, errors.Wrap(exception.ErrParseNumber, err.Error()).With("value", s)
	}
	precision := uint8(0)
	if exp := d.Exponent(); exp < 0 {
		if -exp > FixedPrecision {
			return 0, 0, errors.Wrap(exception.ErrInvalidPrecision, "too many decimals").With("value", s)
		}
		precision = uint8(-exp)
	}
	raw, err := rawFromDecimal(d, precision)
	return raw, precision, err
}

// rawFromDecimal rounds d to precision (banker's rounding) and scales it.
func rawFromDecimal(d decimal.Decimal, precision uint8) (int64, error) {
	if err := checkPrecision(precision); err != nil {
		return 0, err
	}
	scaled := d.RoundBank(int32(precision)).Shift(FixedPrecision)
	if !scaled.IsInteger() {
		return 0, errors.Wrap(exception.ErrInvalidPrecision, "value not representable")
	}
	if scaled.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, exception.ErrOverflow
	}
	if scaled.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, exception.ErrUnderflow
	}
	return scaled.IntPart(), nil
}

func rawToDecimal(raw int64) decimal.Decimal {
	return decimal.New(raw, -FixedPrecision)
}

func rawToFloat(raw int64) float64 {
	return float64(raw) / float64(FixedScalar)
}

func addRaw(a, b int64) (int64, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, exception.ErrOverflow
	}
	if b < 0 && a < math.MinInt64-b {
		return 0, exception.ErrUnderflow
	}
	return a + b, nil
}

func subRaw(a, b int64) (int64, error) {
	if b < 0 && a > math.MaxInt64+b {
		return 0, exception.ErrOverflow
	}
	if b > 0 && a < math.MinInt64+b {
		return 0, exception.ErrUnderflow
	}
	return a - b, nil
}

// mulRaw multiplies two fixed-point raws and rescales, using a 128-bit intermediate.
func mulRaw(a, b int64) (int64, error) {
	neg := (a < 0) != (b < 0)
	hi, lo := bits.Mul64(absUint64(a), absUint64(b))
	if hi >= uint64(FixedScalar) {
		return 0, exception.ErrOverflow
	}
	q, _ := bits.Div64(hi, lo, uint64(FixedScalar))
	if q > math.MaxInt64 {
		return 0, exception.ErrOverflow
	}
	if neg {
		return -int64(q), nil
	}
	return int64(q), nil
}

func absUint64(v int64) uint64 {
	if v < 0 {
		return uint64(^v) + 1
	}
	return uint64(v)
}

// formatRaw renders raw with exactly precision fractional digits.
func formatRaw(raw int64, precision uint8) string {
	var tmp [40]byte
	return string(appendRaw(tmp[:0], raw, precision))
}

func appendRaw(buf []byte, raw int64, precision uint8) []byte {
	if precision > FixedPrecision {
		precision = FixedPrecision
	}
	value := raw / pow10[FixedPrecision-precision]
	scale := int(precision)
	if scale == 0 {
		return strconv.AppendInt(buf, value, 10)
	}

	neg := value < 0
	u := absUint64(value)

	var tmp [32]byte
	digits := strconv.AppendUint(tmp[:0], u, 10)

	if neg {
		buf = append(buf, '-')
	}

	if len(digits) <= scale {
		buf = append(buf, '0', '.')
		for i := 0; i < scale-len(digits); i++ {
			buf = append(buf, '0')
		}
		return append(buf, digits...)
	}

	idx := len(digits) - scale
	buf = append(buf, digits[:idx]...)
	buf = append(buf, '.')
	return append(buf, digits[idx:]...)
}
