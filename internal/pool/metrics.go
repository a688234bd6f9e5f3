package pool

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/nexus-trading/launchwatch/internal/xrpl"
	"github.com/shopspring/decimal"
)

var (
	// ErrZeroSupply is returned when either supply is zero, which would make
	// the price or the allocation undefined.
	ErrZeroSupply = errors.New("pool: zero supply")
	// ErrReserveShape is returned when the pool does not hold exactly one XRP
	// reserve and one token reserve.
	ErrReserveShape = errors.New("pool: reserves are not one XRP and one token amount")
	// ErrInvalidSupply is returned when the announced supply is not a number.
	ErrInvalidSupply = errors.New("pool: invalid announced supply")
)

var hundred = decimal.NewFromInt(100)

// quotientDigits is the minimum number of significant digits divide keeps.
const quotientDigits = 20

// PoolMetrics is derived at match time from the pool reserves and the
// announced supply.
type PoolMetrics struct {
	InitialPrice         decimal.Decimal // XRP per token
	Liquidity            decimal.Decimal // XRP
	PoolSupply           decimal.Decimal // tokens
	DevAllocationPercent decimal.Decimal
}

// ParseSupply reads an announced supply such as "1,000,000".
func ParseSupply(s string) (decimal.Decimal, error) {
	clean := strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidSupply, s)
	}
	return d, nil
}

// ComputeMetrics derives the pool metrics. The reserves may come in either
// order.
func ComputeMetrics(announcedSupply string, reserve, reserve2 xrpl.Amount) (PoolMetrics, error) {
	native, issued, ok := xrpl.SplitReserves(reserve, reserve2)
	if !ok {
		return PoolMetrics{}, ErrReserveShape
	}
	initial, err := ParseSupply(announcedSupply)
	if err != nil {
		return PoolMetrics{}, err
	}

	liquidity := native.XRP()
	poolSupply := issued.Value
	if poolSupply.IsZero() || initial.IsZero() {
		return PoolMetrics{}, ErrZeroSupply
	}

	return PoolMetrics{
		InitialPrice:         divide(liquidity, poolSupply),
		Liquidity:            liquidity,
		PoolSupply:           poolSupply,
		DevAllocationPercent: divide(initial.Sub(poolSupply).Mul(hundred), initial),
	}, nil
}

// magnitude returns the power of ten of the leading digit of d.
func magnitude(d decimal.Decimal) int32 {
	return int32(d.Abs().NumDigits()) + d.Exponent() - 1
}

// divide returns a/b with at least quotientDigits significant digits, however
// small the quotient. decimal.Div stops at a fixed number of decimal places.
func divide(a, b decimal.Decimal) decimal.Decimal {
	places := magnitude(b) - magnitude(a) + quotientDigits
	if places < 0 {
		places = 0
	}
	return a.DivRound(b, places)
}

// FormatPrice renders d with 6 significant digits, keeping trailing zeros.
// As with JavaScript's toPrecision(6), a value whose leading digit is below
// 1e-6 or at 1e6 and above is written in exponent form: 1.23457e-12,
// 1.23457e+8.
func FormatPrice(d decimal.Decimal) string {
	if d.IsZero() {
		return "0"
	}
	e := magnitude(d)
	rounded := d.Round(5 - e)
	if m := magnitude(rounded); m != e {
		// Rounded up to the next power of ten, e.g. 999999.5.
		e = m
		rounded = d.Round(5 - e)
	}
	if e < -6 || e >= 6 {
		sign, exp := "+", e
		if e < 0 {
			sign, exp = "-", -e
		}
		return fmt.Sprintf("%se%s%d", rounded.Shift(-e).StringFixed(5), sign, exp)
	}
	return rounded.StringFixed(5 - e)
}

// FormatAmount renders d with thousands separators and at most 3 decimals.
func FormatAmount(d decimal.Decimal) string {
	f, _ := d.Round(3).Float64()
	return humanize.Commaf(f)
}

// FormatPercent renders d with exactly 2 decimals.
func FormatPercent(d decimal.Decimal) string {
	return d.StringFixed(2)
}
