package pool

import (
	"testing"

	"github.com/nexus-trading/launchwatch/internal/xrpl"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputeMetrics(t *testing.T) {
	token := xrpl.IssuedAmount("ABC", testIssuer, dec("800000"))
	xrp := xrpl.DropsAmount(dec("40000000"))

	m, err := ComputeMetrics("1,000,000", token, xrp)
	require.NoError(t, err)

	assert.True(t, m.Liquidity.Equal(dec("40")), m.Liquidity.String())
	assert.True(t, m.PoolSupply.Equal(dec("800000")))
	assert.True(t, m.InitialPrice.Equal(dec("0.00005")), m.InitialPrice.String())
	assert.Equal(t, "20.00", FormatPercent(m.DevAllocationPercent))
}

func TestComputeMetrics_HugePoolSupply(t *testing.T) {
	tests := []struct {
		name      string
		supply    string
		drops     string
		tokens    string
		price     string
		formatted string
	}{
		{"1e12 tokens", "1,000,000,000,000", "1234567", "1000000000000", "0.000000000001234567", "1.23457e-12"},
		{"1e17 tokens", "100,000,000,000,000,000", "1000000", "100000000000000000", "0.00000000000000001", "1.00000e-17"},
		{"1e17 tokens for 2 XRP", "200,000,000,000,000,000", "2000000", "100000000000000000", "0.00000000000000002", "2.00000e-17"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := xrpl.IssuedAmount("ABC", testIssuer, dec(tt.tokens))
			xrp := xrpl.DropsAmount(dec(tt.drops))

			m, err := ComputeMetrics(tt.supply, xrp, token)
			require.NoError(t, err)
			assert.True(t, m.InitialPrice.Equal(dec(tt.price)), m.InitialPrice.String())
			assert.Equal(t, tt.formatted, FormatPrice(m.InitialPrice))
		})
	}
}

func TestComputeMetrics_RepeatingPrice(t *testing.T) {
	// 1 XRP over 3e15 tokens has no finite decimal form.
	token := xrpl.IssuedAmount("ABC", testIssuer, dec("3000000000000000"))
	xrp := xrpl.DropsAmount(dec("1000000"))

	m, err := ComputeMetrics("3,000,000,000,000,000", token, xrp)
	require.NoError(t, err)
	assert.Equal(t, "3.33333e-16", FormatPrice(m.InitialPrice))
	assert.Equal(t, "0.00", FormatPercent(m.DevAllocationPercent))
}

func TestComputeMetrics_ReserveOrder(t *testing.T) {
	token := xrpl.IssuedAmount("ABC", testIssuer, dec("500"))
	xrp := xrpl.DropsAmount(dec("1000000"))

	a, err := ComputeMetrics("1000", token, xrp)
	require.NoError(t, err)
	b, err := ComputeMetrics("1000", xrp, token)
	require.NoError(t, err)

	assert.True(t, a.InitialPrice.Equal(b.InitialPrice))
	assert.True(t, a.DevAllocationPercent.Equal(dec("50")))
}

func TestComputeMetrics_Errors(t *testing.T) {
	token := xrpl.IssuedAmount("ABC", testIssuer, dec("800000"))
	xrp := xrpl.DropsAmount(dec("40000000"))
	emptyPool := xrpl.IssuedAmount("ABC", testIssuer, decimal.Zero)
	other := xrpl.IssuedAmount("USD", testIssuer, dec("10"))

	tests := []struct {
		name     string
		supply   string
		a, b     xrpl.Amount
		expected error
	}{
		{"zero pool supply", "1,000,000", emptyPool, xrp, ErrZeroSupply},
		{"zero announced supply", "0", token, xrp, ErrZeroSupply},
		{"two native reserves", "1,000,000", xrp, xrp, ErrReserveShape},
		{"two token reserves", "1,000,000", token, other, ErrReserveShape},
		{"unparseable supply", "lots", token, xrp, ErrInvalidSupply},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeMetrics(tt.supply, tt.a, tt.b)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestComputeMetrics_NegativeDevAllocation(t *testing.T) {
	// More tokens in the pool than announced is reported as is.
	token := xrpl.IssuedAmount("ABC", testIssuer, dec("1200"))
	xrp := xrpl.DropsAmount(dec("1000000"))

	m, err := ComputeMetrics("1000", token, xrp)
	require.NoError(t, err)
	assert.Equal(t, "-20.00", FormatPercent(m.DevAllocationPercent))
}

func TestParseSupply(t *testing.T) {
	d, err := ParseSupply(" 1,000,000 ")
	require.NoError(t, err)
	assert.True(t, d.Equal(dec("1000000")))

	d, err = ParseSupply("2500.5")
	require.NoError(t, err)
	assert.True(t, d.Equal(dec("2500.5")))

	_, err = ParseSupply("")
	assert.ErrorIs(t, err, ErrInvalidSupply)
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"0.00005", "0.0000500000"},
		{"0.0000625", "0.0000625000"},
		{"1", "1.00000"},
		{"0.000001", "0.00000100000"},
		{"0.0000001234567", "1.23457e-7"},
		{"999999.4", "999999"},
		{"999999.5", "1.00000e+6"},
		{"123456789", "1.23457e+8"},
		{"0.333333333333", "0.333333"},
		{"0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatPrice(dec(tt.in)))
		})
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "40", FormatAmount(dec("40")))
	assert.Equal(t, "800,000", FormatAmount(dec("800000")))
	assert.Equal(t, "1,234.5", FormatAmount(dec("1234.5")))
	assert.Equal(t, "0.123", FormatAmount(dec("0.12345")))
}
