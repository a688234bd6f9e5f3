package xrpl

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIssuer = "rPEPPER7kfTD9w2To4CQk6UCfuHM9c6GDY"

func TestAmount_UnmarshalDrops(t *testing.T) {
	var a Amount
	require.NoError(t, json.Unmarshal([]byte(`"50000000"`), &a))

	assert.True(t, a.IsNative())
	assert.Equal(t, NativeCurrency, a.Currency)
	assert.True(t, a.XRP().Equal(decimal.NewFromInt(50)))
}

func TestAmount_UnmarshalIssued(t *testing.T) {
	var a Amount
	require.NoError(t, json.Unmarshal([]byte(`{"currency":"ABC","issuer":"`+testIssuer+`","value":"800000"}`), &a))

	assert.False(t, a.IsNative())
	assert.Equal(t, "ABC", a.Currency)
	assert.Equal(t, testIssuer, a.Issuer)
	assert.True(t, a.Value.Equal(decimal.NewFromInt(800000)))
}

func TestAmount_UnmarshalScientificValue(t *testing.T) {
	var a Amount
	require.NoError(t, json.Unmarshal([]byte(`{"currency":"ABC","issuer":"`+testIssuer+`","value":"1.5e6"}`), &a))
	assert.True(t, a.Value.Equal(decimal.NewFromInt(1500000)))
}

func TestAmount_UnmarshalErrors(t *testing.T) {
	for _, in := range []string{`"abc"`, `{"issuer":"x","value":"1"}`, `{"currency":"ABC","value":"x"}`, `42`} {
		var a Amount
		assert.Error(t, json.Unmarshal([]byte(in), &a), in)
	}
}

func TestAmount_MarshalKeepsShape(t *testing.T) {
	out, err := json.Marshal(DropsAmount(decimal.NewFromInt(12)))
	require.NoError(t, err)
	assert.JSONEq(t, `"12"`, string(out))

	out, err = json.Marshal(IssuedAmount("ABC", testIssuer, decimal.RequireFromString("1.5")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"currency":"ABC","issuer":"`+testIssuer+`","value":"1.5"}`, string(out))
}

func TestAsset_NativeOmitsIssuer(t *testing.T) {
	out, err := json.Marshal(NativeAsset)
	require.NoError(t, err)
	assert.JSONEq(t, `{"currency":"XRP"}`, string(out))
}

func TestEncodeCurrency(t *testing.T) {
	assert.Equal(t, "ABC", EncodeCurrency("ABC"))
	assert.Equal(t, "534F4C4F00000000000000000000000000000000", EncodeCurrency("SOLO"))
	assert.Equal(t, "534F4C4F00000000000000000000000000000000", EncodeCurrency("534F4C4F00000000000000000000000000000000"))
	long := "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	assert.Equal(t, long, EncodeCurrency(long))
}

func TestDecodeCurrency(t *testing.T) {
	assert.Equal(t, "SOLO", DecodeCurrency("534F4C4F00000000000000000000000000000000"))
	assert.Equal(t, "ABC", DecodeCurrency("ABC"))
	// LP token codes start with 0x03 and are not text.
	lp := "03930D02208264E2E40EC1B0C09E4DB96EE197B1"
	assert.Equal(t, lp, DecodeCurrency(lp))
}

func TestCurrencyMatches(t *testing.T) {
	assert.True(t, CurrencyMatches("ABC", "ABC"))
	assert.True(t, CurrencyMatches("534F4C4F00000000000000000000000000000000", "SOLO"))
	assert.True(t, CurrencyMatches("534f4c4f00000000000000000000000000000000", "SOLO"))
	assert.False(t, CurrencyMatches("ABD", "ABC"))
	assert.False(t, CurrencyMatches("534F4C4F00000000000000000000000000000000", "SOL"))
}

func TestSplitReserves(t *testing.T) {
	xrp := DropsAmount(decimal.NewFromInt(50_000_000))
	tok := IssuedAmount("ABC", testIssuer, decimal.NewFromInt(1_000_000))

	native, issued, ok := SplitReserves(tok, xrp)
	require.True(t, ok)
	assert.True(t, native.IsNative())
	assert.Equal(t, "ABC", issued.Currency)

	native, issued, ok = SplitReserves(xrp, tok)
	require.True(t, ok)
	assert.True(t, native.IsNative())
	assert.Equal(t, "ABC", issued.Currency)

	_, _, ok = SplitReserves(xrp, xrp)
	assert.False(t, ok)
	_, _, ok = SplitReserves(tok, tok)
	assert.False(t, ok)
}
