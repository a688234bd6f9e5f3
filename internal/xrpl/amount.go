package xrpl

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// NativeCurrency is the code of the ledger's base asset.
const NativeCurrency = "XRP"

// Amount is a ledger amount in either of its two wire shapes: a string of
// drops for XRP, or a {currency, issuer, value} object for issued tokens.
type Amount struct {
	Currency string          // NativeCurrency for drops amounts
	Issuer   string          // empty for drops amounts
	Value    decimal.Decimal // drops for native amounts, token units otherwise
	native   bool
}

// DropsAmount builds a native amount.
func DropsAmount(drops decimal.Decimal) Amount {
	return Amount{Currency: NativeCurrency, Value: drops, native: true}
}

// IssuedAmount builds a token amount.
func IssuedAmount(currency, issuer string, value decimal.Decimal) Amount {
	return Amount{Currency: currency, Issuer: issuer, Value: value}
}

// IsNative reports whether the amount was a drops string on the wire.
func (a Amount) IsNative() bool { return a.native }

// XRP converts a native amount from drops to whole XRP (1 XRP = 1e6 drops).
// The conversion is an exact decimal shift.
func (a Amount) XRP() decimal.Decimal {
	return a.Value.Shift(-6)
}

func (a Amount) String() string {
	if a.native {
		return a.Value.String() + " drops"
	}
	return fmt.Sprintf("%s %s.%s", a.Value.String(), a.Issuer, a.Currency)
}

type issuedJSON struct {
	Currency string `json:"currency"`
	Issuer   string `json:"issuer"`
	Value    string `json:"value"`
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var drops string
		if err := json.Unmarshal(data, &drops); err != nil {
			return err
		}
		v, err := decimal.NewFromString(drops)
		if err != nil {
			return fmt.Errorf("xrpl: drops amount %q: %w", drops, err)
		}
		*a = DropsAmount(v)
		return nil
	}

	var obj issuedJSON
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("xrpl: amount: %w", err)
	}
	if obj.Currency == "" {
		return fmt.Errorf("xrpl: issued amount without currency")
	}
	v, err := decimal.NewFromString(obj.Value)
	if err != nil {
		return fmt.Errorf("xrpl: issued amount value %q: %w", obj.Value, err)
	}
	*a = IssuedAmount(obj.Currency, obj.Issuer, v)
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if a.native {
		return json.Marshal(a.Value.String())
	}
	return json.Marshal(issuedJSON{Currency: a.Currency, Issuer: a.Issuer, Value: a.Value.String()})
}

// Asset identifies one side of an AMM. The native asset has no issuer.
type Asset struct {
	Currency string `json:"currency"`
	Issuer   string `json:"issuer,omitempty"`
}

// NativeAsset is the XRP side of every watched pool.
var NativeAsset = Asset{Currency: NativeCurrency}

// EncodeCurrency converts a ticker to its ledger currency code. Three
// character tickers are standard codes; anything else is stored as 40 hex
// characters (20 bytes, zero padded). Tickers longer than 20 bytes cannot
// exist on the ledger and are returned unchanged.
func EncodeCurrency(ticker string) string {
	if len(ticker) == 3 || isHexCode(ticker) {
		return ticker
	}
	if len(ticker) > 20 {
		return ticker
	}
	var buf [20]byte
	copy(buf[:], ticker)
	return strings.ToUpper(hex.EncodeToString(buf[:]))
}

// DecodeCurrency renders a nonstandard hex code as text. Standard codes and
// codes that do not decode to printable text are returned as is.
func DecodeCurrency(code string) string {
	if !isHexCode(code) {
		return code
	}
	raw, err := hex.DecodeString(code)
	if err != nil {
		return code
	}
	raw = bytes.TrimRight(raw, "\x00")
	for _, b := range raw {
		if b < 0x20 || b > 0x7e {
			return code
		}
	}
	if len(raw) == 0 {
		return code
	}
	return string(raw)
}

// CurrencyMatches reports whether a ledger currency code denotes ticker.
func CurrencyMatches(code, ticker string) bool {
	if code == ticker {
		return true
	}
	return strings.EqualFold(code, EncodeCurrency(ticker))
}

func isHexCode(s string) bool {
	if len(s) != 40 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
