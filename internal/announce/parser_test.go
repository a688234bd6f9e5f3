package announce

import (
	"testing"
	"time"

	"github.com/nexus-trading/launchwatch/internal/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const issuer = "rAbcDEFGHJKMNPQRSTUVWXYZ23456789"

const announcement = `🆕 New launch on FirstLedger
📈 ABC
Issuer: ` + issuer + `
Supply: 1,000,000
Trustline: https://firstledger.net/token/` + issuer + `/ABC`

func TestParse_WellFormed(t *testing.T) {
	a, ok := Parse(announcement)
	require.True(t, ok)
	assert.Equal(t, Announcement{Token: "ABC", Issuer: issuer, Supply: "1,000,000"}, a)
}

func TestParse_OrderDoesNotMatter(t *testing.T) {
	text := "Supply: 42\nsent by " + issuer + "\n📈 XYZ"
	a, ok := Parse(text)
	require.True(t, ok)
	assert.Equal(t, Announcement{Token: "XYZ", Issuer: issuer, Supply: "42"}, a)
}

func TestParse_MissingAnyRuleIsNoMatch(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"no ticker", "Issuer: " + issuer + "\nSupply: 1,000"},
		{"no issuer", "📈 ABC\nSupply: 1,000"},
		{"no supply", "📈 ABC\nIssuer: " + issuer},
		{"empty ticker", "📈 \nIssuer: " + issuer + "\nSupply: 1,000"},
		{"empty supply", "📈 ABC\nIssuer: " + issuer + "\nSupply: "},
		{"issuer too short", "📈 ABC\nIssuer: rShort12345\nSupply: 1,000"},
		{"issuer outside alphabet", "📈 ABC\nIssuer: rAbc0OIlDEFGHJKMNPQRSTUVWXYZ23\nSupply: 1,000"},
		{"issuer embedded in word", "📈 ABC\nIssuer: xrAbcDEFGHJKMNPQRSTUVWXYZ23456789\nSupply: 1,000"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Parse(tt.text)
			assert.False(t, ok)
		})
	}
}

func TestParse_TrimsCaptures(t *testing.T) {
	a, ok := Parse("📈 ABC   \r\n" + issuer + "\nSupply:  500,000 \n")
	require.True(t, ok)
	assert.Equal(t, "ABC", a.Token)
	assert.Equal(t, "500,000", a.Supply)
}

func TestParse_TickerIsRestOfLine(t *testing.T) {
	a, ok := Parse("📈 Moon Token\n" + issuer + "\nSupply: 1")
	require.True(t, ok)
	assert.Equal(t, "Moon Token", a.Token)
}

func TestAnnouncement_Fact(t *testing.T) {
	at := time.Date(2024, 3, 1, 14, 30, 0, 0, time.FixedZone("CET", 3600))
	fact := Announcement{Token: "ABC", Issuer: issuer, Supply: "1,000,000"}.Fact(at)

	assert.Equal(t, bus.LaunchFact{
		Token:     "ABC",
		Issuer:    issuer,
		Supply:    "1,000,000",
		Timestamp: time.Date(2024, 3, 1, 13, 30, 0, 0, time.UTC),
		Source:    "firstledger.net",
	}, fact)
}
