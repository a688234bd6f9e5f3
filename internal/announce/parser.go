package announce

import (
	"regexp"
	"strings"
	"time"

	"github.com/nexus-trading/launchwatch/internal/bus"
)

// Three independent rules. Each is searched on its own; a fact is produced
// only when all three hit the same text.
var (
	// 📈 ABC
	tickerPattern = regexp.MustCompile(`📈 (.*)`)
	// Classic ledger address: "r" followed by base58 characters (no 0, O, I, l).
	issuerPattern = regexp.MustCompile(`\b(r[1-9A-HJ-NP-Za-km-z]{24,34})\b`)
	// Supply: 1,000,000
	supplyPattern = regexp.MustCompile(`Supply: (.*)`)
)

// Announcement holds the three fields captured from an announcement.
type Announcement struct {
	Token  string
	Issuer string
	Supply string
}

// Parse extracts a token launch from free text. ok is false when any of the
// ticker, issuer address or supply label is missing; that is the common case
// and not an error.
func Parse(text string) (Announcement, bool) {
	token, ok := capture(tickerPattern, text)
	if !ok {
		return Announcement{}, false
	}
	issuer, ok := capture(issuerPattern, text)
	if !ok {
		return Announcement{}, false
	}
	supply, ok := capture(supplyPattern, text)
	if !ok {
		return Announcement{}, false
	}
	return Announcement{Token: token, Issuer: issuer, Supply: supply}, true
}

// capture returns the trimmed first group of re in text. An empty group
// counts as a miss.
func capture(re *regexp.Regexp, text string) (string, bool) {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return "", false
	}
	v := strings.TrimSpace(m[1])
	return v, v != ""
}

// Fact stamps the announcement with the detection time and origin tag.
func (a Announcement) Fact(detectedAt time.Time) bus.LaunchFact {
	return bus.LaunchFact{
		Token:     a.Token,
		Issuer:    a.Issuer,
		Supply:    a.Supply,
		Timestamp: detectedAt.UTC(),
		Source:    bus.SourceFirstLedger,
	}
}
