package launch

import (
	"fmt"

	"github.com/nexus-trading/launchwatch/internal/bus"
	"github.com/nexus-trading/launchwatch/internal/telegram"
)

// timestampLayout matches the millisecond ISO-8601 form used on the wire.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// ConfirmedMessage renders the "new token launch confirmed" alert as
// MarkdownV2. Every value is escaped; the template literals are pre-escaped.
func ConfirmedMessage(f bus.LaunchFact) string {
	return fmt.Sprintf(
		"✅ *New token launch confirmed* ✅\n\n"+
			"*Source:* %s\n"+
			"*Ticker:* %s\n"+
			"*Issuer:* %s\n"+
			"*Total Supply:* %s\n"+
			"*Date:* %s\n\n"+
			"⏳ Waiting for AMM pool\\.\\.\\. ⏳",
		telegram.Escape(f.Source),
		telegram.Escape(f.Token),
		telegram.Escape(f.Issuer),
		telegram.Escape(f.Supply),
		telegram.Escape(f.Timestamp.UTC().Format(timestampLayout)),
	)
}
