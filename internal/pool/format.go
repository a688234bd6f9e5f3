package pool

import (
	"fmt"

	"github.com/nexus-trading/launchwatch/internal/telegram"
)

// LiveMessage renders the "pool live" alert as MarkdownV2.
func LiveMessage(token string, m PoolMetrics) string {
	esc := telegram.Escape
	return fmt.Sprintf(
		"🚀 *AMM Pool is LIVE\\!* 🚀\n\n"+
			"*Token:* %s\n"+
			"*Initial Price:* %s XRP\n"+
			"*Liquidity:* %s XRP\n"+
			"*Pool Supply:* %s %s\n"+
			"*Dev Allocation:* %s%%\n\n"+
			"Let's trade\\! 💰",
		esc(token),
		esc(FormatPrice(m.InitialPrice)),
		esc(FormatAmount(m.Liquidity)),
		esc(FormatAmount(m.PoolSupply)), esc(token),
		esc(FormatPercent(m.DevAllocationPercent)),
	)
}
