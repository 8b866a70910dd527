package notification

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/model"
)

// FormatPrice renders a price for alert text: whole units with thousands
// separators at or above 1000, otherwise up to 6 decimals with trailing zeros
// trimmed. Non-finite values render as "—".
func FormatPrice(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "—"
	}
	d := decimal.NewFromFloat(v)
	if d.Abs().GreaterThanOrEqual(decimal.NewFromInt(1000)) {
		return groupThousands(d.Round(0).String())
	}
	return d.Round(6).String()
}

// FormatOptional is FormatPrice for an optional price; nil renders as "—".
func FormatOptional(v *float64) string {
	if v == nil {
		return "—"
	}
	return FormatPrice(*v)
}

func groupThousands(s string) string {
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// EntryAlert describes a newly opened position.
func EntryAlert(pos model.Position) Alert {
	return Alert{
		Level: AlertInfo,
		Title: fmt.Sprintf("%s opened", pos.Side),
		Message: fmt.Sprintf("%s opened @ %s | SL %s | TP %s",
			pos.Side, FormatPrice(pos.Entry), FormatOptional(pos.StopLoss), FormatOptional(pos.TakeProfit)),
	}
}

// ExitAlert describes a closed position.
func ExitAlert(ev model.ExitEvent) Alert {
	price := FormatPrice(ev.Price)
	switch ev.Kind {
	case model.ExitTakeProfit:
		return Alert{Level: AlertInfo, Title: "Take profit", Message: "Take Profit hit @ " + price}
	case model.ExitStopLoss:
		return Alert{Level: AlertWarning, Title: "Stop loss", Message: "Stop Loss hit @ " + price}
	case model.ExitMomentumFade:
		cond := "overbought"
		if ev.Side == model.SideShort {
			cond = "oversold"
		}
		return Alert{Level: AlertInfo, Title: "Momentum exit",
			Message: fmt.Sprintf("Exit (%s + momentum fade) @ %s", cond, price)}
	default:
		return Alert{Level: AlertInfo, Title: "Position closed",
			Message: fmt.Sprintf("Position closed @ %s (%s)", price, ev.Side)}
	}
}

// CrossAlert describes the price moving through a support/resistance level.
func CrossAlert(c model.LevelCross) Alert {
	dir := "above"
	if c.Direction == model.CrossDown {
		dir = "below"
	}
	return Alert{
		Level: AlertInfo,
		Title: "Level cross",
		Message: fmt.Sprintf("Price crossed %s %s (%d hits) @ %s",
			dir, FormatPrice(c.Level.Price), c.Level.Hits, FormatPrice(c.Price)),
	}
}
