package main

import (
	"fmt"
	"io"

	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/analysis"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/model"
	"github.com/andreyvoland980-afk/xrp-analysis-spa/internal/notification"
)

// PrintEvaluation writes a human-readable report of ev: the summary box, the
// level table and the last rows of the indicator frame.
func PrintEvaluation(w io.Writer, source string, ev *model.Evaluation, rows int) {
	price := notification.FormatPrice
	opt := notification.FormatOptional

	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔══════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║              XRP SIGNAL ANALYSIS             ║")
	fmt.Fprintln(w, "╠══════════════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Source:       %-29s ║\n", source)
	fmt.Fprintf(w, "║  Points:       %-29d ║\n", ev.Points)
	fmt.Fprintf(w, "║  Last close:   %-29s ║\n", price(ev.LastClose))
	fmt.Fprintf(w, "║  Up / Down:    %-29s ║\n",
		fmt.Sprintf("%.1f%% / %.1f%%", ev.Probability.Up*100, ev.Probability.Down*100))
	fmt.Fprintf(w, "║  Projection:   %-29s ║\n",
		fmt.Sprintf("%+.2f%% -> %s", ev.Projection.Pct, price(ev.Projection.Target)))
	fmt.Fprintf(w, "║  Signal:       %-29s ║\n",
		fmt.Sprintf("%s (L %d%% / S %d%%)", ev.Signal.Side, ev.Signal.LongPct, ev.Signal.ShortPct))
	fmt.Fprintf(w, "║  Entry:        %-29s ║\n", opt(ev.Signal.Entry))
	fmt.Fprintf(w, "║  Stop loss:    %-29s ║\n", opt(ev.Signal.StopLoss))
	fmt.Fprintf(w, "║  Take profit:  %-29s ║\n", opt(ev.Signal.TakeProfit))
	fmt.Fprintln(w, "╚══════════════════════════════════════════════╝")
	fmt.Fprintf(w, "  %s\n", ev.Signal.Reason)
	fmt.Fprintf(w, "  components: rsi_tilt=%.3f ma_trend=%.3f momentum=%.3f\n",
		ev.Components.RSITilt, ev.Components.MATrend, ev.Components.Momentum)

	if len(ev.Levels) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  %-12s %-6s %s\n", "LEVEL", "HITS", "KIND")
		for _, l := range ev.Levels {
			fmt.Fprintf(w, "  %-12s %-6d %s\n", price(l.Price), l.Hits, analysis.Classify(l, ev.LastClose))
		}
	}

	frame := ev.Frame
	if rows <= 0 || len(frame) == 0 {
		return
	}
	if len(frame) > rows {
		frame = frame[len(frame)-rows:]
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %-17s %-10s %-10s %-10s %-7s %-10s\n", "TIME", "CLOSE", "SMA20", "SMA50", "RSI", "HIST")
	for _, r := range frame {
		fmt.Fprintf(w, "  %-17s %-10s %-10s %-10s %-7s %-10s\n",
			r.Time.UTC().Format("2006-01-02 15:04"),
			price(r.Close), opt(r.SMA20), opt(r.SMA50), fixed(r.RSI, 1), fixed(r.Histogram, 5))
	}
}

func fixed(v *float64, prec int) string {
	if v == nil {
		return "—"
	}
	return fmt.Sprintf("%.*f", prec, *v)
}

// PrintExits lists exit events newest first with the move from entry.
func PrintExits(w io.Writer, exits []model.ExitEvent) {
	if len(exits) == 0 {
		fmt.Fprintln(w, "  no exits recorded")
		return
	}
	fmt.Fprintf(w, "  %-17s %-14s %-6s %-10s %-10s %s\n", "TIME", "KIND", "SIDE", "ENTRY", "EXIT", "MOVE")
	for _, ev := range exits {
		pos := model.Position{Side: ev.Side, Entry: ev.Entry}
		fmt.Fprintf(w, "  %-17s %-14s %-6s %-10s %-10s %+.2f%%\n",
			ev.At.UTC().Format("2006-01-02 15:04"), ev.Kind, ev.Side,
			notification.FormatPrice(ev.Entry), notification.FormatPrice(ev.Price), pos.PnLPct(ev.Price)*100)
	}
}
