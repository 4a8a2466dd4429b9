// Command performance prints a win-rate report over closed alerts, and can
// push it to the Telegram trend channel.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"cryptotracker/config"
	"cryptotracker/internal/model"
	"cryptotracker/internal/notification"
	sqlitestore "cryptotracker/internal/store/sqlite"
)

func main() {
	log.SetFlags(0)
	send := flag.Bool("notify", false, "send the report to the Telegram trend channel")
	days := flag.Int("days", 0, "only include alerts created in the last N days (0 = all)")
	flag.Parse()

	cfg := config.Load()
	store, err := sqlitestore.Open(sqlitestore.Config{Path: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[performance] sqlite init failed: %v", err)
	}
	defer store.Close()

	closed, err := store.ClosedAlerts()
	if err != nil {
		log.Fatalf("[performance] load alerts: %v", err)
	}
	if *days > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -*days)
		filtered := closed[:0]
		for _, a := range closed {
			if a.CreatedAt.After(cutoff) {
				filtered = append(filtered, a)
			}
		}
		closed = filtered
	}

	report := buildReport(closed)
	printReport(os.Stdout, report)

	if *send {
		if cfg.TelegramBotToken == "" {
			log.Fatalf("[performance] -notify requires TELEGRAM_BOT_TOKEN")
		}
		tg := notification.NewTelegram(notification.TelegramConfig{
			BotToken:      cfg.TelegramBotToken,
			DefaultChatID: cfg.TelegramTrendChatID,
		})
		if err := tg.Send(context.Background(), notification.ChannelTrend, formatReport(report)); err != nil {
			log.Fatalf("[performance] send: %v", err)
		}
		log.Println("[performance] report sent")
	}
}

// report aggregates closed alerts by outcome.
type report struct {
	Total    int
	ByResult map[int]int
	Wins     int // closed at any TP, or stopped after banking one
	Losses   int // stopped with nothing banked
}

// buildReport counts outcomes. An alert that stopped out after reaching a TP
// still banked that level, so it counts toward wins, not losses.
func buildReport(closed []model.Alert) report {
	r := report{ByResult: make(map[int]int)}
	for _, a := range closed {
		r.Total++
		r.ByResult[a.Result]++
		switch a.Result {
		case model.ResultTP1, model.ResultTP2, model.ResultTP3,
			model.ResultSLAfterTP1, model.ResultSLAfterTP2:
			r.Wins++
		case model.ResultSL:
			r.Losses++
		}
	}
	return r
}

var resultRows = []struct {
	code  int
	label string
}{
	{model.ResultTP3, "TP3"},
	{model.ResultSLAfterTP2, "SL after TP2"},
	{model.ResultSLAfterTP1, "SL after TP1"},
	{model.ResultSL, "SL"},
}

func printReport(w *os.File, r report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "outcome\tcount\tshare\n")
	for _, row := range resultRows {
		n := r.ByResult[row.code]
		share := 0.0
		if r.Total > 0 {
			share = float64(n) / float64(r.Total) * 100
		}
		fmt.Fprintf(tw, "%s\t%d\t%.1f%%\n", row.label, n, share)
	}
	tw.Flush()

	fmt.Fprintf(w, "\nclosed alerts: %d\n", r.Total)
	fmt.Fprintf(w, "win rate: %s\n", winRate(r))
}

func formatReport(r report) string {
	var b strings.Builder
	b.WriteString("📈 Alert performance\n")
	for _, row := range resultRows {
		if n := r.ByResult[row.code]; n > 0 {
			fmt.Fprintf(&b, "\n%s: %d", row.label, n)
		}
	}
	fmt.Fprintf(&b, "\n\nClosed: %d | win rate %s", r.Total, winRate(r))
	return b.String()
}

func winRate(r report) string {
	decided := r.Wins + r.Losses
	if decided == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", float64(r.Wins)/float64(decided)*100)
}
