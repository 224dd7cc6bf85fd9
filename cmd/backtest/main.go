// Command backtest replays a recorded price series from a CSV file
// through the trading engine and prints the resulting performance.
//
// Usage:
//
//	go run ./cmd/backtest --csv=prices.csv --dips=60 --risk=55 --balance=1000
//
// The CSV has one sample per row: "time,price" with time in epoch
// milliseconds, or a single "price" column with synthetic timestamps.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"cryptobot/internal/model"
	"cryptobot/internal/scheduler"
	"cryptobot/internal/session"
)

func main() {
	csvPath := flag.String("csv", "", "Path to the price series CSV (required)")
	pair := flag.String("pair", "BTC-USD", "Trading pair label")
	dips := flag.Float64("dips", 50, "Dips sensitivity 0-100")
	risk := flag.Float64("risk", 50, "Risk level 0-100")
	stopLoss := flag.Float64("stoploss", 5, "Stop loss percentage")
	sellTrigger := flag.Float64("selltrigger", 0, "Sell trigger percentage (0 disables)")
	balance := flag.Float64("balance", 1000, "Initial quote balance")
	tradePct := flag.Float64("tradepct", 50, "Trade amount as percent of balance")
	maxPos := flag.Int("maxpos", 1, "Max concurrent positions")
	flag.Parse()

	if *csvPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	points, err := loadSeries(*csvPath)
	if err != nil {
		log.Fatalf("[backtest] load series: %v", err)
	}
	if len(points) == 0 {
		log.Fatal("[backtest] empty price series")
	}

	settings := model.DefaultSettings()
	settings.TradingPair = *pair
	settings.DipsSensitivity = *dips
	settings.RiskLevel = *risk
	settings.StopLossPercentage = *stopLoss
	settings.SellTriggerPercentage = *sellTrigger
	settings.InitialBalance = *balance
	settings.TradeAmountPercentage = *tradePct
	settings.MaxConcurrentPositions = *maxPos

	// Manual scheduler: the replay is driven as fast as the engine can
	// process it, no wall-clock pacing.
	man := scheduler.NewManual()
	sess := session.New(session.Config{
		NewScheduler: func() scheduler.Scheduler { return man },
	})

	ctx := context.Background()
	if err := sess.Start(ctx, session.StartRequest{Settings: settings, ReplayData: points}); err != nil {
		log.Fatalf("[backtest] start: %v", err)
	}
	for man.Advance() {
	}

	printSummary(sess.GetSnapshot(ctx), len(points))
}

// loadSeries parses the CSV into price points. A header row is skipped
// automatically.
func loadSeries(path string) ([]model.PricePoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var points []model.PricePoint
	line := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++

		var tsField, priceField string
		switch len(record) {
		case 1:
			priceField = record[0]
		default:
			tsField, priceField = record[0], record[1]
		}

		price, err := strconv.ParseFloat(strings.TrimSpace(priceField), 64)
		if err != nil {
			if line == 1 {
				continue // header
			}
			return nil, fmt.Errorf("line %d: bad price %q", line, priceField)
		}

		ts := int64(len(points)+1) * 1000
		if tsField != "" {
			parsed, err := strconv.ParseInt(strings.TrimSpace(tsField), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad time %q", line, tsField)
			}
			ts = parsed
		}
		points = append(points, model.PricePoint{Time: ts, Price: price})
	}
	return points, nil
}

func printSummary(snap *model.Snapshot, samples int) {
	buys, sells := 0, 0
	for _, t := range snap.Trades {
		if t.Type == model.SideBuy {
			buys++
		} else {
			sells++
		}
	}
	finalValue := snap.Account.Value(snap.CurrentPrice)

	fmt.Println()
	fmt.Println("========== BACKTEST COMPLETE ==========")
	fmt.Printf("  Pair:            %s\n", snap.Settings.TradingPair)
	fmt.Printf("  Samples:         %d\n", samples)
	fmt.Printf("  Trades:          %d (%d buys, %d sells)\n", len(snap.Trades), buys, sells)
	fmt.Printf("  Open positions:  %d\n", len(snap.OpenPositions))
	fmt.Printf("  Final value:     %.2f (started %.2f)\n", finalValue, snap.Settings.InitialBalance)
	fmt.Printf("  Profit:          %+.2f (%+.2f%%)\n", snap.Profit, snap.Profit/snap.Settings.InitialBalance*100)
	fmt.Printf("  Low watermark:   %.2f\n", snap.LowWatermark)
	fmt.Printf("  High watermark:  %.2f\n", snap.HighWatermark)
	fmt.Println("=======================================")

	if len(snap.Trades) > 0 {
		fmt.Println("\nLast trades:")
		start := len(snap.Trades) - 5
		if start < 0 {
			start = 0
		}
		for _, t := range snap.Trades[start:] {
			fmt.Printf("  #%d %s %.6f @ %.2f (%s)\n", t.ID, t.Type, t.Amount, t.Price, t.Reason)
		}
	}
}
