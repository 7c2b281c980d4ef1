package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/s8ken/yseeku-platform-sub012/internal/config"
	"github.com/s8ken/yseeku-platform-sub012/internal/engine"
	"github.com/s8ken/yseeku-platform-sub012/internal/replay"
)

// #region main

func main() {
	configPath := flag.String("config", "", "path to YAML config (optional)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	turnsPath := flag.String("turns", "", "path to JSONL turns, one {\"turn_id\",\"text\"} per line")
	sessionID := flag.String("session", "replay", "session id for --turns mode")
	jsonOut := flag.Bool("json", false, "print the summary as JSON")
	flag.Parse()

	if (*fixturePath == "") == (*turnsPath == "") {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json")
		fmt.Fprintln(os.Stderr, "       replay --turns path/to/turns.jsonl [--session id]")
		os.Exit(2)
	}
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(cfg, *fixturePath, *jsonOut)
	} else {
		exitCode = runTurnsMode(cfg, *turnsPath, *sessionID, *jsonOut)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region modes

func runFixtureMode(cfg config.Config, path string, jsonOut bool) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}
	f.Config.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "fixture config: %v\n", err)
		return 2
	}

	results, ok := replayTurns(cfg, f.SessionID, f.DomainTurns())
	if !ok {
		return 2
	}
	mismatches := replay.Check(results, f.ExpectedResults)
	printResults(results, f.SessionID, jsonOut)
	for _, m := range mismatches {
		fmt.Println("DIFF", m.String())
	}
	fmt.Printf("\n%d expectations, %d diverge\n", len(f.ExpectedResults), len(mismatches))
	if len(mismatches) > 0 {
		return 1
	}
	return 0
}

type turnLine struct {
	TurnID       string `json:"turn_id"`
	Text         string `json:"text"`
	TurnsElapsed int    `json:"turns_elapsed"`
}

func runTurnsMode(cfg config.Config, path, sessionID string, jsonOut bool) int {
	file, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open turns: %v\n", err)
		return 2
	}
	defer file.Close()

	var turns []replay.Turn
	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var tl turnLine
		if err := json.Unmarshal(sc.Bytes(), &tl); err != nil {
			fmt.Fprintf(os.Stderr, "line %d: %v\n", line, err)
			return 2
		}
		if tl.TurnID == "" {
			tl.TurnID = fmt.Sprintf("turn-%d", line)
		}
		ft := replay.FixtureTurn{TurnID: tl.TurnID, Text: tl.Text, TurnsElapsed: tl.TurnsElapsed}
		turns = append(turns, ft.ToTurn())
	}
	if err := sc.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "read turns: %v\n", err)
		return 2
	}

	results, ok := replayTurns(cfg, sessionID, turns)
	if !ok {
		return 2
	}
	printResults(results, sessionID, jsonOut)
	return 0
}

func replayTurns(cfg config.Config, sessionID string, turns []replay.Turn) ([]replay.Result, bool) {
	logger := cfg.Logging.NewLogger(os.Stderr)
	ctx := context.Background()
	eng, closeFn, err := engine.Build(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		return nil, false
	}
	defer closeFn()

	results, err := replay.Replay(ctx, eng, sessionID, turns)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		return nil, false
	}
	if !eng.VerifyIntegrity() {
		fmt.Fprintln(os.Stderr, "audit chain failed verification")
		return nil, false
	}
	return results, true
}

// #endregion modes

// #region output

func printResults(results []replay.Result, sessionID string, jsonOut bool) {
	summary := replay.Summarize(sessionID, results)
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(struct {
			Summary replay.Summary  `json:"summary"`
			Results []replay.Result `json:"results"`
		}{summary, results})
		return
	}

	fmt.Printf("%-12s| %-7s| %-7s| %-22s| %-5s| %s\n", "Turn", "r_m", "fresh", "Status", "Adv", "Drift")
	fmt.Printf("%-12s+%-8s+%-8s+%-23s+%-6s+%s\n",
		"------------", "--------", "--------", "-----------------------", "------", "------")
	for _, r := range results {
		fmt.Printf("%-12s| %-7.3f| %-7.3f| %-22s| %-5v| %v\n", r.TurnID, r.RM, r.FreshRM, r.Status, r.Adversarial, r.Drift)
	}
	fmt.Printf("\nRun %s: %d turns, mean r_m %.3f (min %.3f, max %.3f), %d adversarial, %d fallback, %d drift\n",
		summary.RunID, summary.TotalTurns, summary.MeanRM, summary.MinRM, summary.MaxRM,
		summary.Adversarial, summary.Fallbacks, summary.Drifts)
}

// #endregion output
