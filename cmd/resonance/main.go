package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/s8ken/yseeku-platform-sub012/internal/config"
	"github.com/s8ken/yseeku-platform-sub012/internal/engine"
	"github.com/s8ken/yseeku-platform-sub012/internal/resonance"
	"github.com/s8ken/yseeku-platform-sub012/internal/telemetry"
)

// #region main

func main() {
	configPath := flag.String("config", "", "path to YAML config (optional)")
	sessionID := flag.String("session", "default", "session id")
	text := flag.String("text", "", "transcript text; reads stdin when empty")
	prompt := flag.String("prompt", "", "user input the transcript answers; seeds session keywords")
	perLine := flag.Bool("lines", false, "score each stdin line as a separate turn")
	export := flag.String("export", "", "write the audit log to stdout after scoring: json | csv")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger := cfg.Logging.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *sessionID, *text, *prompt, *perLine, *export); err != nil {
		logger.Error("resonance failed", "error", err)
		os.Exit(1)
	}
}

// #endregion main

// #region run

func run(ctx context.Context, cfg config.Config, logger *slog.Logger, sessionID, text, prompt string, perLine bool, export string) error {
	shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Interval:    cfg.Telemetry.Interval,
		ServiceName: cfg.Telemetry.ServiceName,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	eng, closeFn, err := engine.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	turns, err := readTurns(text, perLine, os.Stdin)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, t := range turns {
		res, err := eng.Score(ctx, engine.ScoreRequest{
			SessionID:  sessionID,
			Transcript: resonance.Transcript{Text: t, UserInput: prompt},
		})
		if err != nil {
			return err
		}
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	}

	if !eng.VerifyIntegrity() {
		return fmt.Errorf("audit chain failed verification")
	}
	if export != "" {
		out, err := eng.ExportAuditTrail(export)
		if err != nil {
			return err
		}
		fmt.Println(out)
	}
	return nil
}

func readTurns(text string, perLine bool, stdin io.Reader) ([]string, error) {
	if text != "" {
		return []string{text}, nil
	}
	if !perLine {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return []string{string(b)}, nil
	}
	var turns []string
	sc := bufio.NewScanner(stdin)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			turns = append(turns, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return turns, nil
}

// #endregion run
