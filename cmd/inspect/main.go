package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/s8ken/yseeku-platform-sub012/internal/audit"
	"github.com/s8ken/yseeku-platform-sub012/internal/session"
)

// #region main

func main() {
	auditDB := flag.String("audit-db", "", "path to the audit SQLite database")
	sessionDB := flag.String("session-db", "", "path to the session SQLite database")
	sessionID := flag.String("session", "", "restrict output to one session")
	last := flag.Int("last", 20, "show N most recent operations or scores")
	export := flag.String("export", "", "export the audit log: json | csv")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *auditDB == "" && *sessionDB == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --audit-db path [--session id] [--last N] [--export json|csv] [--json]")
		fmt.Fprintln(os.Stderr, "       inspect --session-db path --session id [--last N] [--json]")
		os.Exit(2)
	}

	ctx := context.Background()
	code := 0
	if *auditDB != "" {
		code = max(code, runAuditMode(ctx, *auditDB, *sessionID, *last, *export, *jsonOut))
	}
	if *sessionDB != "" {
		if *sessionID == "" {
			fmt.Fprintln(os.Stderr, "--session is required with --session-db")
			os.Exit(2)
		}
		code = max(code, runSessionMode(ctx, *sessionDB, *sessionID, *last, *jsonOut))
	}
	os.Exit(code)
}

// #endregion main

// #region audit-mode

func runAuditMode(ctx context.Context, path, sessionID string, last int, export string, jsonOut bool) int {
	store, err := audit.NewSQLiteStore(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open audit db: %v\n", err)
		return 2
	}
	defer store.Close()

	ops, err := store.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load operations: %v\n", err)
		return 2
	}

	// integrity failures are reported, never repaired
	log, verifyErr := audit.Restore(ops, audit.Config{AlgorithmVersion: audit.DefaultConfig().AlgorithmVersion})
	if verifyErr != nil {
		fmt.Fprintf(os.Stderr, "INTEGRITY FAILURE: %v\n", verifyErr)
		log = nil
	}

	if export != "" {
		if log == nil {
			fmt.Fprintln(os.Stderr, "refusing to export a broken chain")
			return 1
		}
		out, err := log.Export(export)
		if err != nil {
			fmt.Fprintf(os.Stderr, "export: %v\n", err)
			return 2
		}
		fmt.Println(string(out))
		return 0
	}

	if sessionID != "" {
		filtered := ops[:0:0]
		for _, op := range ops {
			if op.Metadata.SessionID == sessionID {
				filtered = append(filtered, op)
			}
		}
		ops = filtered
	}
	if last > 0 && len(ops) > last {
		ops = ops[len(ops)-last:]
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(struct {
			IntegrityVerified bool              `json:"integrity_verified"`
			Operations        []audit.Operation `json:"operations"`
		}{verifyErr == nil, ops})
	} else {
		fmt.Printf("%-6s| %-24s| %-22s| %-12s| %-6s| %-5s| %s\n", "Seq", "Timestamp", "Operation", "Session", "Conf", "Valid", "Hash")
		fmt.Printf("%-6s+%-25s+%-23s+%-13s+%-7s+%-6s+%s\n",
			"------", "-------------------------", "-----------------------", "-------------", "-------", "------", "------------")
		for _, op := range ops {
			v := op.Validation
			valid := "ok"
			if !v.InputValidation || !v.OutputValidation || !v.ConsistencyChecks {
				valid = "FAIL"
			}
			fmt.Printf("%-6d| %-24s| %-22s| %-12s| %-6.3f| %-5s| %s\n",
				op.Sequence, op.Timestamp.Format("2006-01-02T15:04:05.000"), truncate(op.Operation, 22),
				truncate(op.Metadata.SessionID, 12), op.Metadata.ConfidenceScore, valid, truncate(op.Hash, 19))
		}
		status := "verified"
		if verifyErr != nil {
			status = "BROKEN"
		}
		fmt.Printf("\n%d operations shown, chain %s\n", len(ops), status)
	}
	if verifyErr != nil {
		return 1
	}
	return 0
}

// #endregion audit-mode

// #region session-mode

func runSessionMode(ctx context.Context, path, sessionID string, last int, jsonOut bool) int {
	store, err := session.NewSQLiteStore(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open session db: %v\n", err)
		return 2
	}
	defer store.Close()

	rec, err := store.Get(ctx, sessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	history, err := store.History(ctx, sessionID, last)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(struct {
			Record  session.Record  `json:"record"`
			History []session.Score `json:"history"`
		}{rec, history})
		return 0
	}

	fmt.Printf("Session %s: %d turns, last r_m %.3f, decay turns %d, updated %s\n\n",
		rec.SessionID, rec.Turns, rec.State.LastRM, rec.State.DecayTurns, rec.State.UpdatedAt.Format("2006-01-02T15:04:05"))
	fmt.Printf("%-6s| %-7s| %s\n", "Turn", "r_m", "Status")
	fmt.Printf("%-6s+%-8s+%s\n", "------", "--------", "----------------------")
	for _, s := range history {
		fmt.Printf("%-6d| %-7.3f| %s\n", s.Turn, s.RM, s.Status)
	}
	return 0
}

// #endregion session-mode

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
