package audit

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

var csvHeader = []string{
	"id", "timestamp", "operation", "session_id", "user_id", "tenant_id",
	"model_version", "confidence_score", "execution_time_ms",
	"input_validation", "output_validation", "consistency_checks",
}

type exportBundle struct {
	Anchor     string      `json:"anchor"`
	ChainHead  string      `json:"chain_head"`
	Operations []Operation `json:"operations"`
}

// Export renders every retained operation as "json" or "csv".
func (l *Logger) Export(format string) ([]byte, error) {
	ops := l.Operations()
	switch strings.ToLower(format) {
	case FormatJSON:
		b := exportBundle{Anchor: l.Anchor(), ChainHead: l.Head(), Operations: ops}
		out, err := json.MarshalIndent(b, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("export json: %w", err)
		}
		return out, nil
	case FormatCSV:
		return exportCSV(ops), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// exportCSV quotes every field, doubling embedded quotes.
func exportCSV(ops []Operation) []byte {
	var sb strings.Builder
	writeRow(&sb, csvHeader)
	for _, op := range ops {
		writeRow(&sb, []string{
			op.ID,
			op.Timestamp.Format("2006-01-02T15:04:05.000000000Z07:00"),
			op.Operation,
			op.Metadata.SessionID,
			op.Metadata.UserID,
			op.Metadata.TenantID,
			op.Metadata.ModelVersion,
			strconv.FormatFloat(op.Metadata.ConfidenceScore, 'f', -1, 64),
			strconv.FormatFloat(op.Metadata.ExecutionTimeMs, 'f', -1, 64),
			strconv.FormatBool(op.Validation.InputValidation),
			strconv.FormatBool(op.Validation.OutputValidation),
			strconv.FormatBool(op.Validation.ConsistencyChecks),
		})
	}
	return []byte(sb.String())
}

func writeRow(sb *strings.Builder, fields []string) {
	for i, f := range fields {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('"')
		sb.WriteString(strings.ReplaceAll(f, `"`, `""`))
		sb.WriteByte('"')
	}
	sb.WriteByte('\n')
}
