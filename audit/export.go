package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// ExportFormat selects the serialization used by Export.
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
)

var csvHeader = []string{
	"timestamp", "userId", "action", "resource", "resourceId",
	"success", "riskLevel", "ipAddress", "userAgent", "details",
}

// Export writes all entries matching the filter to w. CSV rows carry the
// details map as a JSON blob in the last column.
func Export(ctx context.Context, st Store, f Filter, format ExportFormat, w io.Writer) error {
	f.Page = 1
	f.PageSize = 1 << 30
	entries, _, err := st.Query(ctx, f)
	if err != nil {
		return fmt.Errorf("audit export: %w", err)
	}

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return fmt.Errorf("audit export: %w", err)
		}
		for _, e := range entries {
			details := ""
			if len(e.Details) > 0 {
				raw, err := json.Marshal(e.Details)
				if err != nil {
					return fmt.Errorf("audit export: %w", err)
				}
				details = string(raw)
			}
			row := []string{
				e.Timestamp.UTC().Format(time.RFC3339),
				e.UserID,
				e.Action,
				e.Resource,
				e.ResourceID,
				strconv.FormatBool(e.Success),
				string(e.RiskLevel),
				e.IPAddress,
				e.UserAgent,
				details,
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("audit export: %w", err)
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		return fmt.Errorf("audit export: unknown format %q", format)
	}
}
