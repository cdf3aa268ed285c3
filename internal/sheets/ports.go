package sheets

import (
	"context"

	"tripstats/internal/core"
)

// Ports for outbound report adapters.
type (
	// ReportWriter publishes a user's summary tables to a spreadsheet.
	ReportWriter interface {
		// WriteReport replaces the user's report with the given summary.
		WriteReport(ctx context.Context, userID int64, summary core.Summary) error
		// ClearReport empties the user's report.
		ClearReport(ctx context.Context, userID int64) error
	}
)
