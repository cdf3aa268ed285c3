package worker

import (
	"context"
	"fmt"
	"log/slog"

	"tripstats/internal/aggregate"
	"tripstats/internal/amqp"
	applog "tripstats/internal/log"
	"tripstats/internal/sheets"
	"tripstats/internal/trips"
)

// ReportWorker keeps each user's spreadsheet report in line with the trip store.
type ReportWorker struct {
	store   trips.Store
	reports sheets.ReportWriter
}

func NewReportWorker(store trips.Store, reports sheets.ReportWriter) *ReportWorker {
	return &ReportWorker{
		store:   store,
		reports: reports,
	}
}

// HandleEvent processes one trip event from AMQP. The report is always
// rebuilt from the store, so redelivered or reordered events converge on
// the current state.
func (w *ReportWorker) HandleEvent(ctx context.Context, msg *amqp.TripEvent) error {
	slog.InfoContext(ctx, "Processing trip event",
		applog.FieldMessageID, msg.ID,
		applog.FieldEventType, msg.Type,
		applog.FieldUserID, msg.UserID)

	return w.Sync(ctx, msg.UserID)
}

// Sync rewrites the user's report, or clears it when the user has no trips.
func (w *ReportWorker) Sync(ctx context.Context, userID int64) error {
	if err := trips.CheckUser(userID); err != nil {
		return err
	}
	records, err := w.store.List(ctx, userID)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}

	if len(records) == 0 {
		if err := w.reports.ClearReport(ctx, userID); err != nil {
			return fmt.Errorf("clear report: %w", err)
		}
		slog.InfoContext(ctx, "Cleared trip report", applog.FieldOperation, applog.OpSync, applog.FieldUserID, userID)
		return nil
	}

	summary := aggregate.Aggregate(records)
	if err := w.reports.WriteReport(ctx, userID, summary); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	slog.InfoContext(ctx, "Synced trip report",
		applog.FieldOperation, applog.OpSync,
		applog.FieldUserID, userID,
		"trips", summary.TripCount,
		"cars", summary.CarCount,
		"drivers", summary.DriverCount)
	return nil
}
