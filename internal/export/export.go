// Package export writes the operator-facing spreadsheet report: one sheet
// of episodes, one of run audit records.
package export

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"podcast-insights-go/internal/types"
)

type Source interface {
	ListEpisodes(ctx context.Context) ([]types.Episode, error)
	ListTaskLogs(ctx context.Context) ([]types.TaskLog, error)
}

type Exporter struct {
	src Source
}

func New(src Source) *Exporter {
	return &Exporter{src: src}
}

// Write builds the workbook and saves it to path.
func (e *Exporter) Write(ctx context.Context, path string) error {
	episodes, err := e.src.ListEpisodes(ctx)
	if err != nil {
		return fmt.Errorf("load episodes: %w", err)
	}
	logs, err := e.src.ListTaskLogs(ctx)
	if err != nil {
		return fmt.Errorf("load task logs: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const epSheet = "Episodes"
	f.SetSheetName(f.GetSheetName(0), epSheet)
	header := []any{"ID", "Feed", "Title", "Published", "Status", "Error", "Processed At"}
	if err := f.SetSheetRow(epSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, ep := range episodes {
		row := []any{
			ep.ID,
			ep.FeedTitle,
			ep.Title,
			formatTime(&ep.PublishedAt),
			string(ep.Status),
			ep.ErrorMessage,
			formatTime(ep.ProcessedAt),
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(epSheet, cell, &row); err != nil {
			return fmt.Errorf("write episode row: %w", err)
		}
	}

	const logSheet = "Runs"
	if _, err := f.NewSheet(logSheet); err != nil {
		return fmt.Errorf("create runs sheet: %w", err)
	}
	logHeader := []any{"ID", "Kind", "Total", "Processed", "Failed", "Detail", "Started", "Completed"}
	if err := f.SetSheetRow(logSheet, "A1", &logHeader); err != nil {
		return fmt.Errorf("write runs header: %w", err)
	}
	for i, tl := range logs {
		row := []any{
			tl.ID,
			string(tl.Kind),
			tl.Total,
			tl.Processed,
			tl.Failed,
			tl.ErrorDetail,
			formatTime(&tl.StartedAt),
			formatTime(tl.CompletedAt),
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(logSheet, cell, &row); err != nil {
			return fmt.Errorf("write run row: %w", err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}
