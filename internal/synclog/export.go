package synclog

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Sync History"

var exportHeader = []any{"Time", "Entity", "Local ID", "QuickBooks ID", "Action", "Status", "Error"}

// ExportHistory writes the filtered history as an XLSX workbook
func (r *Recorder) ExportHistory(ctx context.Context, userID uint, f Filter, w io.Writer) error {
	logs, err := r.History(ctx, userID, f)
	if err != nil {
		return err
	}

	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", exportSheet); err != nil {
		return err
	}
	if err := file.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return err
	}

	for i, entry := range logs {
		qbID, errMsg := "", ""
		if entry.QBEntityID != nil {
			qbID = *entry.QBEntityID
		}
		if entry.ErrorMessage != nil {
			errMsg = *entry.ErrorMessage
		}
		row := []any{
			entry.CreatedAt.UTC().Format(time.RFC3339),
			entry.EntityType,
			entry.EntityID,
			qbID,
			entry.Action,
			entry.Status,
			errMsg,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := file.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	_, err = file.WriteTo(w)
	return err
}
