package report

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

// WorkbookContentType is the media type of the .xlsx rendition
const WorkbookContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Sheet names of the report workbook
const (
	SummarySheet   = "Summary"
	ProcessedSheet = "Processed"
	FailedSheet    = "Failed"
)

// Workbook renders report as an .xlsx file with a summary sheet and one sheet per item list
func Workbook(report *FinalReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}

	completed := ""
	if report.ProcessingCompletedAt != nil {
		completed = report.ProcessingCompletedAt.Format(time.RFC3339)
	}
	institutionID := ""
	if report.InstitutionID != nil {
		institutionID = fmt.Sprint(*report.InstitutionID)
	}

	summary := [][]any{
		{"Report type", report.ReportType},
		{"Job ID", report.JobID},
		{"Institution", report.InstitutionCode},
		{"Institution ID", institutionID},
		{"Generated at", report.GeneratedAt.Format(time.RFC3339)},
		{"Processing started at", report.ProcessingStartedAt.Format(time.RFC3339)},
		{"Processing completed at", completed},
		{"Total items", report.Summary.TotalItems},
		{"Total batches", report.Summary.TotalBatches},
		{"Processed", report.Summary.Processed},
		{"Failed", report.Summary.Failed},
	}
	for i, row := range summary {
		if err := setRow(f, SummarySheet, i+1, row); err != nil {
			return nil, err
		}
	}
	_ = f.SetColWidth(SummarySheet, "A", "A", 24)
	_ = f.SetColWidth(SummarySheet, "B", "B", 40)

	if err := writeEntries(f, ProcessedSheet, []any{"Item", "Institution", "Processed at"}, report.ProcessedItems, false); err != nil {
		return nil, err
	}
	if err := writeEntries(f, FailedSheet, []any{"Item", "Institution", "Processed at", "Reason"}, report.FailedItems, true); err != nil {
		return nil, err
	}

	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeEntries(f *excelize.File, sheet string, headers []any, entries []Entry, withReason bool) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}
	if err := setRow(f, sheet, 1, headers); err != nil {
		return err
	}
	for i, e := range entries {
		row := []any{e.ItemKey, e.InstitutionCode, e.ProcessedAt.Format(time.RFC3339)}
		if withReason {
			row = append(row, e.Reason)
		}
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(sheet, "A", "A", 20)
	_ = f.SetColWidth(sheet, "C", "C", 22)
	if withReason {
		_ = f.SetColWidth(sheet, "D", "D", 48)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}
