package result

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExportResultsExcel builds an XLSX workbook of a test's reconciled
// results for the dashboard download. Scores come from a fresh
// reconciliation pass, never from the cached column.
func (s *Service) ExportResultsExcel(ctx context.Context, testID int64) ([]byte, error) {
	items, err := s.ResultsByTest(ctx, testID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	headers := []string{"student", "score", "correct", "wrong", "unanswered", "manually_corrected"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, it := range items {
		row := i + 2
		name := it.StudentName
		if name == "" {
			name = fmt.Sprintf("student #%d", it.StudentID)
		}
		values := []any{
			name,
			it.Score,
			it.Correct,
			it.Wrong,
			it.Unanswered,
			it.Corrected,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "F", 18)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}
