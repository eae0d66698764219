// Package export renders a ledger snapshot as an Excel workbook.
package export

import (
	"fmt"
	"io"
	"time"

	"mcdry/internal/storage"

	"github.com/xuri/excelize/v2"
)

const (
	MembersSheet      = "Members"
	TransactionsSheet = "Transactions"
	LeavesSheet       = "Leaves"
)

// ContentType is the MIME type of the written workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Filename returns the download name for an export taken at t.
func Filename(t time.Time) string {
	return fmt.Sprintf("mcdry-%s.xlsx", t.Format("20060102-150405"))
}

// Workbook builds a three-sheet workbook. Money columns are numeric with two
// decimals so they sum in a spreadsheet.
func Workbook(snap storage.Snapshot) (*excelize.File, error) {
	f := excelize.NewFile()

	numbers := make(map[int64]string, len(snap.Members))
	members := make([][]any, 0, len(snap.Members))
	for _, m := range snap.Members {
		numbers[m.ID] = m.Number
		members = append(members, []any{m.ID, m.Number, m.Name, m.Balance.Decimal().InexactFloat64()})
	}

	txs := make([][]any, 0, len(snap.Transactions))
	for _, t := range snap.Transactions {
		txs = append(txs, []any{
			t.ID,
			numbers[t.MemberID],
			t.Amount.Decimal().InexactFloat64(),
			t.Description,
			t.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	leaves := make([][]any, 0, len(snap.Leaves))
	for _, l := range snap.Leaves {
		leaves = append(leaves, []any{l.ID, numbers[l.MemberID], l.Date.String(), l.Reason})
	}

	sheets := []struct {
		name   string
		header []string
		rows   [][]any
		widths []float64
	}{
		{MembersSheet, []string{"ID", "Number", "Name", "Balance"}, members, []float64{8, 12, 30, 14}},
		{TransactionsSheet, []string{"ID", "Member", "Amount", "Description", "Created"}, txs, []float64{8, 12, 14, 40, 22}},
		{LeavesSheet, []string{"ID", "Member", "Date", "Reason"}, leaves, []float64{8, 12, 12, 40}},
	}

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				return nil, fmt.Errorf("rename default sheet: %w", err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", s.name, err)
		}
		if err := writeSheet(f, s.name, s.header, s.rows, s.widths); err != nil {
			return nil, err
		}
	}

	f.SetActiveSheet(0)
	return f, nil
}

// Write renders the snapshot straight to w.
func Write(w io.Writer, snap storage.Snapshot) error {
	f, err := Workbook(snap)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]any, widths []float64) error {
	for col, h := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("%s header: %w", sheet, err)
		}
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+2, err)
		}
	}

	for col, width := range widths {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, name, name, width); err != nil {
			return fmt.Errorf("%s column %s: %w", sheet, name, err)
		}
	}
	return nil
}
