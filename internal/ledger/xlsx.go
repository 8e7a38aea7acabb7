package ledger

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"zakaria-backend/internal/apperr"
	"zakaria-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	scheduleSheet = "Schedule"
	paymentsSheet = "Payments"
	dateLayout    = "2006-01-02"
)

var (
	scheduleHeader = []any{"EMI Number", "EMI Amount", "Due Date", "Amount Received", "Balance", "Received Date", "UTR", "Bank Details"}
	paymentsHeader = []any{"EMI Number", "Seq", "Amount Received", "Received Date", "UTR", "Bank Details"}
)

// moneyNumFmt is the built-in "0.00" number format.
const moneyNumFmt = 2

// WriteXLSX renders the ledger schedule and its payment history as a
// workbook with two sheets. Money cells are numbers carrying the "0.00"
// format; amounts are whole cents, so values below 1e13 render exactly.
func WriteXLSX(l *models.EMILedger) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", scheduleSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(paymentsSheet); err != nil {
		return nil, err
	}

	if err := f.SetSheetRow(scheduleSheet, "A1", &scheduleHeader); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(paymentsSheet, "A1", &paymentsHeader); err != nil {
		return nil, err
	}

	payRow := 2
	for i, inst := range l.Installments {
		received := ""
		if inst.ReceivedDate != nil {
			received = inst.ReceivedDate.Format(dateLayout)
		}
		row := []any{
			inst.EMINumber,
			inst.EMIAmount.InexactFloat64(),
			inst.DueDate.Format(dateLayout),
			inst.AmountReceived.InexactFloat64(),
			inst.Balance.InexactFloat64(),
			received,
			inst.UTR,
			inst.BankDetails,
		}
		if err := f.SetSheetRow(scheduleSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return nil, err
		}

		for _, p := range inst.Payments {
			prow := []any{
				inst.EMINumber,
				p.Seq,
				p.AmountReceived.InexactFloat64(),
				p.ReceivedDate.Format(dateLayout),
				p.UTR,
				p.BankDetails,
			}
			if err := f.SetSheetRow(paymentsSheet, fmt.Sprintf("A%d", payRow), &prow); err != nil {
				return nil, err
			}
			payRow++
		}
	}

	totalsRow := len(l.Installments) + 3
	totals := []any{"Total Received", l.TotalPaymentReceived.InexactFloat64(), "Total Left", l.TotalPaymentLeft.InexactFloat64()}
	if err := f.SetSheetRow(scheduleSheet, fmt.Sprintf("A%d", totalsRow), &totals); err != nil {
		return nil, err
	}

	money, err := f.NewStyle(&excelize.Style{NumFmt: moneyNumFmt})
	if err != nil {
		return nil, err
	}
	if n := len(l.Installments); n > 0 {
		// B..E covers EMI Amount, Amount Received and Balance; Due Date is text
		if err := f.SetCellStyle(scheduleSheet, "B2", fmt.Sprintf("E%d", n+1), money); err != nil {
			return nil, err
		}
	}
	for _, col := range []string{"B", "D"} {
		if err := f.SetCellStyle(scheduleSheet, fmt.Sprintf("%s%d", col, totalsRow), fmt.Sprintf("%s%d", col, totalsRow), money); err != nil {
			return nil, err
		}
	}
	if payRow > 2 {
		if err := f.SetCellStyle(paymentsSheet, "C2", fmt.Sprintf("C%d", payRow-1), money); err != nil {
			return nil, err
		}
	}

	return f.WriteToBuffer()
}

// parseDueCell accepts a text date or the raw serial of a date-typed cell.
func parseDueCell(v string) (time.Time, error) {
	if t, err := parseDate(v); err == nil {
		return t, nil
	}
	serial, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return time.Time{}, err
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, err
	}
	return truncateDay(t), nil
}

// ParseScheduleXLSX reads installment seeds from the first sheet. Columns are
// EMI number, EMI amount and due date; a header row is skipped when its first
// cell is not a number, and blank rows are ignored.
func ParseScheduleXLSX(r io.Reader) ([]InstallmentSeed, error) {
	f, err := excelize.OpenReader(r, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, apperr.InvalidInput("could not read spreadsheet")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperr.InvalidInput("spreadsheet has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperr.InvalidInput("could not read sheet %q", sheets[0])
	}

	seeds := make([]InstallmentSeed, 0, len(rows))
	for i, row := range rows {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		num, err := strconv.Atoi(strings.TrimSpace(row[0]))
		if err != nil {
			if i == 0 {
				continue
			}
			return nil, apperr.InvalidInput("row %d: EMI number %q is not an integer", i+1, row[0])
		}
		if len(row) < 3 {
			return nil, apperr.InvalidInput("row %d: expected EMI number, amount and due date", i+1)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(row[1]))
		if err != nil {
			return nil, apperr.InvalidInput("row %d: invalid EMI amount %q", i+1, row[1])
		}
		due, err := parseDueCell(row[2])
		if err != nil {
			return nil, apperr.InvalidInput("row %d: invalid due date %q", i+1, row[2])
		}
		seeds = append(seeds, InstallmentSeed{EMINumber: num, EMIAmount: amount, DueDate: due})
	}
	if len(seeds) == 0 {
		return nil, apperr.InvalidInput("spreadsheet contains no installments")
	}
	return seeds, nil
}
