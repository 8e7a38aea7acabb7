package ledger

import (
	"time"

	"zakaria-backend/internal/models"

	"github.com/shopspring/decimal"
)

type OverdueInstallment struct {
	LedgerID   string
	TaskID     string
	ClientName string
	EMINumber  int
	DueDate    time.Time
	Balance    decimal.Decimal
}

// Summary aggregates collections across ledgers as of a given day.
type Summary struct {
	AsOf             time.Time
	LedgerCount      int
	InstallmentCount int
	TotalScheduled   decimal.Decimal
	TotalReceived    decimal.Decimal
	TotalOutstanding decimal.Decimal
	OverdueCount     int
	OverdueAmount    decimal.Decimal
	Overdue          []OverdueInstallment
}

// Summarize treats an installment as overdue when its due day is before
// asOf's day and it still has a positive balance. Overpayments do not reduce
// TotalOutstanding.
func Summarize(ledgers []models.EMILedger, asOf time.Time) Summary {
	cutoff := truncateDay(asOf)
	s := Summary{
		AsOf:             cutoff,
		LedgerCount:      len(ledgers),
		TotalScheduled:   decimal.Zero,
		TotalReceived:    decimal.Zero,
		TotalOutstanding: decimal.Zero,
		OverdueAmount:    decimal.Zero,
		Overdue:          []OverdueInstallment{},
	}
	for _, l := range ledgers {
		s.TotalReceived = s.TotalReceived.Add(l.TotalPaymentReceived)
		for _, inst := range l.Installments {
			s.InstallmentCount++
			s.TotalScheduled = s.TotalScheduled.Add(inst.EMIAmount)
			if !inst.Balance.IsPositive() {
				continue
			}
			s.TotalOutstanding = s.TotalOutstanding.Add(inst.Balance)
			if truncateDay(inst.DueDate).Before(cutoff) {
				s.OverdueCount++
				s.OverdueAmount = s.OverdueAmount.Add(inst.Balance)
				s.Overdue = append(s.Overdue, OverdueInstallment{
					LedgerID:   l.ID,
					TaskID:     l.TaskID,
					ClientName: l.ClientName,
					EMINumber:  inst.EMINumber,
					DueDate:    inst.DueDate,
					Balance:    inst.Balance,
				})
			}
		}
	}
	return s
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
