// Package ledger owns EMI installment ledgers: creation from a project
// snapshot, append-only payment recording, installment edits and the
// recomputation of every derived balance and total.
//
// The engine functions in this file are pure. They validate a whole batch
// before touching the ledger, so a failed call leaves it unchanged, and they
// finish every mutation with Recompute.
package ledger

import (
	"strconv"
	"time"

	"zakaria-backend/internal/apperr"
	"zakaria-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InstallmentSeed struct {
	EMINumber int
	EMIAmount decimal.Decimal
	DueDate   time.Time
}

type CreateInput struct {
	ProjectID         uint
	TotalInstallments int
	Installments      []InstallmentSeed
}

type PaymentUpdate struct {
	EMINumber      int
	AmountReceived decimal.Decimal
	ReceivedDate   time.Time
	UTR            string
	BankDetails    string
}

type RecordPaymentsInput struct {
	TotalInstallments *int
	Installments      []PaymentUpdate
}

// InstallmentEdit overwrites only the fields that are non-nil.
type InstallmentEdit struct {
	EMINumber int
	EMIAmount *decimal.Decimal
	DueDate   *time.Time
}

// EditInstallmentsInput distinguishes an absent installments list (nil) from
// an empty one.
type EditInstallmentsInput struct {
	TotalInstallments *int
	Installments      []InstallmentEdit
}

// Recompute rebuilds every derived field from the payment histories:
// per-installment amountReceived and balance from that installment's own
// payments, then the ledger totals. totalPaymentLeft is measured against
// PaymentType1. Balances are not clamped.
func Recompute(l *models.EMILedger) {
	total := decimal.Zero
	for i := range l.Installments {
		inst := &l.Installments[i]
		received := decimal.Zero
		for _, p := range inst.Payments {
			received = received.Add(p.AmountReceived)
		}
		inst.AmountReceived = received
		inst.Balance = inst.EMIAmount.Sub(received)
		total = total.Add(received)
	}
	l.TotalPaymentReceived = total
	l.TotalPaymentLeft = l.PaymentType1.Sub(total)
}

// NewLedger builds a ledger from a project snapshot. Seed emiNumbers are not
// checked for uniqueness and emiAmounts are not reconciled with the project
// total.
func NewLedger(p *models.Project, in CreateInput, createdBy uint) (*models.EMILedger, error) {
	if in.TotalInstallments <= 0 {
		return nil, apperr.InvalidInput("totalInstallments must be a positive integer")
	}
	if len(in.Installments) == 0 {
		return nil, apperr.InvalidInput("at least one installment is required")
	}
	for _, seed := range in.Installments {
		if seed.EMIAmount.IsNegative() {
			return nil, invalidFor(seed.EMINumber, "emiAmount must not be negative")
		}
		if !HasCents(seed.EMIAmount) {
			return nil, invalidFor(seed.EMINumber, "emiAmount must have at most two decimal places")
		}
		if seed.DueDate.IsZero() {
			return nil, invalidFor(seed.EMINumber, "dueDate is required")
		}
	}

	l := &models.EMILedger{
		ID:                 uuid.NewString(),
		ProjectID:          p.ID,
		ProjectName:        p.ProjectName,
		ClientName:         p.ClientName,
		ClientMobileNo:     p.ClientMobileNo,
		SalesExecutiveName: p.SalesExecutiveName,
		Unit:               p.Unit,
		PaymentType1:       p.PaymentType1,
		PaymentType2:       p.PaymentType2,
		TotalPayment:       p.TotalPayment,
		TaskID:             p.TaskID,
		TotalInstallments:  in.TotalInstallments,
		CreatedBy:          createdBy,
		Version:            1,
		Installments:       make([]models.Installment, 0, len(in.Installments)),
	}
	for i, seed := range in.Installments {
		l.Installments = append(l.Installments, models.Installment{
			LedgerID:  l.ID,
			Position:  i,
			EMINumber: seed.EMINumber,
			EMIAmount: seed.EMIAmount,
			DueDate:   seed.DueDate.UTC(),
			Payments:  []models.Payment{},
		})
	}

	Recompute(l)
	return l, nil
}

// ApplyPayments appends one payment per update to the matching installment's
// history. Identical updates are not deduplicated.
func ApplyPayments(l *models.EMILedger, in RecordPaymentsInput) error {
	if len(in.Installments) == 0 {
		return apperr.InvalidInput("installments must contain at least one payment")
	}
	if in.TotalInstallments != nil && *in.TotalInstallments <= 0 {
		return apperr.InvalidInput("totalInstallments must be a positive integer")
	}

	targets := make([]int, len(in.Installments))
	for i, u := range in.Installments {
		if !u.AmountReceived.IsPositive() {
			return invalidFor(u.EMINumber, "amountReceived must be greater than zero")
		}
		if !HasCents(u.AmountReceived) {
			return invalidFor(u.EMINumber, "amountReceived must have at most two decimal places")
		}
		if u.ReceivedDate.IsZero() {
			return invalidFor(u.EMINumber, "receivedDate is required")
		}
		idx := findInstallment(l, u.EMINumber)
		if idx < 0 {
			return missingEMI(u.EMINumber)
		}
		targets[i] = idx
	}

	if in.TotalInstallments != nil {
		l.TotalInstallments = *in.TotalInstallments
	}
	for i, u := range in.Installments {
		inst := &l.Installments[targets[i]]
		received := u.ReceivedDate.UTC()
		inst.Payments = append(inst.Payments, models.Payment{
			InstallmentID:  inst.ID,
			Seq:            len(inst.Payments) + 1,
			AmountReceived: u.AmountReceived,
			ReceivedDate:   received,
			UTR:            u.UTR,
			BankDetails:    u.BankDetails,
		})
		inst.ReceivedDate = &received
		inst.UTR = u.UTR
		inst.BankDetails = u.BankDetails
	}

	Recompute(l)
	return nil
}

// ApplyEdits overwrites emiAmount and dueDate on the referenced installments.
// Payment histories are never touched.
func ApplyEdits(l *models.EMILedger, in EditInstallmentsInput) error {
	if in.TotalInstallments == nil && in.Installments == nil {
		return apperr.InvalidInput("totalInstallments or installments is required")
	}
	if in.TotalInstallments != nil && *in.TotalInstallments <= 0 {
		return apperr.InvalidInput("totalInstallments must be a positive integer")
	}

	targets := make([]int, len(in.Installments))
	for i, e := range in.Installments {
		if e.EMIAmount != nil && e.EMIAmount.IsNegative() {
			return invalidFor(e.EMINumber, "emiAmount must not be negative")
		}
		if e.EMIAmount != nil && !HasCents(*e.EMIAmount) {
			return invalidFor(e.EMINumber, "emiAmount must have at most two decimal places")
		}
		if e.DueDate != nil && e.DueDate.IsZero() {
			return invalidFor(e.EMINumber, "dueDate is invalid")
		}
		idx := findInstallment(l, e.EMINumber)
		if idx < 0 {
			return missingEMI(e.EMINumber)
		}
		targets[i] = idx
	}

	if in.TotalInstallments != nil {
		l.TotalInstallments = *in.TotalInstallments
	}
	for i, e := range in.Installments {
		inst := &l.Installments[targets[i]]
		if e.EMIAmount != nil {
			inst.EMIAmount = *e.EMIAmount
		}
		if e.DueDate != nil {
			inst.DueDate = e.DueDate.UTC()
		}
	}

	Recompute(l)
	return nil
}

// HasCents reports whether d fits the decimal(18,2) amount columns without
// rounding. Trailing zeros such as 10.500 are accepted.
func HasCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

// findInstallment returns the index of the first installment with the given
// emiNumber, or -1.
func findInstallment(l *models.EMILedger, emiNumber int) int {
	for i := range l.Installments {
		if l.Installments[i].EMINumber == emiNumber {
			return i
		}
	}
	return -1
}

func missingEMI(emiNumber int) error {
	return apperr.NotFound("EMI number %d not found in ledger", emiNumber).
		With("emi_number", strconv.Itoa(emiNumber))
}

func invalidFor(emiNumber int, msg string) error {
	return apperr.InvalidInput("EMI number %d: %s", emiNumber, msg).
		With("emi_number", strconv.Itoa(emiNumber))
}
