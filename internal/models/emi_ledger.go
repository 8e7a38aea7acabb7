package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EMILedger is the installment plan of one funded project.
// Snapshot fields are copied from the project at creation and never refreshed.
type EMILedger struct {
	ID        string `gorm:"size:36;primaryKey"`
	ProjectID uint   `gorm:"index;not null"`

	ProjectName        string          `gorm:"size:150;not null"`
	ClientName         string          `gorm:"size:150;not null"`
	ClientMobileNo     string          `gorm:"size:20;not null"`
	SalesExecutiveName string          `gorm:"size:100;not null"`
	Unit               string          `gorm:"size:50;not null"`
	PaymentType1       decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	PaymentType2       decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	TotalPayment       decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	TaskID             string          `gorm:"size:400;index;not null"`

	TotalInstallments    int             `gorm:"not null"`
	TotalPaymentReceived decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	TotalPaymentLeft     decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`

	CreatedBy uint  `gorm:"index;not null"`
	Version   int64 `gorm:"not null;default:1"` // optimistic lock

	Installments []Installment `gorm:"foreignKey:LedgerID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Installment is one scheduled EMI inside a ledger, addressed by EMINumber.
type Installment struct {
	ID        uint   `gorm:"primaryKey"`
	LedgerID  string `gorm:"size:36;index;not null"`
	Position  int    `gorm:"not null"` // order inside the ledger
	EMINumber int    `gorm:"not null"`

	EMIAmount decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	DueDate   time.Time       `gorm:"not null"`

	AmountReceived decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Balance        decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`

	// Mirror of the most recent payment
	ReceivedDate *time.Time
	UTR          string `gorm:"size:100"`
	BankDetails  string `gorm:"size:255"`

	Payments []Payment `gorm:"foreignKey:InstallmentID;constraint:OnDelete:CASCADE"`
}

// Payment is one receipt against an installment. Rows are insert-only.
type Payment struct {
	ID             uint            `gorm:"primaryKey"`
	InstallmentID  uint            `gorm:"index;not null"`
	Seq            int             `gorm:"not null"`
	AmountReceived decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	ReceivedDate   time.Time       `gorm:"not null"`
	UTR            string          `gorm:"size:100"`
	BankDetails    string          `gorm:"size:255"`
	CreatedAt      time.Time
}
