package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type ProjectStatus string

const (
	ProjectActive   ProjectStatus = "active"
	ProjectRejected ProjectStatus = "rejected"
)

// Project is the sales record an installment ledger is funded from.
type Project struct {
	ID                 uint            `gorm:"primaryKey"`
	ProjectName        string          `gorm:"size:150;not null"`
	ClientName         string          `gorm:"size:150;not null"`
	ClientMobileNo     string          `gorm:"size:20;not null"`
	SalesExecutiveName string          `gorm:"size:100;not null"`
	Unit               string          `gorm:"size:50;not null"`
	PaymentType1       decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	PaymentType2       decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	TotalPayment       decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	EMIEnabled         string          `gorm:"size:3;not null;default:no"` // yes / no

	// Set once on create. Later renames do not touch it.
	TaskID string `gorm:"size:400;uniqueIndex;not null"`

	Status          ProjectStatus `gorm:"size:20;not null;default:active"`
	RejectionReason string        `gorm:"size:500"`
	CreatedBy       uint          `gorm:"index;not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ComposeTaskID builds the "<projectName>/<unit>/<clientName>" identifier.
func ComposeTaskID(projectName, unit, clientName string) string {
	return fmt.Sprintf("%s/%s/%s", projectName, unit, clientName)
}

// RecalculateTotal sets TotalPayment from the two payment types.
func (p *Project) RecalculateTotal() {
	p.TotalPayment = p.PaymentType1.Add(p.PaymentType2)
}
