package ledger

import (
	"context"
	"errors"

	"zakaria-backend/internal/models"
)

var (
	ErrNotFound        = errors.New("ledger: record not found")
	ErrVersionConflict = errors.New("ledger: version conflict")
)

// Store persists ledgers. Implementations return ErrNotFound for missing
// records and ErrVersionConflict when SaveLedger loses an optimistic race.
type Store interface {
	GetProject(ctx context.Context, id uint) (*models.Project, error)
	CreateLedger(ctx context.Context, l *models.EMILedger) error
	GetLedger(ctx context.Context, id string) (*models.EMILedger, error)
	// GetLedgerByTaskID returns the oldest ledger for the task id.
	GetLedgerByTaskID(ctx context.Context, taskID string) (*models.EMILedger, error)
	ListLedgers(ctx context.Context) ([]models.EMILedger, error)
	// SaveLedger writes derived fields, installment edits and payments with
	// ID 0 in one unit, provided l.Version still matches the stored row.
	// On success l.Version is advanced.
	SaveLedger(ctx context.Context, l *models.EMILedger) error
}
