package ledger

import (
	"context"
	"errors"

	"zakaria-backend/internal/models"

	"gorm.io/gorm"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func withSchedule(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Installments", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Installments.Payments", func(db *gorm.DB) *gorm.DB {
			return db.Order("seq ASC")
		})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *GormStore) GetProject(ctx context.Context, id uint) (*models.Project, error) {
	var p models.Project
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *GormStore) CreateLedger(ctx context.Context, l *models.EMILedger) error {
	return s.db.WithContext(ctx).Create(l).Error
}

func (s *GormStore) GetLedger(ctx context.Context, id string) (*models.EMILedger, error) {
	var l models.EMILedger
	if err := withSchedule(s.db.WithContext(ctx)).First(&l, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

func (s *GormStore) GetLedgerByTaskID(ctx context.Context, taskID string) (*models.EMILedger, error) {
	var l models.EMILedger
	err := withSchedule(s.db.WithContext(ctx)).
		Where("task_id = ?", taskID).
		Order("created_at ASC").
		First(&l).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

func (s *GormStore) ListLedgers(ctx context.Context) ([]models.EMILedger, error) {
	var ledgers []models.EMILedger
	if err := withSchedule(s.db.WithContext(ctx)).Order("created_at DESC").Find(&ledgers).Error; err != nil {
		return nil, err
	}
	return ledgers, nil
}

func (s *GormStore) SaveLedger(ctx context.Context, l *models.EMILedger) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.EMILedger{}).
			Where("id = ? AND version = ?", l.ID, l.Version).
			Updates(map[string]any{
				"total_installments":     l.TotalInstallments,
				"total_payment_received": l.TotalPaymentReceived,
				"total_payment_left":     l.TotalPaymentLeft,
				"version":                l.Version + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrVersionConflict
		}

		for i := range l.Installments {
			inst := &l.Installments[i]
			err := tx.Model(&models.Installment{}).
				Where("id = ?", inst.ID).
				Updates(map[string]any{
					"emi_amount":      inst.EMIAmount,
					"due_date":        inst.DueDate,
					"amount_received": inst.AmountReceived,
					"balance":         inst.Balance,
					"received_date":   inst.ReceivedDate,
					"utr":             inst.UTR,
					"bank_details":    inst.BankDetails,
				}).Error
			if err != nil {
				return err
			}

			// payments are insert-only
			for j := range inst.Payments {
				p := &inst.Payments[j]
				if p.ID != 0 {
					continue
				}
				p.InstallmentID = inst.ID
				if err := tx.Create(p).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	l.Version++
	return nil
}
