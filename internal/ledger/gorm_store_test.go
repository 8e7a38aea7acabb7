package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"zakaria-backend/internal/database"
	"zakaria-backend/internal/models"

	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedProject(t *testing.T, db *gorm.DB) *models.Project {
	t.Helper()
	p := testProject()
	p.ID = 0
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func TestGormStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := NewGormStore(db)
	p := seedProject(t, db)

	got, err := store.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if got.TaskID != p.TaskID {
		t.Fatalf("unexpected task id %q", got.TaskID)
	}

	l := scenarioA(t)
	l.ProjectID = p.ID
	if err := store.CreateLedger(ctx, l); err != nil {
		t.Fatalf("create ledger: %v", err)
	}

	loaded, err := store.GetLedger(ctx, l.ID)
	if err != nil {
		t.Fatalf("get ledger: %v", err)
	}
	if len(loaded.Installments) != 2 || loaded.Installments[0].EMINumber != 1 {
		t.Fatalf("unexpected installments %+v", loaded.Installments)
	}
	if !loaded.Installments[1].Balance.Equal(dec("5000")) {
		t.Fatalf("expected balance 5000, got %s", loaded.Installments[1].Balance)
	}

	byTask, err := store.GetLedgerByTaskID(ctx, "Skyline/A-101/Ravi")
	if err != nil || byTask.ID != l.ID {
		t.Fatalf("get by task id: %v %+v", err, byTask)
	}

	all, err := store.ListLedgers(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("list: %v (%d)", err, len(all))
	}
}

func TestGormStoreSavePersistsPaymentsAndVersion(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := NewGormStore(db)
	p := seedProject(t, db)

	l := scenarioA(t)
	l.ProjectID = p.ID
	if err := store.CreateLedger(ctx, l); err != nil {
		t.Fatalf("create ledger: %v", err)
	}

	loaded, err := store.GetLedger(ctx, l.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	err = ApplyPayments(loaded, RecordPaymentsInput{Installments: []PaymentUpdate{
		{EMINumber: 1, AmountReceived: dec("2000"), ReceivedDate: day("2025-01-05"), UTR: "X1"},
	}})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := store.SaveLedger(ctx, loaded); err != nil {
		t.Fatalf("save: %v", err)
	}
	if loaded.Version != 2 {
		t.Fatalf("expected version 2, got %d", loaded.Version)
	}

	again, err := store.GetLedger(ctx, l.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	inst := again.Installments[0]
	if len(inst.Payments) != 1 || inst.Payments[0].UTR != "X1" {
		t.Fatalf("payment not persisted: %+v", inst.Payments)
	}
	if !inst.Balance.Equal(dec("3000")) || !again.TotalPaymentReceived.Equal(dec("2000")) {
		t.Fatalf("derived fields not persisted: balance %s total %s", inst.Balance, again.TotalPaymentReceived)
	}
	if !again.TotalPaymentLeft.Equal(dec("8000")) {
		t.Fatalf("expected left 8000, got %s", again.TotalPaymentLeft)
	}
	if again.Version != 2 {
		t.Fatalf("expected stored version 2, got %d", again.Version)
	}

	// saving again from the same reload must not duplicate payments
	if err := store.SaveLedger(ctx, again); err != nil {
		t.Fatalf("resave: %v", err)
	}
	var count int64
	db.Model(&models.Payment{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 payment row, got %d", count)
	}
}

func TestGormStoreRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := NewGormStore(db)
	p := seedProject(t, db)

	l := scenarioA(t)
	l.ProjectID = p.ID
	if err := store.CreateLedger(ctx, l); err != nil {
		t.Fatalf("create ledger: %v", err)
	}

	a, _ := store.GetLedger(ctx, l.ID)
	b, _ := store.GetLedger(ctx, l.ID)

	pay := RecordPaymentsInput{Installments: []PaymentUpdate{
		{EMINumber: 2, AmountReceived: dec("100"), ReceivedDate: day("2025-02-01")},
	}}
	if err := ApplyPayments(a, pay); err != nil {
		t.Fatalf("apply a: %v", err)
	}
	if err := ApplyPayments(b, pay); err != nil {
		t.Fatalf("apply b: %v", err)
	}

	if err := store.SaveLedger(ctx, a); err != nil {
		t.Fatalf("save a: %v", err)
	}
	if err := store.SaveLedger(ctx, b); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	var count int64
	db.Model(&models.Payment{}).Count(&count)
	if count != 1 {
		t.Fatalf("losing writer must not insert payments, got %d rows", count)
	}
}

func TestGormStoreNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewGormStore(newTestDB(t))

	if _, err := store.GetLedger(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetLedgerByTaskID(ctx, "a/b/c"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetProject(ctx, 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	all, err := store.ListLedgers(ctx)
	if err != nil || len(all) != 0 {
		t.Fatalf("expected empty list, got %v %d", err, len(all))
	}
}
