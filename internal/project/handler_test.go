package project

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"zakaria-backend/internal/access"
	"zakaria-backend/internal/apperr"
	"zakaria-backend/internal/audit"
	"zakaria-backend/internal/database"
	"zakaria-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var actors = map[string]access.Actor{
	"admin":   {UserID: 1, Name: "Root", Role: models.RoleAdmin},
	"sales":   {UserID: 3, Name: "Asha", Role: models.RoleSalesExecutive},
	"sales2":  {UserID: 8, Name: "Vik", Role: models.RoleSalesExecutive},
	"finance": {UserID: 2, Name: "Fin", Role: models.RoleFinance},
}

func newTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "project.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	app := fiber.New(fiber.Config{ErrorHandler: apperr.FiberErrorHandler(zerolog.Nop())})
	app.Use(func(c *fiber.Ctx) error {
		if a, ok := actors[c.Get("X-Test-Actor")]; ok {
			c.Locals(access.CtxActorKey, a)
		}
		return c.Next()
	})
	Routes(app.Group("/api/projects"), db, audit.NewWriter(db))
	return app, db
}

func call(t *testing.T, app *fiber.App, method, path, actor string, body any) (int, map[string]any, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Actor", actor)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	return resp.StatusCode, m, raw
}

func newProjectBody() map[string]any {
	return map[string]any{
		"project_name":         "Skyline",
		"client_name":          "Ravi",
		"client_mobile_no":     "9999999999",
		"sales_executive_name": "Asha",
		"unit":                 "A-101",
		"payment_type1":        10000,
		"payment_type2":        "2500.50",
		"emi_enabled":          "Yes",
	}
}

func TestComposeTaskID(t *testing.T) {
	if got := models.ComposeTaskID("Skyline", "A-101", "Ravi"); got != "Skyline/A-101/Ravi" {
		t.Fatalf("unexpected task id %q", got)
	}
}

func TestCreateProject(t *testing.T) {
	app, _ := newTestApp(t)

	status, body, raw := call(t, app, "POST", "/api/projects", "sales", newProjectBody())
	if status != fiber.StatusCreated {
		t.Fatalf("create: expected 201, got %d %s", status, raw)
	}
	if body["task_id"] != "Skyline/A-101/Ravi" || body["total_payment"] != "12500.5" || body["emi_enabled"] != "yes" {
		t.Fatalf("unexpected project %v", body)
	}
	if body["status"] != "active" || body["created_by"] != float64(3) {
		t.Fatalf("unexpected status/owner %v", body)
	}

	status, _, _ = call(t, app, "POST", "/api/projects", "admin", newProjectBody())
	if status != fiber.StatusConflict {
		t.Fatalf("expected 409 for duplicate task id, got %d", status)
	}

	status, _, _ = call(t, app, "POST", "/api/projects", "finance", newProjectBody())
	if status != fiber.StatusForbidden {
		t.Fatalf("expected 403 for finance, got %d", status)
	}

	bad := newProjectBody()
	bad["emi_enabled"] = "maybe"
	bad["unit"] = "B-2"
	status, _, _ = call(t, app, "POST", "/api/projects", "admin", bad)
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for emi_enabled, got %d", status)
	}
	subCent := newProjectBody()
	subCent["unit"] = "C-3"
	subCent["payment_type1"] = "100.005"
	status, _, _ = call(t, app, "POST", "/api/projects", "admin", subCent)
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for sub-cent amount, got %d", status)
	}
}

func TestListProjectsScopesSalesExecutives(t *testing.T) {
	app, _ := newTestApp(t)

	call(t, app, "POST", "/api/projects", "sales", newProjectBody())
	other := newProjectBody()
	other["unit"] = "B-202"
	call(t, app, "POST", "/api/projects", "sales2", other)

	tests := []struct {
		actor string
		want  int
	}{
		{"sales", 1},
		{"sales2", 1},
		{"finance", 2},
		{"admin", 2},
	}
	for _, tt := range tests {
		_, _, raw := call(t, app, "GET", "/api/projects", tt.actor, nil)
		var list []map[string]any
		if err := json.Unmarshal(raw, &list); err != nil {
			t.Fatalf("%s: decode: %v", tt.actor, err)
		}
		if len(list) != tt.want {
			t.Fatalf("%s: expected %d projects, got %d", tt.actor, tt.want, len(list))
		}
	}
}

func TestUpdateKeepsTaskID(t *testing.T) {
	app, _ := newTestApp(t)
	_, created, _ := call(t, app, "POST", "/api/projects", "sales", newProjectBody())
	path := fmt.Sprintf("/api/projects/%v", created["id"])

	status, _, _ := call(t, app, "PUT", path, "sales2", map[string]any{"unit": "Z-9"})
	if status != fiber.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d", status)
	}

	status, body, _ := call(t, app, "PUT", path, "sales", map[string]any{"unit": "A-102", "payment_type2": 500})
	if status != fiber.StatusOK {
		t.Fatalf("update: %d %v", status, body)
	}
	if body["unit"] != "A-102" || body["task_id"] != "Skyline/A-101/Ravi" {
		t.Fatalf("task id must be stable: %v", body)
	}
	if body["total_payment"] != "10500" {
		t.Fatalf("expected total 10500, got %v", body["total_payment"])
	}

	status, _, _ = call(t, app, "PUT", path, "admin", map[string]any{"client_name": "  "})
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for blank client, got %d", status)
	}
}

func TestUpdateStatus(t *testing.T) {
	app, _ := newTestApp(t)
	_, created, _ := call(t, app, "POST", "/api/projects", "sales", newProjectBody())
	path := fmt.Sprintf("/api/projects/%v/status", created["id"])

	status, _, _ := call(t, app, "PUT", path, "admin", map[string]any{"status": "rejected"})
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 without reason, got %d", status)
	}

	status, body, _ := call(t, app, "PUT", path, "admin", map[string]any{"status": "rejected", "rejection_reason": "duplicate booking"})
	if status != fiber.StatusOK || body["status"] != "rejected" || body["rejection_reason"] != "duplicate booking" {
		t.Fatalf("reject: %d %v", status, body)
	}

	status, body, _ = call(t, app, "PUT", path, "sales", map[string]any{"status": "active"})
	if status != fiber.StatusOK || body["rejection_reason"] != "" {
		t.Fatalf("reactivate: %d %v", status, body)
	}

	status, _, _ = call(t, app, "PUT", path, "finance", map[string]any{"status": "active"})
	if status != fiber.StatusForbidden {
		t.Fatalf("expected 403 for finance, got %d", status)
	}
}

func TestDeleteProject(t *testing.T) {
	app, db := newTestApp(t)
	_, created, _ := call(t, app, "POST", "/api/projects", "sales", newProjectBody())
	id := uint(created["id"].(float64))
	path := fmt.Sprintf("/api/projects/%d", id)

	status, _, _ := call(t, app, "DELETE", path, "sales2", nil)
	if status != fiber.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d", status)
	}
	var count int64
	db.Model(&models.Project{}).Count(&count)
	if count != 1 {
		t.Fatal("project deleted before authorization")
	}

	ledger := models.EMILedger{
		ID: "l-1", ProjectID: id, TaskID: "Skyline/A-101/Ravi", TotalInstallments: 1, CreatedBy: 1, Version: 1,
		PaymentType1: decimal.Zero, PaymentType2: decimal.Zero, TotalPayment: decimal.Zero,
	}
	if err := db.Create(&ledger).Error; err != nil {
		t.Fatalf("seed ledger: %v", err)
	}
	status, _, _ = call(t, app, "DELETE", path, "admin", nil)
	if status != fiber.StatusConflict {
		t.Fatalf("expected 409 with ledger, got %d", status)
	}

	db.Delete(&models.EMILedger{}, "id = ?", "l-1")
	status, _, _ = call(t, app, "DELETE", path, "sales", nil)
	if status != fiber.StatusNoContent {
		t.Fatalf("expected 204, got %d", status)
	}
	status, _, _ = call(t, app, "GET", path, "admin", nil)
	if status != fiber.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", status)
	}
}
