package auth

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"zakaria-backend/internal/access"
	"zakaria-backend/internal/apperr"
	"zakaria-backend/internal/config"
	"zakaria-backend/internal/database"
	"zakaria-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testConfig() *config.Config {
	return &config.Config{JWTSecret: testSecret, JWTTTL: time.Hour}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestApp(db *gorm.DB, cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: apperr.FiberErrorHandler(zerolog.Nop())})
	app.Post("/auth/register-admin", RegisterAdminHandler(db))
	app.Post("/auth/login", LoginHandler(db, cfg))
	app.Get("/auth/me", JWTMiddleware(cfg), MeHandler(db))
	return app
}

func post(t *testing.T, app *fiber.App, path string, body any) (int, map[string]any) {
	t.Helper()
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	out, _ := io.ReadAll(resp.Body)
	var m map[string]any
	_ = json.Unmarshal(out, &m)
	return resp.StatusCode, m
}

func TestTokenRoundTrip(t *testing.T) {
	user := &models.User{ID: 5, Name: "Fin", Email: "fin@example.com", Role: models.RoleFinance}
	token, err := GenerateToken(testSecret, time.Hour, user)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := ParseToken(testSecret, token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != 5 || claims.Role != models.RoleFinance || claims.Name != "Fin" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if _, err := ParseToken("another-secret-another-secret-xx", token); err == nil {
		t.Fatal("expected error for wrong secret")
	}
}

func TestExpiredToken(t *testing.T) {
	token, err := GenerateToken(testSecret, -time.Minute, &models.User{ID: 1, Role: models.RoleAdmin})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := ParseToken(testSecret, token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestJWTMiddlewareSetsActor(t *testing.T) {
	cfg := testConfig()
	app := fiber.New(fiber.Config{ErrorHandler: apperr.FiberErrorHandler(zerolog.Nop())})
	app.Get("/whoami", JWTMiddleware(cfg), func(c *fiber.Ctx) error {
		actor, ok := access.ActorFromCtx(c)
		if !ok {
			return c.SendStatus(fiber.StatusTeapot)
		}
		return c.JSON(fiber.Map{"id": actor.UserID, "role": actor.Role})
	})

	token, _ := GenerateToken(cfg.JWTSecret, cfg.JWTTTL, &models.User{ID: 9, Role: models.RoleReco})

	tests := []struct {
		header string
		status int
	}{
		{"", 401},
		{"Token abc", 401},
		{"Bearer not-a-jwt", 401},
		{"Bearer " + token, 200},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/whoami", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%q: %v", tt.header, err)
		}
		if resp.StatusCode != tt.status {
			t.Fatalf("%q: expected %d, got %d", tt.header, tt.status, resp.StatusCode)
		}
	}
}

func TestRegisterLoginMe(t *testing.T) {
	db := newTestDB(t)
	cfg := testConfig()
	app := newTestApp(db, cfg)

	status, body := post(t, app, "/auth/register-admin", map[string]any{
		"name": "Root", "email": "Root@Example.com", "username": "root", "password": "s3cret",
	})
	if status != fiber.StatusCreated || body["role"] != "admin" || body["email"] != "root@example.com" {
		t.Fatalf("register: %d %v", status, body)
	}

	status, _ = post(t, app, "/auth/register-admin", map[string]any{
		"name": "Second", "email": "second@example.com", "password": "x",
	})
	if status != fiber.StatusForbidden {
		t.Fatalf("expected 403 for second admin, got %d", status)
	}

	for _, ident := range []string{"root@example.com", "root"} {
		status, body = post(t, app, "/auth/login", map[string]any{"identifier": ident, "password": "s3cret"})
		if status != fiber.StatusOK || body["token"] == "" {
			t.Fatalf("login with %q: %d %v", ident, status, body)
		}
	}

	status, _ = post(t, app, "/auth/login", map[string]any{"identifier": "root", "password": "wrong"})
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", status)
	}

	token := body["token"].(string)
	req := httptest.NewRequest("GET", "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("me: expected 200, got %d", resp.StatusCode)
	}
}

func TestLoginRefusesBlacklisted(t *testing.T) {
	db := newTestDB(t)
	app := newTestApp(db, testConfig())

	hash, _ := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	user := models.User{
		Name: "Gone", Email: "gone@example.com", Username: "gone",
		PasswordHash: string(hash), Role: models.RoleSalesExecutive,
		AccountStatus: models.AccountBlacklisted,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	status, body := post(t, app, "/auth/login", map[string]any{"email": "gone@example.com", "password": "pw"})
	if status != fiber.StatusForbidden {
		t.Fatalf("expected 403 for blacklisted account, got %d %v", status, body)
	}
}
