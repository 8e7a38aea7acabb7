package auth

import (
	"errors"
	"strings"

	"zakaria-backend/internal/access"
	"zakaria-backend/internal/apperr"
	"zakaria-backend/internal/config"
	"zakaria-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type RegisterAdminRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
	MobileNo string `json:"mobile_no"`
	Password string `json:"password"`
}

// LoginRequest accepts either an email address or a username in Identifier.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

type UserResponse struct {
	ID            uint                 `json:"id"`
	Name          string               `json:"name"`
	Email         string               `json:"email"`
	Username      string               `json:"username"`
	MobileNo      string               `json:"mobile_no"`
	Role          models.UserRole      `json:"role"`
	AccountStatus models.AccountStatus `json:"account_status"`
}

func ToUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		Username:      u.Username,
		MobileNo:      u.MobileNo,
		Role:          u.Role,
		AccountStatus: u.AccountStatus,
	}
}

// POST /api/auth/register-admin
// Bootstraps the first admin. Refused once any admin exists.
func RegisterAdminHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegisterAdminRequest
		if err := c.BodyParser(&body); err != nil {
			return apperr.InvalidInput("invalid request body")
		}

		body.Email = strings.TrimSpace(strings.ToLower(body.Email))
		body.Username = strings.TrimSpace(body.Username)

		if body.Email == "" || body.Password == "" || body.Name == "" {
			return apperr.InvalidInput("name, email and password are required")
		}
		if body.Username == "" {
			body.Username = body.Email
		}

		var count int64
		if err := db.WithContext(c.UserContext()).Model(&models.User{}).
			Where("role = ?", models.RoleAdmin).
			Count(&count).Error; err != nil {
			return apperr.Internal("could not check existing admins", err)
		}
		if count > 0 {
			return apperr.Forbidden("an admin already exists")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			return apperr.Internal("could not hash password", err)
		}

		user := models.User{
			Name:          body.Name,
			Email:         body.Email,
			Username:      body.Username,
			MobileNo:      body.MobileNo,
			PasswordHash:  string(hash),
			Role:          models.RoleAdmin,
			AccountStatus: models.AccountActive,
		}

		if err := db.WithContext(c.UserContext()).Create(&user).Error; err != nil {
			return apperr.Internal("could not create user", err)
		}

		return c.Status(fiber.StatusCreated).JSON(ToUserResponse(&user))
	}
}

// POST /api/auth/login
func LoginHandler(db *gorm.DB, cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := c.BodyParser(&body); err != nil {
			return apperr.InvalidInput("invalid request body")
		}

		identifier := strings.TrimSpace(body.Identifier)
		if identifier == "" {
			identifier = strings.TrimSpace(body.Email)
		}
		if identifier == "" || body.Password == "" {
			return apperr.InvalidInput("identifier and password are required")
		}

		var user models.User
		err := db.WithContext(c.UserContext()).
			Where("email = ? OR username = ?", strings.ToLower(identifier), identifier).
			First(&user).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.New(apperr.CodeUnauthorized, "invalid credentials")
			}
			return apperr.Internal("could not load user", err)
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)); err != nil {
			return apperr.New(apperr.CodeUnauthorized, "invalid credentials")
		}
		if user.AccountStatus == models.AccountBlacklisted {
			return apperr.Forbidden("account is blacklisted")
		}

		token, err := GenerateToken(cfg.JWTSecret, cfg.JWTTTL, &user)
		if err != nil {
			return apperr.Internal("could not issue token", err)
		}

		return c.JSON(fiber.Map{
			"token": token,
			"user":  ToUserResponse(&user),
		})
	}
}

// GET /api/auth/me
func MeHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := access.MustActor(c)
		if err != nil {
			return err
		}

		var user models.User
		if err := db.WithContext(c.UserContext()).First(&user, actor.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("user %d not found", actor.UserID)
			}
			return apperr.Internal("could not load user", err)
		}

		return c.JSON(ToUserResponse(&user))
	}
}
