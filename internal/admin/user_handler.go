package admin

import (
	"fmt"
	"strconv"
	"strings"

	"zakaria-backend/internal/access"
	"zakaria-backend/internal/apperr"
	"zakaria-backend/internal/audit"
	"zakaria-backend/internal/auth"
	"zakaria-backend/internal/logger"
	"zakaria-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type CreateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
	MobileNo string `json:"mobile_no"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// ----------------------------------------
// CREATE USER
// POST /api/admin/users
// ----------------------------------------

func CreateUserHandler(db *gorm.DB, auditLog *audit.Writer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := access.MustActor(c)
		if err != nil {
			return err
		}

		var body CreateUserRequest
		if err := c.BodyParser(&body); err != nil {
			return apperr.InvalidInput("invalid request body")
		}

		body.Email = strings.ToLower(strings.TrimSpace(body.Email))
		body.Username = strings.TrimSpace(body.Username)
		body.Name = strings.TrimSpace(body.Name)
		role := models.UserRole(strings.ToLower(strings.TrimSpace(body.Role)))

		if body.Name == "" || body.Email == "" || body.Username == "" || body.Password == "" {
			return apperr.InvalidInput("name, email, username and password are required")
		}
		if !models.ValidRole(role) {
			return apperr.InvalidInput("unknown role %q", body.Role)
		}

		ctx := c.UserContext()

		var existing int64
		if err := db.WithContext(ctx).Model(&models.User{}).
			Where("email = ? OR username = ?", body.Email, body.Username).
			Count(&existing).Error; err != nil {
			return apperr.Internal("could not check existing users", err)
		}
		if existing > 0 {
			return apperr.Conflict("email or username is already registered")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			return apperr.Internal("could not hash password", err)
		}

		user := models.User{
			Name:          body.Name,
			Email:         body.Email,
			Username:      body.Username,
			MobileNo:      strings.TrimSpace(body.MobileNo),
			PasswordHash:  string(hash),
			Role:          role,
			AccountStatus: models.AccountActive,
		}

		if err := db.WithContext(ctx).Create(&user).Error; err != nil {
			return apperr.Internal("could not create user", err)
		}

		resp := auth.ToUserResponse(&user)
		if auditLog != nil {
			err := auditLog.WriteLog(ctx, audit.LogOptions{
				UserID:      actor.UserID,
				UserName:    actor.Name,
				EntityType:  "user",
				EntityID:    strconv.FormatUint(uint64(user.ID), 10),
				Action:      models.AuditActionCreate,
				Description: fmt.Sprintf("User %s created with role %s", user.Username, user.Role),
				After:       resp,
			})
			if err != nil {
				log := logger.FromContext(ctx)
				log.Warn().Err(err).Uint("user_id", user.ID).Msg("audit log not written")
			}
		}

		return c.Status(fiber.StatusCreated).JSON(resp)
	}
}

// ----------------------------------------
// LIST USERS
// GET /api/admin/users?role=finance
// ----------------------------------------

func ListUsersHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := db.WithContext(c.UserContext()).Model(&models.User{})
		if role := c.Query("role"); role != "" {
			q = q.Where("role = ?", role)
		}

		var users []models.User
		if err := q.Order("created_at DESC").Find(&users).Error; err != nil {
			return apperr.Internal("could not list users", err)
		}

		res := make([]auth.UserResponse, 0, len(users))
		for i := range users {
			res = append(res, auth.ToUserResponse(&users[i]))
		}

		return c.JSON(res)
	}
}
