package project

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"zakaria-backend/internal/access"
	"zakaria-backend/internal/apperr"
	"zakaria-backend/internal/audit"
	"zakaria-backend/internal/ledger"
	"zakaria-backend/internal/logger"
	"zakaria-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const entityType = "project"

// -------------------------
// Request/Response Types
// -------------------------

type CreateProjectRequest struct {
	ProjectName        string          `json:"project_name"`
	ClientName         string          `json:"client_name"`
	ClientMobileNo     string          `json:"client_mobile_no"`
	SalesExecutiveName string          `json:"sales_executive_name"`
	Unit               string          `json:"unit"`
	PaymentType1       decimal.Decimal `json:"payment_type1"`
	PaymentType2       decimal.Decimal `json:"payment_type2"`
	EMIEnabled         string          `json:"emi_enabled"` // "yes" or "no"
}

// UpdateProjectRequest leaves nil fields untouched. The task id is never
// regenerated.
type UpdateProjectRequest struct {
	ProjectName        *string          `json:"project_name"`
	ClientName         *string          `json:"client_name"`
	ClientMobileNo     *string          `json:"client_mobile_no"`
	SalesExecutiveName *string          `json:"sales_executive_name"`
	Unit               *string          `json:"unit"`
	PaymentType1       *decimal.Decimal `json:"payment_type1"`
	PaymentType2       *decimal.Decimal `json:"payment_type2"`
	EMIEnabled         *string          `json:"emi_enabled"`
}

type UpdateStatusRequest struct {
	Status          string `json:"status"` // "active" or "rejected"
	RejectionReason string `json:"rejection_reason"`
}

type ProjectResponse struct {
	ID                 uint            `json:"id"`
	ProjectName        string          `json:"project_name"`
	ClientName         string          `json:"client_name"`
	ClientMobileNo     string          `json:"client_mobile_no"`
	SalesExecutiveName string          `json:"sales_executive_name"`
	Unit               string          `json:"unit"`
	PaymentType1       decimal.Decimal `json:"payment_type1"`
	PaymentType2       decimal.Decimal `json:"payment_type2"`
	TotalPayment       decimal.Decimal `json:"total_payment"`
	EMIEnabled         string          `json:"emi_enabled"`
	TaskID             string          `json:"task_id"`
	Status             string          `json:"status"`
	RejectionReason    string          `json:"rejection_reason"`
	CreatedBy          uint            `json:"created_by"`
	CreatedAt          string          `json:"created_at"`
	UpdatedAt          string          `json:"updated_at"`
}

func toResponse(p *models.Project) ProjectResponse {
	return ProjectResponse{
		ID:                 p.ID,
		ProjectName:        p.ProjectName,
		ClientName:         p.ClientName,
		ClientMobileNo:     p.ClientMobileNo,
		SalesExecutiveName: p.SalesExecutiveName,
		Unit:               p.Unit,
		PaymentType1:       p.PaymentType1,
		PaymentType2:       p.PaymentType2,
		TotalPayment:       p.TotalPayment,
		EMIEnabled:         p.EMIEnabled,
		TaskID:             p.TaskID,
		Status:             string(p.Status),
		RejectionReason:    p.RejectionReason,
		CreatedBy:          p.CreatedBy,
		CreatedAt:          p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          p.UpdatedAt.Format(time.RFC3339),
	}
}

// -------------------------
// Helpers
// -------------------------

func normalizeEMIEnabled(v string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "no":
		return "no", nil
	case "yes":
		return "yes", nil
	default:
		return "", apperr.InvalidInput("emi_enabled must be 'yes' or 'no'")
	}
}

func validateAmounts(p *models.Project) error {
	if p.PaymentType1.IsNegative() || p.PaymentType2.IsNegative() {
		return apperr.InvalidInput("payment amounts must not be negative")
	}
	if !ledger.HasCents(p.PaymentType1) || !ledger.HasCents(p.PaymentType2) {
		return apperr.InvalidInput("payment amounts must have at most two decimal places")
	}
	return nil
}

func loadProject(c *fiber.Ctx, db *gorm.DB) (*models.Project, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return nil, apperr.InvalidInput("invalid project id")
	}
	var p models.Project
	if err := db.WithContext(c.UserContext()).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("project %d not found", id)
		}
		return nil, apperr.Internal("could not load project", err)
	}
	return &p, nil
}

func writeAudit(c *fiber.Ctx, auditLog *audit.Writer, actor access.Actor, p *models.Project, action models.AuditAction, desc string, before, after any) {
	if auditLog == nil {
		return
	}
	err := auditLog.WriteLog(c.UserContext(), audit.LogOptions{
		UserID:      actor.UserID,
		UserName:    actor.Name,
		EntityType:  entityType,
		EntityID:    strconv.FormatUint(uint64(p.ID), 10),
		Action:      action,
		Description: desc,
		Before:      before,
		After:       after,
	})
	if err != nil {
		log := logger.FromContext(c.UserContext())
		log.Warn().Err(err).Uint("project_id", p.ID).Msg("audit log not written")
	}
}

// -------------------------
// Project CRUD
// -------------------------

// POST /api/projects
func CreateProjectHandler(db *gorm.DB, auditLog *audit.Writer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := access.MustActor(c)
		if err != nil {
			return err
		}

		var body CreateProjectRequest
		if err := c.BodyParser(&body); err != nil {
			return apperr.InvalidInput("invalid request body")
		}

		p := models.Project{
			ProjectName:        strings.TrimSpace(body.ProjectName),
			ClientName:         strings.TrimSpace(body.ClientName),
			ClientMobileNo:     strings.TrimSpace(body.ClientMobileNo),
			SalesExecutiveName: strings.TrimSpace(body.SalesExecutiveName),
			Unit:               strings.TrimSpace(body.Unit),
			PaymentType1:       body.PaymentType1,
			PaymentType2:       body.PaymentType2,
			Status:             models.ProjectActive,
			CreatedBy:          actor.UserID,
		}
		if p.ProjectName == "" || p.ClientName == "" || p.Unit == "" {
			return apperr.InvalidInput("project_name, client_name and unit are required")
		}
		if p.ClientMobileNo == "" || p.SalesExecutiveName == "" {
			return apperr.InvalidInput("client_mobile_no and sales_executive_name are required")
		}
		if err := validateAmounts(&p); err != nil {
			return err
		}
		if p.EMIEnabled, err = normalizeEMIEnabled(body.EMIEnabled); err != nil {
			return err
		}
		p.RecalculateTotal()
		p.TaskID = models.ComposeTaskID(p.ProjectName, p.Unit, p.ClientName)

		ctx := c.UserContext()
		var count int64
		if err := db.WithContext(ctx).Model(&models.Project{}).Where("task_id = ?", p.TaskID).Count(&count).Error; err != nil {
			return apperr.Internal("could not check task id", err)
		}
		if count > 0 {
			return apperr.Conflict("a project with task id %q already exists", p.TaskID)
		}

		if err := db.WithContext(ctx).Create(&p).Error; err != nil {
			return apperr.Internal("could not create project", err)
		}

		resp := toResponse(&p)
		writeAudit(c, auditLog, actor, &p, models.AuditActionCreate,
			fmt.Sprintf("Project %s created", p.TaskID), nil, resp)

		return c.Status(fiber.StatusCreated).JSON(resp)
	}
}

// GET /api/projects?status=active
// Sales executives only see projects they created.
func ListProjectsHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := access.MustActor(c)
		if err != nil {
			return err
		}

		q := db.WithContext(c.UserContext()).Model(&models.Project{})
		if actor.Role == models.RoleSalesExecutive {
			q = q.Where("created_by = ?", actor.UserID)
		}
		if status := c.Query("status"); status != "" {
			q = q.Where("status = ?", status)
		}

		var projects []models.Project
		if err := q.Order("created_at DESC").Find(&projects).Error; err != nil {
			return apperr.Internal("could not list projects", err)
		}

		res := make([]ProjectResponse, 0, len(projects))
		for i := range projects {
			res = append(res, toResponse(&projects[i]))
		}
		return c.JSON(res)
	}
}

// GET /api/projects/:id
func GetProjectHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := loadProject(c, db)
		if err != nil {
			return err
		}
		return c.JSON(toResponse(p))
	}
}

// PUT /api/projects/:id
func UpdateProjectHandler(db *gorm.DB, auditLog *audit.Writer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := access.MustActor(c)
		if err != nil {
			return err
		}
		p, err := loadProject(c, db)
		if err != nil {
			return err
		}
		if err := access.Authorize(actor, access.OpProjectUpdate, p.CreatedBy); err != nil {
			return err
		}

		var body UpdateProjectRequest
		if err := c.BodyParser(&body); err != nil {
			return apperr.InvalidInput("invalid request body")
		}

		before := toResponse(p)

		set := func(dst *string, src *string, field string) error {
			if src == nil {
				return nil
			}
			v := strings.TrimSpace(*src)
			if v == "" {
				return apperr.InvalidInput("%s must not be empty", field)
			}
			*dst = v
			return nil
		}
		if err := set(&p.ProjectName, body.ProjectName, "project_name"); err != nil {
			return err
		}
		if err := set(&p.ClientName, body.ClientName, "client_name"); err != nil {
			return err
		}
		if err := set(&p.ClientMobileNo, body.ClientMobileNo, "client_mobile_no"); err != nil {
			return err
		}
		if err := set(&p.SalesExecutiveName, body.SalesExecutiveName, "sales_executive_name"); err != nil {
			return err
		}
		if err := set(&p.Unit, body.Unit, "unit"); err != nil {
			return err
		}
		if body.PaymentType1 != nil {
			p.PaymentType1 = *body.PaymentType1
		}
		if body.PaymentType2 != nil {
			p.PaymentType2 = *body.PaymentType2
		}
		if body.EMIEnabled != nil {
			if p.EMIEnabled, err = normalizeEMIEnabled(*body.EMIEnabled); err != nil {
				return err
			}
		}
		if err := validateAmounts(p); err != nil {
			return err
		}
		p.RecalculateTotal()

		if err := db.WithContext(c.UserContext()).Save(p).Error; err != nil {
			return apperr.Internal("could not update project", err)
		}

		resp := toResponse(p)
		writeAudit(c, auditLog, actor, p, models.AuditActionUpdate,
			fmt.Sprintf("Project %s updated", p.TaskID), before, resp)

		return c.JSON(resp)
	}
}

// PUT /api/projects/:id/status
func UpdateProjectStatusHandler(db *gorm.DB, auditLog *audit.Writer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := access.MustActor(c)
		if err != nil {
			return err
		}
		p, err := loadProject(c, db)
		if err != nil {
			return err
		}
		if err := access.Authorize(actor, access.OpProjectStatus, p.CreatedBy); err != nil {
			return err
		}

		var body UpdateStatusRequest
		if err := c.BodyParser(&body); err != nil {
			return apperr.InvalidInput("invalid request body")
		}

		before := toResponse(p)
		switch models.ProjectStatus(strings.ToLower(strings.TrimSpace(body.Status))) {
		case models.ProjectActive:
			p.Status = models.ProjectActive
			p.RejectionReason = ""
		case models.ProjectRejected:
			reason := strings.TrimSpace(body.RejectionReason)
			if reason == "" {
				return apperr.InvalidInput("rejection_reason is required when rejecting a project")
			}
			p.Status = models.ProjectRejected
			p.RejectionReason = reason
		default:
			return apperr.InvalidInput("status must be 'active' or 'rejected'")
		}

		if err := db.WithContext(c.UserContext()).Save(p).Error; err != nil {
			return apperr.Internal("could not update project status", err)
		}

		resp := toResponse(p)
		writeAudit(c, auditLog, actor, p, models.AuditActionUpdate,
			fmt.Sprintf("Project %s marked %s", p.TaskID, p.Status), before, resp)

		return c.JSON(resp)
	}
}

// DELETE /api/projects/:id
// Refused while an EMI ledger references the project.
func DeleteProjectHandler(db *gorm.DB, auditLog *audit.Writer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := access.MustActor(c)
		if err != nil {
			return err
		}
		p, err := loadProject(c, db)
		if err != nil {
			return err
		}
		if err := access.Authorize(actor, access.OpProjectDelete, p.CreatedBy); err != nil {
			return err
		}

		ctx := c.UserContext()
		var ledgers int64
		if err := db.WithContext(ctx).Model(&models.EMILedger{}).Where("project_id = ?", p.ID).Count(&ledgers).Error; err != nil {
			return apperr.Internal("could not check ledgers", err)
		}
		if ledgers > 0 {
			return apperr.Conflict("project %d has an EMI ledger and cannot be deleted", p.ID)
		}

		if err := db.WithContext(ctx).Delete(&models.Project{}, p.ID).Error; err != nil {
			return apperr.Internal("could not delete project", err)
		}

		writeAudit(c, auditLog, actor, p, models.AuditActionDelete,
			fmt.Sprintf("Project %s deleted", p.TaskID), toResponse(p), nil)

		return c.SendStatus(fiber.StatusNoContent)
	}
}

// Routes mounts the project endpoints.
func Routes(r fiber.Router, db *gorm.DB, auditLog *audit.Writer) {
	r.Post("/", access.Require(access.OpProjectCreate), CreateProjectHandler(db, auditLog))
	r.Get("/", access.Require(access.OpProjectList), ListProjectsHandler(db))
	r.Get("/:id", access.Require(access.OpProjectRead), GetProjectHandler(db))
	r.Put("/:id", access.Require(access.OpProjectUpdate), UpdateProjectHandler(db, auditLog))
	r.Put("/:id/status", access.Require(access.OpProjectStatus), UpdateProjectStatusHandler(db, auditLog))
	r.Delete("/:id", access.Require(access.OpProjectDelete), DeleteProjectHandler(db, auditLog))
}
