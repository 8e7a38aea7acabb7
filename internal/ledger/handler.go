package ledger

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"zakaria-backend/internal/access"
	"zakaria-backend/internal/apperr"
	"zakaria-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// -------------------------
// Request/Response Types
// -------------------------

type InstallmentSeedRequest struct {
	EMINumber int             `json:"emi_number"`
	EMIAmount decimal.Decimal `json:"emi_amount"`
	DueDate   string          `json:"due_date"` // "2025-01-10" or RFC 3339
}

type CreateLedgerRequest struct {
	ProjectID         uint                     `json:"project_id"`
	TotalInstallments int                      `json:"total_installments"`
	Installments      []InstallmentSeedRequest `json:"installments"`
}

type PaymentRequest struct {
	EMINumber      int             `json:"emi_number"`
	AmountReceived decimal.Decimal `json:"amount_received"`
	ReceivedDate   string          `json:"received_date"`
	UTR            string          `json:"utr"`
	BankDetails    string          `json:"bank_details"`
}

type RecordPaymentsRequest struct {
	TotalInstallments *int             `json:"total_installments"`
	Installments      []PaymentRequest `json:"installments"`
}

type InstallmentEditRequest struct {
	EMINumber int              `json:"emi_number"`
	EMIAmount *decimal.Decimal `json:"emi_amount"`
	DueDate   *string          `json:"due_date"`
}

type EditInstallmentsRequest struct {
	TotalInstallments *int                     `json:"total_installments"`
	Installments      []InstallmentEditRequest `json:"installments"`
}

type PaymentResponse struct {
	Seq            int             `json:"seq"`
	AmountReceived decimal.Decimal `json:"amount_received"`
	ReceivedDate   string          `json:"received_date"`
	UTR            string          `json:"utr"`
	BankDetails    string          `json:"bank_details"`
}

type InstallmentResponse struct {
	EMINumber      int               `json:"emi_number"`
	EMIAmount      decimal.Decimal   `json:"emi_amount"`
	DueDate        string            `json:"due_date"`
	AmountReceived decimal.Decimal   `json:"amount_received"`
	Balance        decimal.Decimal   `json:"balance"`
	ReceivedDate   *string           `json:"received_date"`
	UTR            string            `json:"utr"`
	BankDetails    string            `json:"bank_details"`
	PaymentHistory []PaymentResponse `json:"payment_history"`
}

// LedgerResponse carries the project snapshot taken at creation. Later
// project edits are not reflected here.
type LedgerResponse struct {
	ID                   string                `json:"id"`
	ProjectID            uint                  `json:"project_id"`
	ProjectName          string                `json:"project_name"`
	ClientName           string                `json:"client_name"`
	ClientMobileNo       string                `json:"client_mobile_no"`
	SalesExecutiveName   string                `json:"sales_executive_name"`
	Unit                 string                `json:"unit"`
	PaymentType1         decimal.Decimal       `json:"payment_type1"`
	PaymentType2         decimal.Decimal       `json:"payment_type2"`
	TotalPayment         decimal.Decimal       `json:"total_payment"`
	TaskID               string                `json:"task_id"`
	TotalInstallments    int                   `json:"total_installments"`
	TotalPaymentReceived decimal.Decimal       `json:"total_payment_received"`
	TotalPaymentLeft     decimal.Decimal       `json:"total_payment_left"`
	CreatedBy            uint                  `json:"created_by"`
	Version              int64                 `json:"version"`
	Installments         []InstallmentResponse `json:"installments"`
	CreatedAt            string                `json:"created_at"`
	UpdatedAt            string                `json:"updated_at"`
}

type OverdueResponse struct {
	LedgerID   string          `json:"ledger_id"`
	TaskID     string          `json:"task_id"`
	ClientName string          `json:"client_name"`
	EMINumber  int             `json:"emi_number"`
	DueDate    string          `json:"due_date"`
	Balance    decimal.Decimal `json:"balance"`
}

type SummaryResponse struct {
	AsOf             string            `json:"as_of"`
	LedgerCount      int               `json:"ledger_count"`
	InstallmentCount int               `json:"installment_count"`
	TotalScheduled   decimal.Decimal   `json:"total_scheduled"`
	TotalReceived    decimal.Decimal   `json:"total_received"`
	TotalOutstanding decimal.Decimal   `json:"total_outstanding"`
	OverdueCount     int               `json:"overdue_count"`
	OverdueAmount    decimal.Decimal   `json:"overdue_amount"`
	Overdue          []OverdueResponse `json:"overdue"`
}

func toLedgerResponse(l *models.EMILedger) LedgerResponse {
	resp := LedgerResponse{
		ID:                   l.ID,
		ProjectID:            l.ProjectID,
		ProjectName:          l.ProjectName,
		ClientName:           l.ClientName,
		ClientMobileNo:       l.ClientMobileNo,
		SalesExecutiveName:   l.SalesExecutiveName,
		Unit:                 l.Unit,
		PaymentType1:         l.PaymentType1,
		PaymentType2:         l.PaymentType2,
		TotalPayment:         l.TotalPayment,
		TaskID:               l.TaskID,
		TotalInstallments:    l.TotalInstallments,
		TotalPaymentReceived: l.TotalPaymentReceived,
		TotalPaymentLeft:     l.TotalPaymentLeft,
		CreatedBy:            l.CreatedBy,
		Version:              l.Version,
		Installments:         make([]InstallmentResponse, 0, len(l.Installments)),
		CreatedAt:            l.CreatedAt.Format(time.RFC3339),
		UpdatedAt:            l.UpdatedAt.Format(time.RFC3339),
	}
	for _, inst := range l.Installments {
		ir := InstallmentResponse{
			EMINumber:      inst.EMINumber,
			EMIAmount:      inst.EMIAmount,
			DueDate:        inst.DueDate.Format(dateLayout),
			AmountReceived: inst.AmountReceived,
			Balance:        inst.Balance,
			UTR:            inst.UTR,
			BankDetails:    inst.BankDetails,
			PaymentHistory: make([]PaymentResponse, 0, len(inst.Payments)),
		}
		if inst.ReceivedDate != nil {
			s := inst.ReceivedDate.Format(dateLayout)
			ir.ReceivedDate = &s
		}
		for _, p := range inst.Payments {
			ir.PaymentHistory = append(ir.PaymentHistory, PaymentResponse{
				Seq:            p.Seq,
				AmountReceived: p.AmountReceived,
				ReceivedDate:   p.ReceivedDate.Format(dateLayout),
				UTR:            p.UTR,
				BankDetails:    p.BankDetails,
			})
		}
		resp.Installments = append(resp.Installments, ir)
	}
	return resp
}

func toSummaryResponse(s Summary) SummaryResponse {
	resp := SummaryResponse{
		AsOf:             s.AsOf.Format(dateLayout),
		LedgerCount:      s.LedgerCount,
		InstallmentCount: s.InstallmentCount,
		TotalScheduled:   s.TotalScheduled,
		TotalReceived:    s.TotalReceived,
		TotalOutstanding: s.TotalOutstanding,
		OverdueCount:     s.OverdueCount,
		OverdueAmount:    s.OverdueAmount,
		Overdue:          make([]OverdueResponse, 0, len(s.Overdue)),
	}
	for _, o := range s.Overdue {
		resp.Overdue = append(resp.Overdue, OverdueResponse{
			LedgerID:   o.LedgerID,
			TaskID:     o.TaskID,
			ClientName: o.ClientName,
			EMINumber:  o.EMINumber,
			DueDate:    o.DueDate.Format(dateLayout),
			Balance:    o.Balance,
		})
	}
	return resp
}

func (r CreateLedgerRequest) toInput() (CreateInput, error) {
	in := CreateInput{
		ProjectID:         r.ProjectID,
		TotalInstallments: r.TotalInstallments,
		Installments:      make([]InstallmentSeed, 0, len(r.Installments)),
	}
	if r.ProjectID == 0 {
		return in, apperr.InvalidInput("project_id is required")
	}
	for _, s := range r.Installments {
		due, err := parseDate(s.DueDate)
		if err != nil {
			return in, invalidFor(s.EMINumber, "due_date must be YYYY-MM-DD")
		}
		in.Installments = append(in.Installments, InstallmentSeed{
			EMINumber: s.EMINumber,
			EMIAmount: s.EMIAmount,
			DueDate:   due,
		})
	}
	return in, nil
}

func (r RecordPaymentsRequest) toInput() (RecordPaymentsInput, error) {
	in := RecordPaymentsInput{
		TotalInstallments: r.TotalInstallments,
		Installments:      make([]PaymentUpdate, 0, len(r.Installments)),
	}
	for _, p := range r.Installments {
		received, err := parseDate(p.ReceivedDate)
		if err != nil {
			return in, invalidFor(p.EMINumber, "received_date must be YYYY-MM-DD")
		}
		in.Installments = append(in.Installments, PaymentUpdate{
			EMINumber:      p.EMINumber,
			AmountReceived: p.AmountReceived,
			ReceivedDate:   received,
			UTR:            strings.TrimSpace(p.UTR),
			BankDetails:    strings.TrimSpace(p.BankDetails),
		})
	}
	return in, nil
}

func (r EditInstallmentsRequest) toInput() (EditInstallmentsInput, error) {
	in := EditInstallmentsInput{TotalInstallments: r.TotalInstallments}
	if r.Installments == nil {
		return in, nil
	}
	in.Installments = make([]InstallmentEdit, 0, len(r.Installments))
	for _, e := range r.Installments {
		edit := InstallmentEdit{EMINumber: e.EMINumber, EMIAmount: e.EMIAmount}
		if e.DueDate != nil {
			due, err := parseDate(*e.DueDate)
			if err != nil {
				return in, invalidFor(e.EMINumber, "due_date must be YYYY-MM-DD")
			}
			edit.DueDate = &due
		}
		in.Installments = append(in.Installments, edit)
	}
	return in, nil
}

// -------------------------
// Handlers
// -------------------------

// POST /api/emi
func CreateLedgerHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := access.MustActor(c)
		if err != nil {
			return err
		}

		var body CreateLedgerRequest
		if err := c.BodyParser(&body); err != nil {
			return apperr.InvalidInput("invalid request body")
		}
		in, err := body.toInput()
		if err != nil {
			return err
		}

		l, err := svc.Create(c.UserContext(), actor, in)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toLedgerResponse(l))
	}
}

// POST /api/emi/import (multipart: project_id, total_installments, file)
// Seeds the schedule from an .xlsx with EMI number, amount and due date columns.
func ImportLedgerHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := access.MustActor(c)
		if err != nil {
			return err
		}

		projectID, err := strconv.ParseUint(c.FormValue("project_id"), 10, 64)
		if err != nil || projectID == 0 {
			return apperr.InvalidInput("project_id must be a positive integer")
		}
		total, err := strconv.Atoi(c.FormValue("total_installments"))
		if err != nil {
			return apperr.InvalidInput("total_installments must be an integer")
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			return apperr.InvalidInput("file is required")
		}
		if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".xlsx") {
			return apperr.InvalidInput("only .xlsx files are accepted")
		}
		file, err := fileHeader.Open()
		if err != nil {
			return apperr.InvalidInput("could not open uploaded file")
		}
		defer file.Close()

		seeds, err := ParseScheduleXLSX(file)
		if err != nil {
			return err
		}

		l, err := svc.Create(c.UserContext(), actor, CreateInput{
			ProjectID:         uint(projectID),
			TotalInstallments: total,
			Installments:      seeds,
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toLedgerResponse(l))
	}
}

// GET /api/emi
func ListLedgersHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := access.MustActor(c)
		if err != nil {
			return err
		}

		ledgers, err := svc.List(c.UserContext(), actor)
		if err != nil {
			return err
		}
		resp := make([]LedgerResponse, 0, len(ledgers))
		for i := range ledgers {
			resp = append(resp, toLedgerResponse(&ledgers[i]))
		}
		return c.JSON(resp)
	}
}

// GET /api/emi/:id
func GetLedgerHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := access.MustActor(c)
		if err != nil {
			return err
		}

		l, err := svc.Get(c.UserContext(), actor, c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(toLedgerResponse(l))
	}
}

// GET /api/emi/task/<projectName>/<unit>/<clientName>
func GetLedgerByTaskIDHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := access.MustActor(c)
		if err != nil {
			return err
		}

		taskID, err := url.PathUnescape(c.Params("*"))
		if err != nil || strings.TrimSpace(taskID) == "" {
			return apperr.InvalidInput("task id is required")
		}

		l, err := svc.GetByTaskID(c.UserContext(), actor, taskID)
		if err != nil {
			return err
		}
		return c.JSON(toLedgerResponse(l))
	}
}

// PUT /api/emi/:id/payments
func RecordPaymentsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := access.MustActor(c)
		if err != nil {
			return err
		}

		var body RecordPaymentsRequest
		if err := c.BodyParser(&body); err != nil {
			return apperr.InvalidInput("invalid request body")
		}
		in, err := body.toInput()
		if err != nil {
			return err
		}

		l, err := svc.RecordPayments(c.UserContext(), actor, c.Params("id"), in)
		if err != nil {
			return err
		}
		return c.JSON(toLedgerResponse(l))
	}
}

// PUT /api/emi/:id/installments
func EditInstallmentsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := access.MustActor(c)
		if err != nil {
			return err
		}

		var body EditInstallmentsRequest
		if err := c.BodyParser(&body); err != nil {
			return apperr.InvalidInput("invalid request body")
		}
		in, err := body.toInput()
		if err != nil {
			return err
		}

		l, err := svc.EditInstallments(c.UserContext(), actor, c.Params("id"), in)
		if err != nil {
			return err
		}
		return c.JSON(toLedgerResponse(l))
	}
}

// GET /api/emi/summary?as_of=2025-01-31
func SummaryHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := access.MustActor(c)
		if err != nil {
			return err
		}

		asOf := time.Now().UTC()
		if s := c.Query("as_of"); s != "" {
			if asOf, err = parseDate(s); err != nil {
				return apperr.InvalidInput("as_of must be YYYY-MM-DD")
			}
		}

		sum, err := svc.Summary(c.UserContext(), actor, asOf)
		if err != nil {
			return err
		}
		return c.JSON(toSummaryResponse(sum))
	}
}

// GET /api/emi/:id/export
func ExportLedgerHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := access.MustActor(c)
		if err != nil {
			return err
		}

		buf, l, err := svc.Export(c.UserContext(), actor, c.Params("id"))
		if err != nil {
			return err
		}

		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="emi-%s.xlsx"`, l.ID))
		return c.Send(buf.Bytes())
	}
}

// Routes mounts the ledger endpoints. Static paths are registered before
// /:id so they are not captured by it.
func Routes(r fiber.Router, svc *Service) {
	r.Post("/", access.Require(access.OpLedgerCreate), CreateLedgerHandler(svc))
	r.Post("/import", access.Require(access.OpLedgerCreate), ImportLedgerHandler(svc))
	r.Get("/", access.Require(access.OpLedgerRead), ListLedgersHandler(svc))
	r.Get("/summary", access.Require(access.OpLedgerRead), SummaryHandler(svc))
	r.Get("/task/*", access.Require(access.OpLedgerRead), GetLedgerByTaskIDHandler(svc))
	r.Get("/:id", access.Require(access.OpLedgerRead), GetLedgerHandler(svc))
	r.Get("/:id/export", access.Require(access.OpLedgerExport), ExportLedgerHandler(svc))
	r.Put("/:id/payments", access.Require(access.OpLedgerRecordPayment), RecordPaymentsHandler(svc))
	r.Put("/:id/installments", access.Require(access.OpLedgerEditInstallments), EditInstallmentsHandler(svc))
}
