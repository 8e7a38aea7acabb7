package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"zakaria-backend/internal/access"
	"zakaria-backend/internal/apperr"
	"zakaria-backend/internal/audit"
	"zakaria-backend/internal/logger"
	"zakaria-backend/internal/models"
	"zakaria-backend/internal/telemetry"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const entityType = "emi_ledger"

// AuditLogger records ledger mutations.
type AuditLogger interface {
	WriteLog(ctx context.Context, opts audit.LogOptions) error
}

// Service is the access layer in front of the engine. Every operation is
// authorized against the capability table; mutations run under a per-ledger
// lock and persist with an optimistic version check.
type Service struct {
	store  Store
	audit  AuditLogger
	log    zerolog.Logger
	tracer trace.Tracer
	locks  *keyedMutex
}

func NewService(store Store, auditLog AuditLogger, log zerolog.Logger) *Service {
	return &Service{
		store:  store,
		audit:  auditLog,
		log:    log.With().Str("component", "ledger").Logger(),
		tracer: telemetry.Tracer("zakaria-backend/ledger"),
		locks:  newKeyedMutex(),
	}
}

func (s *Service) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// logFor prefers the request-scoped logger when one is attached.
func (s *Service) logFor(ctx context.Context) *zerolog.Logger {
	if l, ok := ctx.Value(logger.LoggerKey).(zerolog.Logger); ok {
		l = l.With().Str("component", "ledger").Logger()
		return &l
	}
	return &s.log
}

func (s *Service) internal(ctx context.Context, msg string, err error) error {
	s.logFor(ctx).Error().Err(err).Msg(msg)
	return apperr.Internal(msg, err)
}

func (s *Service) loadErr(ctx context.Context, id string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("ledger %s not found", id)
	}
	return s.internal(ctx, "could not load ledger", err)
}

func (s *Service) saveErr(ctx context.Context, id string, err error) error {
	if errors.Is(err, ErrVersionConflict) {
		return apperr.Conflict("ledger %s was modified concurrently, retry the request", id)
	}
	return s.internal(ctx, "could not save ledger", err)
}

func (s *Service) writeAudit(ctx context.Context, actor access.Actor, l *models.EMILedger, action models.AuditAction, desc string, before, after any) {
	if s.audit == nil {
		return
	}
	err := s.audit.WriteLog(ctx, audit.LogOptions{
		UserID:      actor.UserID,
		UserName:    actor.Name,
		EntityType:  entityType,
		EntityID:    l.ID,
		Action:      action,
		Description: desc,
		Before:      before,
		After:       after,
	})
	if err != nil {
		s.logFor(ctx).Warn().Err(err).Str("ledger_id", l.ID).Msg("audit log not written")
	}
}

func auditView(l *models.EMILedger) map[string]any {
	return map[string]any{
		"total_installments":     l.TotalInstallments,
		"total_payment_received": l.TotalPaymentReceived.String(),
		"total_payment_left":     l.TotalPaymentLeft.String(),
		"version":                l.Version,
	}
}

// Create builds a ledger from an existing project.
func (s *Service) Create(ctx context.Context, actor access.Actor, in CreateInput) (l *models.EMILedger, err error) {
	ctx, span := s.start(ctx, "ledger.Create", attribute.Int64("project.id", int64(in.ProjectID)))
	defer func() { endSpan(span, err) }()

	if err := access.Authorize(actor, access.OpLedgerCreate, 0); err != nil {
		return nil, err
	}

	project, err := s.store.GetProject(ctx, in.ProjectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("project %d not found", in.ProjectID)
		}
		return nil, s.internal(ctx, "could not load project", err)
	}

	l, err = NewLedger(project, in, actor.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateLedger(ctx, l); err != nil {
		return nil, s.internal(ctx, "could not create ledger", err)
	}
	span.SetAttributes(attribute.String("ledger.id", l.ID))

	s.logFor(ctx).Info().
		Str("ledger_id", l.ID).
		Str("task_id", l.TaskID).
		Int("installments", len(l.Installments)).
		Msg("ledger created")
	s.writeAudit(ctx, actor, l, models.AuditActionCreate,
		fmt.Sprintf("EMI ledger created for %s", l.TaskID), nil, auditView(l))

	return l, nil
}

func (s *Service) Get(ctx context.Context, actor access.Actor, id string) (l *models.EMILedger, err error) {
	ctx, span := s.start(ctx, "ledger.Get", attribute.String("ledger.id", id))
	defer func() { endSpan(span, err) }()

	if err := access.Authorize(actor, access.OpLedgerRead, 0); err != nil {
		return nil, err
	}
	l, err = s.store.GetLedger(ctx, id)
	if err != nil {
		return nil, s.loadErr(ctx, id, err)
	}
	return l, nil
}

func (s *Service) GetByTaskID(ctx context.Context, actor access.Actor, taskID string) (l *models.EMILedger, err error) {
	ctx, span := s.start(ctx, "ledger.GetByTaskID", attribute.String("task.id", taskID))
	defer func() { endSpan(span, err) }()

	if err := access.Authorize(actor, access.OpLedgerRead, 0); err != nil {
		return nil, err
	}
	l, err = s.store.GetLedgerByTaskID(ctx, taskID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("no ledger found for task %s", taskID)
		}
		return nil, s.internal(ctx, "could not load ledger", err)
	}
	return l, nil
}

// List returns every ledger, newest first. An empty result is not an error.
func (s *Service) List(ctx context.Context, actor access.Actor) (ledgers []models.EMILedger, err error) {
	ctx, span := s.start(ctx, "ledger.List")
	defer func() { endSpan(span, err) }()

	if err := access.Authorize(actor, access.OpLedgerRead, 0); err != nil {
		return nil, err
	}
	ledgers, err = s.store.ListLedgers(ctx)
	if err != nil {
		return nil, s.internal(ctx, "could not list ledgers", err)
	}
	if ledgers == nil {
		ledgers = []models.EMILedger{}
	}
	span.SetAttributes(attribute.Int("ledger.count", len(ledgers)))
	return ledgers, nil
}

// mutate runs fn against a freshly loaded ledger under the per-ledger lock
// and persists the result. Callers without a role grant for op are refused
// before the ledger is read; owner-only callers get Forbidden for missing
// ledgers too, so ids are not disclosed.
func (s *Service) mutate(ctx context.Context, actor access.Actor, op access.Operation, id string, fn func(*models.EMILedger) error) (*models.EMILedger, map[string]any, error) {
	byRole := access.Can(actor.Role, op)
	if !byRole {
		if rule, ok := access.RuleFor(op); !ok || !rule.Owner {
			return nil, nil, access.Authorize(actor, op, 0)
		}
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	l, err := s.store.GetLedger(ctx, id)
	if err != nil {
		if !byRole && errors.Is(err, ErrNotFound) {
			return nil, nil, access.Authorize(actor, op, 0)
		}
		return nil, nil, s.loadErr(ctx, id, err)
	}
	if err := access.Authorize(actor, op, l.CreatedBy); err != nil {
		return nil, nil, err
	}

	before := auditView(l)
	if err := fn(l); err != nil {
		return nil, nil, err
	}
	if err := s.store.SaveLedger(ctx, l); err != nil {
		return nil, nil, s.saveErr(ctx, id, err)
	}
	return l, before, nil
}

// RecordPayments appends payments to the referenced installments. The batch
// is applied whole or not at all.
func (s *Service) RecordPayments(ctx context.Context, actor access.Actor, id string, in RecordPaymentsInput) (l *models.EMILedger, err error) {
	ctx, span := s.start(ctx, "ledger.RecordPayments",
		attribute.String("ledger.id", id),
		attribute.Int("payments", len(in.Installments)))
	defer func() { endSpan(span, err) }()

	l, before, err := s.mutate(ctx, actor, access.OpLedgerRecordPayment, id,
		func(l *models.EMILedger) error {
			return ApplyPayments(l, in)
		})
	if err != nil {
		return nil, err
	}

	s.logFor(ctx).Info().
		Str("ledger_id", l.ID).
		Int("payments", len(in.Installments)).
		Str("total_received", l.TotalPaymentReceived.String()).
		Msg("payments recorded")
	s.writeAudit(ctx, actor, l, models.AuditActionUpdate,
		fmt.Sprintf("%d payment(s) recorded on %s", len(in.Installments), l.TaskID), before, auditView(l))

	return l, nil
}

// EditInstallments overwrites emiAmount/dueDate on referenced installments.
func (s *Service) EditInstallments(ctx context.Context, actor access.Actor, id string, in EditInstallmentsInput) (l *models.EMILedger, err error) {
	ctx, span := s.start(ctx, "ledger.EditInstallments",
		attribute.String("ledger.id", id),
		attribute.Int("edits", len(in.Installments)))
	defer func() { endSpan(span, err) }()

	l, before, err := s.mutate(ctx, actor, access.OpLedgerEditInstallments, id,
		func(l *models.EMILedger) error {
			return ApplyEdits(l, in)
		})
	if err != nil {
		return nil, err
	}

	s.logFor(ctx).Info().
		Str("ledger_id", l.ID).
		Int("edits", len(in.Installments)).
		Msg("installments edited")
	s.writeAudit(ctx, actor, l, models.AuditActionUpdate,
		fmt.Sprintf("%d installment(s) edited on %s", len(in.Installments), l.TaskID), before, auditView(l))

	return l, nil
}

// Summary aggregates outstanding and overdue amounts across all ledgers.
func (s *Service) Summary(ctx context.Context, actor access.Actor, asOf time.Time) (sum Summary, err error) {
	ctx, span := s.start(ctx, "ledger.Summary")
	defer func() { endSpan(span, err) }()

	ledgers, err := s.List(ctx, actor)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(ledgers, asOf), nil
}

// Export renders one ledger as an XLSX workbook.
func (s *Service) Export(ctx context.Context, actor access.Actor, id string) (buf *bytes.Buffer, l *models.EMILedger, err error) {
	ctx, span := s.start(ctx, "ledger.Export", attribute.String("ledger.id", id))
	defer func() { endSpan(span, err) }()

	if err := access.Authorize(actor, access.OpLedgerExport, 0); err != nil {
		return nil, nil, err
	}
	l, err = s.store.GetLedger(ctx, id)
	if err != nil {
		return nil, nil, s.loadErr(ctx, id, err)
	}
	buf, err = WriteXLSX(l)
	if err != nil {
		return nil, nil, s.internal(ctx, "could not render workbook", err)
	}
	return buf, l, nil
}
