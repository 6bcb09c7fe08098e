package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/nif-edu/fees-api/internal/models"
	appErrors "github.com/nif-edu/fees-api/pkg/errors"
)

type feeLedgerRepository interface {
	ExistsForStudentYear(ctx context.Context, studentID string, year int) (bool, error)
	Create(ctx context.Context, record *models.FeeRecord, installments []models.FeeInstallment) error
	FindByID(ctx context.Context, scope models.TenantScope, id string) (*models.FeeRecordDetail, error)
	List(ctx context.Context, scope models.TenantScope, filter models.FeeFilter) ([]models.FeeRecord, int, error)
	ListByStudent(ctx context.Context, scope models.TenantScope, studentID string) ([]models.FeeRecord, error)
	Collect(ctx context.Context, scope models.TenantScope, id string, payment *models.FeePayment) (*models.FeeRecord, error)
	Summary(ctx context.Context, scope models.TenantScope) ([]models.FeeSummaryRow, error)
}

type feeStudentRepository interface {
	FindByID(ctx context.Context, scope models.TenantScope, id string) (*models.StudentDetail, error)
}

type feeCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type feeAuditRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type feeEventEmitter interface {
	Emit(event string, data interface{})
}

// FeeService owns the fee ledger: opening yearly records, collecting payments
// and aggregating summaries.
type FeeService struct {
	repo       feeLedgerRepository
	students   feeStudentRepository
	cache      feeCache
	audit      feeAuditRepository
	emitter    feeEventEmitter
	validator  *validator.Validate
	logger     *zap.Logger
	summaryTTL time.Duration
}

// NewFeeService constructs a FeeService. cache, audit and emitter may be nil;
// the service degrades to uncached, unaudited, silent operation.
func NewFeeService(repo feeLedgerRepository, students feeStudentRepository, cache feeCache, audit feeAuditRepository, emitter feeEventEmitter, validate *validator.Validate, logger *zap.Logger, summaryTTL time.Duration) *FeeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if summaryTTL <= 0 {
		summaryTTL = 5 * time.Minute
	}
	return &FeeService{
		repo:       repo,
		students:   students,
		cache:      cache,
		audit:      audit,
		emitter:    emitter,
		validator:  validate,
		logger:     logger,
		summaryTTL: summaryTTL,
	}
}

// Create opens a ledger row for the requested student year.
func (s *FeeService) Create(ctx context.Context, scope models.TenantScope, req models.CreateFeeRecordRequest) (*models.FeeRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid fee record payload")
	}

	detail, err := s.students.FindByID(ctx, scope, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	return s.OpenYear(ctx, &detail.Student, req.YearNumber, req.Total)
}

// OpenYear creates the ledger row for one program year. The total resolves in
// precedence order: explicit override, the student's negotiated total, then
// the published schedule. No resolvable total is a client error, not a silent
// zero-fee record.
func (s *FeeService) OpenYear(ctx context.Context, student *models.Student, year int, override *int64) (*models.FeeRecord, error) {
	if student.Archived {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student is archived")
	}
	if year < 1 || year > student.DurationYears {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("year %d is outside the program duration", year))
	}

	exists, err := s.repo.ExistsForStudentYear(ctx, student.ID, year)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing fee record")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("fee record for year %d already exists", year))
	}

	total, err := s.resolveTotal(student, year, override)
	if err != nil {
		return nil, err
	}

	record := &models.FeeRecord{
		SchoolID:   student.SchoolID,
		CampusID:   student.CampusID,
		StudentID:  student.ID,
		YearNumber: year,
		TotalFee:   total,
		PaidAmount: 0,
		DueAmount:  total,
		Status:     models.FeeStatusDue,
	}

	if err := s.repo.Create(ctx, record, buildInstallmentPlan(total)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create fee record")
	}

	s.invalidateSummary(ctx, record.SchoolID)
	return record, nil
}

func (s *FeeService) resolveTotal(student *models.Student, year int, override *int64) (int64, error) {
	if override != nil {
		if *override <= 0 {
			return 0, appErrors.Clone(appErrors.ErrValidation, "total override must be positive")
		}
		return *override, nil
	}
	if student.TotalFee != nil && *student.TotalFee > 0 {
		return *student.TotalFee, nil
	}
	if total, ok := models.LookupFeeTotal(student.ProgramType, year); ok {
		return total, nil
	}
	return 0, appErrors.Clone(appErrors.ErrNoFeeTotal, fmt.Sprintf("no fee total for %s year %d", student.ProgramType, year))
}

// buildInstallmentPlan splits the total into two term installments, the odd
// rupee landing in the first term.
func buildInstallmentPlan(total int64) []models.FeeInstallment {
	second := total / 2
	first := total - second
	return []models.FeeInstallment{
		{Seq: 1, Label: "Term 1", Amount: first, Status: models.FeeStatusDue},
		{Seq: 2, Label: "Term 2", Amount: second, Status: models.FeeStatusDue},
	}
}

// Get fetches one ledger row with its payments and installments.
func (s *FeeService) Get(ctx context.Context, scope models.TenantScope, id string) (*models.FeeRecordDetail, error) {
	detail, err := s.repo.FindByID(ctx, scope, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "fee record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee record")
	}
	return detail, nil
}

// List returns ledger rows matching the filter.
func (s *FeeService) List(ctx context.Context, scope models.TenantScope, filter models.FeeFilter) ([]models.FeeRecord, int, error) {
	records, total, err := s.repo.List(ctx, scope, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list fee records")
	}
	return records, total, nil
}

// ListByStudent returns the full ledger history for one student.
func (s *FeeService) ListByStudent(ctx context.Context, scope models.TenantScope, studentID string) ([]models.FeeRecord, error) {
	records, err := s.repo.ListByStudent(ctx, scope, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list student fee records")
	}
	return records, nil
}

// Collect records a payment against a ledger row. The repository applies the
// amount conditionally; a zero-row result against an existing record means the
// amount exceeded the due balance and nothing was written.
func (s *FeeService) Collect(ctx context.Context, scope models.TenantScope, id string, req models.CollectPaymentRequest, actor *models.JWTClaims) (*models.FeeRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}

	payment := &models.FeePayment{
		Amount:    req.Amount,
		Method:    req.Method,
		Reference: req.Reference,
		Notes:     req.Notes,
		PaidOn:    time.Now().UTC(),
	}

	updated, err := s.repo.Collect(ctx, scope, id, payment)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, findErr := s.repo.FindByID(ctx, scope, id); findErr != nil {
				if errors.Is(findErr, sql.ErrNoRows) {
					return nil, appErrors.Clone(appErrors.ErrNotFound, "fee record not found")
				}
				return nil, appErrors.Wrap(findErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee record")
			}
			return nil, appErrors.Clone(appErrors.ErrAmountExceeds, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to collect payment")
	}

	s.recordCollectAudit(ctx, updated, payment, actor)
	s.invalidateSummary(ctx, updated.SchoolID)

	if s.emitter != nil {
		s.emitter.Emit("fee.collected", map[string]interface{}{
			"fee_record_id": updated.ID,
			"school_id":     updated.SchoolID,
			"student_id":    updated.StudentID,
			"amount":        payment.Amount,
			"paid_amount":   updated.PaidAmount,
			"due_amount":    updated.DueAmount,
			"status":        updated.Status,
		})
	}

	return updated, nil
}

// Summary aggregates ledger amounts per program type, served from cache when
// warm.
func (s *FeeService) Summary(ctx context.Context, scope models.TenantScope) ([]models.FeeSummaryRow, error) {
	key := summaryCacheKey(scope)
	if s.cache != nil {
		var cached []models.FeeSummaryRow
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("fee summary cache read failed", zap.Error(err))
		}
	}

	rows, err := s.repo.Summary(ctx, scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build fee summary")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, rows, s.summaryTTL); err != nil {
			s.logger.Warn("fee summary cache write failed", zap.Error(err))
		}
	}
	return rows, nil
}

func (s *FeeService) recordCollectAudit(ctx context.Context, record *models.FeeRecord, payment *models.FeePayment, actor *models.JWTClaims) {
	if s.audit == nil {
		return
	}
	newValues, _ := json.Marshal(map[string]interface{}{
		"amount":      payment.Amount,
		"method":      payment.Method,
		"paid_amount": record.PaidAmount,
		"due_amount":  record.DueAmount,
		"status":      record.Status,
	})
	log := &models.AuditLog{
		SchoolID:   &record.SchoolID,
		Action:     models.AuditActionFeeCollect,
		Resource:   "fee_record",
		ResourceID: &record.ID,
		NewValues:  newValues,
	}
	if actor != nil {
		log.UserID = &actor.UserID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record fee collect audit log", zap.Error(err))
	}
}

func (s *FeeService) invalidateSummary(ctx context.Context, schoolID string) {
	if s.cache == nil {
		return
	}
	pattern := fmt.Sprintf("fees:summary:%s:*", schoolID)
	if err := s.cache.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("fee summary cache invalidation failed", zap.Error(err))
	}
}

func summaryCacheKey(scope models.TenantScope) string {
	campus := scope.CampusID
	if campus == "" {
		campus = "all"
	}
	school := scope.SchoolID
	if school == "" {
		school = "all"
	}
	return fmt.Sprintf("fees:summary:%s:%s", school, campus)
}
