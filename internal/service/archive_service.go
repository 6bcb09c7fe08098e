package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/nif-edu/fees-api/internal/models"
	appErrors "github.com/nif-edu/fees-api/pkg/errors"
	"github.com/nif-edu/fees-api/pkg/export"
)

type archiveRepository interface {
	Archive(ctx context.Context, archived *models.ArchivedStudent) error
	List(ctx context.Context, scope models.TenantScope, filter models.ArchiveFilter) ([]models.ArchivedStudent, int, error)
	FindByID(ctx context.Context, scope models.TenantScope, id string) (*models.ArchivedStudent, error)
	ListAll(ctx context.Context, scope models.TenantScope, filter models.ArchiveFilter) ([]models.ArchivedStudent, error)
}

type archiveStudentRepository interface {
	FindByID(ctx context.Context, scope models.TenantScope, id string) (*models.StudentDetail, error)
}

type archiveLedgerRepository interface {
	ListByStudent(ctx context.Context, scope models.TenantScope, studentID string) ([]models.FeeRecord, error)
}

type archiveAuditRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type archiveEventEmitter interface {
	Emit(event string, data interface{})
}

// ArchiveService finalises student records into immutable snapshots and
// serves the archive listings and exports.
type ArchiveService struct {
	repo      archiveRepository
	students  archiveStudentRepository
	ledger    archiveLedgerRepository
	audit     archiveAuditRepository
	emitter   archiveEventEmitter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewArchiveService constructs an ArchiveService.
func NewArchiveService(repo archiveRepository, students archiveStudentRepository, ledger archiveLedgerRepository, audit archiveAuditRepository, emitter archiveEventEmitter, validate *validator.Validate, logger *zap.Logger) *ArchiveService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ArchiveService{
		repo:      repo,
		students:  students,
		ledger:    ledger,
		audit:     audit,
		emitter:   emitter,
		validator: validate,
		logger:    logger,
	}
}

// Archive snapshots the student and their full ledger, then retires the live
// row. The snapshot and the archived flag commit together; a failure leaves
// the student fully live.
func (s *ArchiveService) Archive(ctx context.Context, scope models.TenantScope, req models.ArchiveStudentRequest, actor *models.JWTClaims) (*models.ArchivedStudent, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid archive payload")
	}

	detail, err := s.students.FindByID(ctx, scope, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if detail.Archived {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student is already archived")
	}

	records, err := s.ledger.ListByStudent(ctx, scope, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee records")
	}

	recordsJSON, err := json.Marshal(records)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot fee records")
	}
	snapshotJSON, err := json.Marshal(detail.Student)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot student")
	}

	archived := &models.ArchivedStudent{
		SchoolID:      detail.SchoolID,
		CampusID:      detail.CampusID,
		StudentID:     detail.ID,
		AdmissionNo:   detail.AdmissionNo,
		FullName:      detail.FullName,
		ProgramType:   detail.ProgramType,
		Course:        detail.Course,
		AcademicYear:  detail.AcademicYear,
		FeeTotal:      detail.FeeTotal,
		FeePaid:       detail.FeePaid,
		FeeDue:        detail.FeeDue,
		FeeRecords:    recordsJSON,
		Snapshot:      snapshotJSON,
		ArchiveStatus: req.Status,
	}
	if actor != nil {
		archived.ArchivedBy = actor.UserID
	}

	if err := s.repo.Archive(ctx, archived); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive student")
	}

	s.logger.Info("student archived",
		zap.String("student_id", archived.StudentID),
		zap.String("archive_id", archived.ID),
		zap.String("scope", describeScope(scope)))
	s.recordArchiveAudit(ctx, archived, actor)

	if s.emitter != nil {
		s.emitter.Emit("student.archived", map[string]interface{}{
			"archive_id":     archived.ID,
			"school_id":      archived.SchoolID,
			"student_id":     archived.StudentID,
			"admission_no":   archived.AdmissionNo,
			"archive_status": archived.ArchiveStatus,
			"fee_due":        archived.FeeDue,
		})
	}

	return archived, nil
}

// List returns archived students matching the filter.
func (s *ArchiveService) List(ctx context.Context, scope models.TenantScope, filter models.ArchiveFilter) ([]models.ArchivedStudent, int, error) {
	archives, total, err := s.repo.List(ctx, scope, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list archived students")
	}
	return archives, total, nil
}

// Get fetches one archived snapshot.
func (s *ArchiveService) Get(ctx context.Context, scope models.TenantScope, id string) (*models.ArchivedStudent, error) {
	archived, err := s.repo.FindByID(ctx, scope, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "archived student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load archived student")
	}
	return archived, nil
}

// Restore is reserved. Un-archiving requires reconciling the live tables with
// a snapshot that may have drifted, which is not supported yet.
func (s *ArchiveService) Restore(ctx context.Context, scope models.TenantScope, id string) error {
	return appErrors.Clone(appErrors.ErrNotImplemented, "restore from archive is not supported")
}

var archiveExportHeaders = []string{
	"Admission No", "Full Name", "Program", "Course", "Academic Year",
	"Fee Total", "Fee Paid", "Fee Due", "Status", "Archived At",
}

// BuildDataset flattens archived rows into the tabular form shared by the CSV
// and PDF exporters.
func (s *ArchiveService) BuildDataset(ctx context.Context, scope models.TenantScope, filter models.ArchiveFilter) (export.Dataset, error) {
	archives, err := s.repo.ListAll(ctx, scope, filter)
	if err != nil {
		return export.Dataset{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load archive export rows")
	}

	rows := make([]map[string]string, 0, len(archives))
	for _, a := range archives {
		rows = append(rows, map[string]string{
			"Admission No":  a.AdmissionNo,
			"Full Name":     a.FullName,
			"Program":       string(a.ProgramType),
			"Course":        a.Course,
			"Academic Year": a.AcademicYear,
			"Fee Total":     strconv.FormatInt(a.FeeTotal, 10),
			"Fee Paid":      strconv.FormatInt(a.FeePaid, 10),
			"Fee Due":       strconv.FormatInt(a.FeeDue, 10),
			"Status":        a.ArchiveStatus,
			"Archived At":   a.ArchivedAt.Format("2006-01-02"),
		})
	}

	return export.Dataset{Headers: archiveExportHeaders, Rows: rows}, nil
}

func (s *ArchiveService) recordArchiveAudit(ctx context.Context, archived *models.ArchivedStudent, actor *models.JWTClaims) {
	if s.audit == nil {
		return
	}
	newValues, _ := json.Marshal(map[string]interface{}{
		"archive_id":     archived.ID,
		"archive_status": archived.ArchiveStatus,
		"fee_due":        archived.FeeDue,
	})
	log := &models.AuditLog{
		SchoolID:   &archived.SchoolID,
		Action:     models.AuditActionStudentArchive,
		Resource:   "student",
		ResourceID: &archived.StudentID,
		NewValues:  newValues,
	}
	if actor != nil {
		log.UserID = &actor.UserID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record archive audit log", zap.Error(err))
	}
}

// describeScope is used in log lines where the scope matters for debugging.
func describeScope(scope models.TenantScope) string {
	if scope.SuperAdmin {
		return fmt.Sprintf("superadmin(school=%s)", scope.SchoolID)
	}
	return fmt.Sprintf("school=%s campus=%s", scope.SchoolID, scope.CampusID)
}
