package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/nif-edu/fees-api/internal/models"
	appErrors "github.com/nif-edu/fees-api/pkg/errors"
)

type importStudentCreator interface {
	Create(ctx context.Context, scope models.TenantScope, req models.CreateStudentRequest) (*models.Student, error)
}

type importAuditRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type importEventEmitter interface {
	Emit(event string, data interface{})
}

// ImportService handles bulk student registration from CSV uploads. Rows are
// processed independently: a bad row is reported and skipped, the rest
// commit.
type ImportService struct {
	students importStudentCreator
	audit    importAuditRepository
	emitter  importEventEmitter
	logger   *zap.Logger
	maxRows  int
}

// NewImportService constructs an ImportService.
func NewImportService(students importStudentCreator, audit importAuditRepository, emitter importEventEmitter, logger *zap.Logger) *ImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportService{students: students, audit: audit, emitter: emitter, logger: logger, maxRows: 1000}
}

var importRequiredColumns = []string{"admission_no", "full_name", "program_type", "course", "duration_years", "academic_year"}

// ImportStudents parses the CSV stream and registers one student per row.
// The returned report lists every rejected row with its reason.
func (s *ImportService) ImportStudents(ctx context.Context, scope models.TenantScope, r io.Reader, actor *models.JWTClaims) (*models.ImportReport, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "csv file is empty or unreadable")
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range importRequiredColumns {
		if _, ok := columns[required]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("missing required column %q", required))
		}
	}

	report := &models.ImportReport{Errors: []models.ImportRowError{}}
	rowNum := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, models.ImportRowError{Row: rowNum, Message: "malformed csv row"})
			continue
		}
		if rowNum-1 > s.maxRows {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("upload exceeds the %d row limit", s.maxRows))
		}

		req, err := buildImportRequest(columns, record)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, models.ImportRowError{Row: rowNum, Message: err.Error()})
			continue
		}

		if _, err := s.students.Create(ctx, scope, req); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, models.ImportRowError{Row: rowNum, Message: appErrors.FromError(err).Message})
			continue
		}
		report.Created++
	}

	s.recordImportAudit(ctx, scope, report, actor)

	if s.emitter != nil && report.Created > 0 {
		s.emitter.Emit("students.imported", map[string]interface{}{
			"school_id": scope.SchoolID,
			"created":   report.Created,
			"failed":    report.Failed,
		})
	}

	s.logger.Info("student import finished",
		zap.String("school_id", scope.SchoolID),
		zap.Int("created", report.Created),
		zap.Int("failed", report.Failed))
	return report, nil
}

func buildImportRequest(columns map[string]int, record []string) (models.CreateStudentRequest, error) {
	cell := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	duration, err := strconv.Atoi(cell("duration_years"))
	if err != nil {
		return models.CreateStudentRequest{}, fmt.Errorf("duration_years must be a number")
	}

	req := models.CreateStudentRequest{
		AdmissionNo:   cell("admission_no"),
		FullName:      cell("full_name"),
		Gender:        cell("gender"),
		Phone:         cell("phone"),
		GuardianName:  cell("guardian_name"),
		GuardianPhone: cell("guardian_phone"),
		ProgramType:   models.ProgramType(strings.ToUpper(cell("program_type"))),
		Course:        cell("course"),
		DurationYears: duration,
		AcademicYear:  cell("academic_year"),
	}

	if raw := cell("total_fee"); raw != "" {
		total, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || total <= 0 {
			return models.CreateStudentRequest{}, fmt.Errorf("total_fee must be a positive number")
		}
		req.TotalFee = &total
	}

	return req, nil
}

func (s *ImportService) recordImportAudit(ctx context.Context, scope models.TenantScope, report *models.ImportReport, actor *models.JWTClaims) {
	if s.audit == nil {
		return
	}
	newValues, _ := json.Marshal(report)
	log := &models.AuditLog{
		Action:    models.AuditActionStudentImport,
		Resource:  "student",
		NewValues: newValues,
	}
	if scope.SchoolID != "" {
		school := scope.SchoolID
		log.SchoolID = &school
	}
	if actor != nil {
		log.UserID = &actor.UserID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record import audit log", zap.Error(err))
	}
}
