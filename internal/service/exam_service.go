package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/nif-edu/fees-api/internal/models"
	appErrors "github.com/nif-edu/fees-api/pkg/errors"
)

type examRepository interface {
	List(ctx context.Context, scope models.TenantScope, filter models.ExamResultFilter) ([]models.ExamResult, int, error)
	FindByID(ctx context.Context, scope models.TenantScope, id string) (*models.ExamResult, error)
	ExistsForExamStudent(ctx context.Context, examID, studentID string) (bool, error)
	Create(ctx context.Context, result *models.ExamResult) error
	Update(ctx context.Context, result *models.ExamResult) error
	PublishByExam(ctx context.Context, scope models.TenantScope, examID string) (int64, error)
}

type examStudentRepository interface {
	FindByID(ctx context.Context, scope models.TenantScope, id string) (*models.StudentDetail, error)
}

type examAuditRepository interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type examEventEmitter interface {
	Emit(event string, data interface{})
}

// ExamService owns exam result entry and publishing. Unpublished rows are
// editable; publishing is a one-way flip across a whole exam.
type ExamService struct {
	repo      examRepository
	students  examStudentRepository
	audit     examAuditRepository
	emitter   examEventEmitter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewExamService constructs an ExamService.
func NewExamService(repo examRepository, students examStudentRepository, audit examAuditRepository, emitter examEventEmitter, validate *validator.Validate, logger *zap.Logger) *ExamService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ExamService{repo: repo, students: students, audit: audit, emitter: emitter, validator: validate, logger: logger}
}

// List returns exam results matching the filter.
func (s *ExamService) List(ctx context.Context, scope models.TenantScope, filter models.ExamResultFilter) ([]models.ExamResult, int, error) {
	results, total, err := s.repo.List(ctx, scope, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list exam results")
	}
	return results, total, nil
}

// Get fetches one exam result.
func (s *ExamService) Get(ctx context.Context, scope models.TenantScope, id string) (*models.ExamResult, error) {
	result, err := s.repo.FindByID(ctx, scope, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam result not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam result")
	}
	return result, nil
}

// Create records one student's marks for an exam.
func (s *ExamService) Create(ctx context.Context, scope models.TenantScope, req models.CreateExamResultRequest) (*models.ExamResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exam result payload")
	}
	if req.MarksObtained > req.MaxMarks {
		return nil, appErrors.Clone(appErrors.ErrValidation, "marks obtained cannot exceed max marks")
	}

	student, err := s.students.FindByID(ctx, scope, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	exists, err := s.repo.ExistsForExamStudent(ctx, req.ExamID, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check exam result")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "result already recorded for this exam and student")
	}

	result := &models.ExamResult{
		SchoolID:      student.SchoolID,
		CampusID:      student.CampusID,
		ExamID:        req.ExamID,
		StudentID:     req.StudentID,
		Subject:       req.Subject,
		MarksObtained: req.MarksObtained,
		MaxMarks:      req.MaxMarks,
		Grade:         req.Grade,
		Status:        req.Status,
		Published:     false,
	}

	if err := s.repo.Create(ctx, result); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create exam result")
	}
	return result, nil
}

// Update modifies an unpublished result. Published rows are immutable.
func (s *ExamService) Update(ctx context.Context, scope models.TenantScope, id string, req models.UpdateExamResultRequest) (*models.ExamResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exam result payload")
	}

	result, err := s.repo.FindByID(ctx, scope, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam result not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam result")
	}
	if result.Published {
		return nil, appErrors.Clone(appErrors.ErrConflict, "published results cannot be modified")
	}

	if req.Subject != nil {
		result.Subject = *req.Subject
	}
	if req.MarksObtained != nil {
		result.MarksObtained = *req.MarksObtained
	}
	if req.MaxMarks != nil {
		result.MaxMarks = *req.MaxMarks
	}
	if req.Grade != nil {
		result.Grade = *req.Grade
	}
	if req.Status != nil {
		result.Status = *req.Status
	}
	if result.MarksObtained > result.MaxMarks {
		return nil, appErrors.Clone(appErrors.ErrValidation, "marks obtained cannot exceed max marks")
	}

	if err := s.repo.Update(ctx, result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "published results cannot be modified")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update exam result")
	}
	return result, nil
}

// Publish flips every result of the exam to published and returns how many
// rows changed. Publishing an already-published exam affects zero rows and is
// not an error.
func (s *ExamService) Publish(ctx context.Context, scope models.TenantScope, examID string, actor *models.JWTClaims) (int64, error) {
	if examID == "" {
		return 0, appErrors.Clone(appErrors.ErrValidation, "examId is required")
	}

	published, err := s.repo.PublishByExam(ctx, scope, examID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish exam results")
	}

	if published > 0 {
		s.recordPublishAudit(ctx, scope, examID, published, actor)
		if s.emitter != nil {
			s.emitter.Emit("results.published", map[string]interface{}{
				"exam_id":   examID,
				"school_id": scope.SchoolID,
				"published": published,
			})
		}
	}
	return published, nil
}

func (s *ExamService) recordPublishAudit(ctx context.Context, scope models.TenantScope, examID string, count int64, actor *models.JWTClaims) {
	if s.audit == nil {
		return
	}
	newValues, _ := json.Marshal(map[string]interface{}{"published": count})
	log := &models.AuditLog{
		Action:     models.AuditActionResultsPublish,
		Resource:   "exam",
		ResourceID: &examID,
		NewValues:  newValues,
	}
	if scope.SchoolID != "" {
		school := scope.SchoolID
		log.SchoolID = &school
	}
	if actor != nil {
		log.UserID = &actor.UserID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record publish audit log", zap.Error(err))
	}
	s.logger.Info("exam results published", zap.String("exam_id", examID), zap.Int64("count", count), zap.String("scope", fmt.Sprintf("school=%s", scope.SchoolID)))
}
