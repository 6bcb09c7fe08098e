package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/nif-edu/fees-api/internal/models"
	appErrors "github.com/nif-edu/fees-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, scope models.TenantScope, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, scope models.TenantScope, id string) (*models.StudentDetail, error)
	ExistsByAdmissionNo(ctx context.Context, schoolID, admissionNo string, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	AdvanceYear(ctx context.Context, scope models.TenantScope, id string) (int, error)
}

type studentFeeOpener interface {
	OpenYear(ctx context.Context, student *models.Student, year int, override *int64) (*models.FeeRecord, error)
}

// StudentService owns student registration and lifecycle. Registration and
// year advancement both open the matching ledger year through the fee service.
type StudentService struct {
	repo      studentRepository
	fees      studentFeeOpener
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs a StudentService.
func NewStudentService(repo studentRepository, fees studentFeeOpener, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &StudentService{repo: repo, fees: fees, validator: validate, logger: logger}
}

// List returns students with their ledger rollups.
func (s *StudentService) List(ctx context.Context, scope models.TenantScope, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	students, total, err := s.repo.List(ctx, scope, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, total, nil
}

// Get fetches one student with ledger rollup.
func (s *StudentService) Get(ctx context.Context, scope models.TenantScope, id string) (*models.StudentDetail, error) {
	detail, err := s.repo.FindByID(ctx, scope, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return detail, nil
}

// Create registers a student and opens their first-year ledger row. The fee
// total for year one must be resolvable up front so registration never leaves
// a student without a ledger.
func (s *StudentService) Create(ctx context.Context, scope models.TenantScope, req models.CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	if !models.ValidProgramType(req.ProgramType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown program type %q", req.ProgramType))
	}
	if scope.SchoolID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schoolId is required")
	}

	if req.TotalFee == nil {
		if _, ok := models.LookupFeeTotal(req.ProgramType, 1); !ok {
			return nil, appErrors.Clone(appErrors.ErrNoFeeTotal, fmt.Sprintf("no fee total for %s year 1", req.ProgramType))
		}
	}

	exists, err := s.repo.ExistsByAdmissionNo(ctx, scope.SchoolID, req.AdmissionNo, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check admission number")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("admission number %s already exists", req.AdmissionNo))
	}

	student := &models.Student{
		SchoolID:      scope.SchoolID,
		CampusID:      scope.CampusID,
		AdmissionNo:   req.AdmissionNo,
		FullName:      req.FullName,
		Gender:        req.Gender,
		Phone:         req.Phone,
		GuardianName:  req.GuardianName,
		GuardianPhone: req.GuardianPhone,
		ProgramType:   req.ProgramType,
		Course:        req.Course,
		DurationYears: req.DurationYears,
		CurrentYear:   1,
		AcademicYear:  req.AcademicYear,
		TotalFee:      req.TotalFee,
		Archived:      false,
	}

	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	if _, err := s.fees.OpenYear(ctx, student, 1, nil); err != nil {
		s.logger.Error("student created but first-year ledger failed",
			zap.String("student_id", student.ID), zap.Error(err))
		return nil, err
	}

	return student, nil
}

// Update modifies the mutable student fields.
func (s *StudentService) Update(ctx context.Context, scope models.TenantScope, id string, req models.UpdateStudentRequest) (*models.StudentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	detail, err := s.repo.FindByID(ctx, scope, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if detail.Archived {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student is archived")
	}

	student := detail.Student
	if req.AdmissionNo != nil && *req.AdmissionNo != student.AdmissionNo {
		exists, err := s.repo.ExistsByAdmissionNo(ctx, student.SchoolID, *req.AdmissionNo, student.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check admission number")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("admission number %s already exists", *req.AdmissionNo))
		}
		student.AdmissionNo = *req.AdmissionNo
	}
	if req.FullName != nil {
		student.FullName = *req.FullName
	}
	if req.Gender != nil {
		student.Gender = *req.Gender
	}
	if req.Phone != nil {
		student.Phone = *req.Phone
	}
	if req.GuardianName != nil {
		student.GuardianName = *req.GuardianName
	}
	if req.GuardianPhone != nil {
		student.GuardianPhone = *req.GuardianPhone
	}
	if req.Course != nil {
		student.Course = *req.Course
	}
	if req.AcademicYear != nil {
		student.AcademicYear = *req.AcademicYear
	}
	if req.TotalFee != nil {
		student.TotalFee = req.TotalFee
	}

	if err := s.repo.Update(ctx, &student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}

	return s.repo.FindByID(ctx, scope, id)
}

// AdvanceYear promotes a student into the next program year and opens its
// ledger row. Promotion past the final year is a conflict, not a no-op.
func (s *StudentService) AdvanceYear(ctx context.Context, scope models.TenantScope, id string) (*models.StudentDetail, error) {
	detail, err := s.repo.FindByID(ctx, scope, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if detail.Archived {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student is archived")
	}
	if detail.CurrentYear >= detail.DurationYears {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student is already in the final year")
	}

	newYear, err := s.repo.AdvanceYear(ctx, scope, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student cannot be advanced")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to advance student")
	}

	student := detail.Student
	student.CurrentYear = newYear
	if _, err := s.fees.OpenYear(ctx, &student, newYear, nil); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) && appErr.Code == appErrors.ErrConflict.Code {
			// Ledger row already opened by an earlier attempt. Promotion stands.
			s.logger.Info("ledger year already open", zap.String("student_id", id), zap.Int("year", newYear))
		} else {
			return nil, err
		}
	}

	return s.repo.FindByID(ctx, scope, id)
}
