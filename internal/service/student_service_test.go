package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nif-edu/fees-api/internal/models"
	appErrors "github.com/nif-edu/fees-api/pkg/errors"
)

type mockStudentRepo struct {
	students map[string]*models.Student
	rollups  map[string]models.StudentDetail
	nextID   int
}

func newMockStudentRepo() *mockStudentRepo {
	return &mockStudentRepo{
		students: make(map[string]*models.Student),
		rollups:  make(map[string]models.StudentDetail),
	}
}

func (m *mockStudentRepo) List(ctx context.Context, scope models.TenantScope, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	out := make([]models.StudentDetail, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, models.StudentDetail{Student: *s})
	}
	return out, len(out), nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, scope models.TenantScope, id string) (*models.StudentDetail, error) {
	s, ok := m.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	detail := models.StudentDetail{Student: *s}
	if rollup, ok := m.rollups[id]; ok {
		detail.FeeTotal = rollup.FeeTotal
		detail.FeePaid = rollup.FeePaid
		detail.FeeDue = rollup.FeeDue
		detail.FeeStatus = rollup.FeeStatus
	}
	return &detail, nil
}

func (m *mockStudentRepo) ExistsByAdmissionNo(ctx context.Context, schoolID, admissionNo string, excludeID string) (bool, error) {
	for _, s := range m.students {
		if s.SchoolID == schoolID && s.AdmissionNo == admissionNo && s.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		m.nextID++
		student.ID = fmt.Sprintf("st-%d", m.nextID)
	}
	copied := *student
	m.students[student.ID] = &copied
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error {
	if _, ok := m.students[student.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *student
	m.students[student.ID] = &copied
	return nil
}

func (m *mockStudentRepo) AdvanceYear(ctx context.Context, scope models.TenantScope, id string) (int, error) {
	s, ok := m.students[id]
	if !ok || s.Archived || s.CurrentYear >= s.DurationYears {
		return 0, sql.ErrNoRows
	}
	s.CurrentYear++
	return s.CurrentYear, nil
}

func newStudentService(repo *mockStudentRepo, feeRepo *mockFeeRepo) *StudentService {
	fees := newFeeService(feeRepo, nil, nil, nil, nil)
	return NewStudentService(repo, fees, nil, nil)
}

func validStudentRequest() models.CreateStudentRequest {
	return models.CreateStudentRequest{
		AdmissionNo:   "NIF-001",
		FullName:      "Asha Rao",
		Gender:        "F",
		ProgramType:   models.ProgramBVoc,
		Course:        "Interior Design",
		DurationYears: 3,
		AcademicYear:  "2025-26",
	}
}

func TestStudentCreateOpensFirstYearLedger(t *testing.T) {
	repo := newMockStudentRepo()
	feeRepo := newMockFeeRepo()
	svc := newStudentService(repo, feeRepo)

	scope := models.TenantScope{SchoolID: "school-a", CampusID: "campus-1"}
	student, err := svc.Create(context.Background(), scope, validStudentRequest())
	require.NoError(t, err)
	assert.Equal(t, "school-a", student.SchoolID)
	assert.Equal(t, 1, student.CurrentYear)

	records, err := feeRepo.ListByStudent(context.Background(), scope, student.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].YearNumber)
	assert.Equal(t, int64(191000), records[0].TotalFee)
	assert.Equal(t, models.FeeStatusDue, records[0].Status)
}

func TestStudentCreateDuplicateAdmissionNo(t *testing.T) {
	repo := newMockStudentRepo()
	svc := newStudentService(repo, newMockFeeRepo())

	scope := models.TenantScope{SchoolID: "school-a"}
	_, err := svc.Create(context.Background(), scope, validStudentRequest())
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), scope, validStudentRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestStudentCreateUnknownProgramType(t *testing.T) {
	repo := newMockStudentRepo()
	svc := newStudentService(repo, newMockFeeRepo())

	req := validStudentRequest()
	req.ProgramType = models.ProgramType("PHD")
	scope := models.TenantScope{SchoolID: "school-a"}
	_, err := svc.Create(context.Background(), scope, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	// Rejected before any row is written.
	assert.Empty(t, repo.students)
}

func TestStudentCreateRequiresSchool(t *testing.T) {
	svc := newStudentService(newMockStudentRepo(), newMockFeeRepo())

	_, err := svc.Create(context.Background(), models.TenantScope{SuperAdmin: true}, validStudentRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStudentUpdateArchivedRejected(t *testing.T) {
	repo := newMockStudentRepo()
	svc := newStudentService(repo, newMockFeeRepo())

	scope := models.TenantScope{SchoolID: "school-a"}
	student, err := svc.Create(context.Background(), scope, validStudentRequest())
	require.NoError(t, err)
	repo.students[student.ID].Archived = true

	name := "Renamed"
	_, err = svc.Update(context.Background(), scope, student.ID, models.UpdateStudentRequest{FullName: &name})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestStudentAdvanceYearOpensNextLedger(t *testing.T) {
	repo := newMockStudentRepo()
	feeRepo := newMockFeeRepo()
	svc := newStudentService(repo, feeRepo)

	scope := models.TenantScope{SchoolID: "school-a"}
	student, err := svc.Create(context.Background(), scope, validStudentRequest())
	require.NoError(t, err)

	detail, err := svc.AdvanceYear(context.Background(), scope, student.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, detail.CurrentYear)

	records, err := feeRepo.ListByStudent(context.Background(), scope, student.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	var year2 *models.FeeRecord
	for i := range records {
		if records[i].YearNumber == 2 {
			year2 = &records[i]
		}
	}
	require.NotNil(t, year2)
	assert.Equal(t, int64(171000), year2.TotalFee)
}

func TestStudentAdvanceYearAtFinalYear(t *testing.T) {
	repo := newMockStudentRepo()
	svc := newStudentService(repo, newMockFeeRepo())

	scope := models.TenantScope{SchoolID: "school-a"}
	student, err := svc.Create(context.Background(), scope, validStudentRequest())
	require.NoError(t, err)
	repo.students[student.ID].CurrentYear = 3

	_, err = svc.AdvanceYear(context.Background(), scope, student.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}
