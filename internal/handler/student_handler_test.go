package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nif-edu/fees-api/internal/middleware"
	"github.com/nif-edu/fees-api/internal/models"
	"github.com/nif-edu/fees-api/internal/service"
)

type studentRepoMock struct {
	students   map[string]*models.StudentDetail
	lastFilter models.StudentFilter
	nextID     int
}

func newStudentRepoMock() *studentRepoMock {
	return &studentRepoMock{students: make(map[string]*models.StudentDetail)}
}

func (m *studentRepoMock) List(ctx context.Context, scope models.TenantScope, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	m.lastFilter = filter
	out := make([]models.StudentDetail, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (m *studentRepoMock) FindByID(ctx context.Context, scope models.TenantScope, id string) (*models.StudentDetail, error) {
	s, ok := m.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *s
	return &copied, nil
}

func (m *studentRepoMock) ExistsByAdmissionNo(ctx context.Context, schoolID, admissionNo string, excludeID string) (bool, error) {
	for _, s := range m.students {
		if s.SchoolID == schoolID && s.AdmissionNo == admissionNo && s.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *studentRepoMock) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		m.nextID++
		student.ID = fmt.Sprintf("st-%d", m.nextID)
	}
	m.students[student.ID] = &models.StudentDetail{Student: *student}
	return nil
}

func (m *studentRepoMock) Update(ctx context.Context, student *models.Student) error {
	stored, ok := m.students[student.ID]
	if !ok {
		return sql.ErrNoRows
	}
	stored.Student = *student
	return nil
}

func (m *studentRepoMock) AdvanceYear(ctx context.Context, scope models.TenantScope, id string) (int, error) {
	stored, ok := m.students[id]
	if !ok || stored.CurrentYear >= stored.DurationYears {
		return 0, sql.ErrNoRows
	}
	stored.CurrentYear++
	return stored.CurrentYear, nil
}

func newStudentHandlerFixture() (*StudentHandler, *studentRepoMock, *ledgerRepoMock) {
	studentRepo := newStudentRepoMock()
	ledger := newLedgerRepoMock()
	fees := service.NewFeeService(ledger, nil, nil, nil, nil, nil, nil, 0)
	students := service.NewStudentService(studentRepo, fees, nil, nil)
	importer := service.NewImportService(students, nil, nil, nil)
	return NewStudentHandler(students, importer), studentRepo, ledger
}

func TestStudentHandlerCreateOpensLedger(t *testing.T) {
	h, studentRepo, ledger := newStudentHandlerFixture()

	payload, _ := json.Marshal(models.CreateStudentRequest{
		AdmissionNo:   "NIF-001",
		FullName:      "Asha Rao",
		Gender:        "F",
		ProgramType:   models.ProgramBVoc,
		Course:        "Interior Design",
		DurationYears: 3,
		AcademicYear:  "2025-26",
	})
	c, w := newFeeTestContext(t, http.MethodPost, "/students", payload)

	h.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, studentRepo.students, 1)
	require.Len(t, ledger.records, 1)
	for _, record := range ledger.records {
		assert.Equal(t, int64(191000), record.TotalFee)
		assert.Equal(t, 1, record.YearNumber)
	}
}

func TestStudentHandlerCreateInvalidBody(t *testing.T) {
	h, _, _ := newStudentHandlerFixture()

	c, w := newFeeTestContext(t, http.MethodPost, "/students", []byte(`{"admission_no":`))
	h.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStudentHandlerListParsesFilters(t *testing.T) {
	h, studentRepo, _ := newStudentHandlerFixture()

	c, w := newFeeTestContext(t, http.MethodGet, "/students?search=asha&programType=B_VOC&archived=false&year=2&page=2&limit=50", nil)
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "asha", studentRepo.lastFilter.Search)
	assert.Equal(t, models.ProgramBVoc, studentRepo.lastFilter.ProgramType)
	require.NotNil(t, studentRepo.lastFilter.Archived)
	assert.False(t, *studentRepo.lastFilter.Archived)
	assert.Equal(t, 2, studentRepo.lastFilter.Year)
	assert.Equal(t, 2, studentRepo.lastFilter.Page)
	assert.Equal(t, 50, studentRepo.lastFilter.PageSize)
}

func TestStudentHandlerImport(t *testing.T) {
	h, studentRepo, _ := newStudentHandlerFixture()

	csvData := "admission_no,full_name,gender,program_type,course,duration_years,academic_year,total_fee\n" +
		"NIF-001,Asha Rao,F,B_VOC,Interior Design,3,2025-26,\n" +
		"NIF-002,Vikram Shah,M,ADV_CERT,Jewellery Design,1,2025-26,\n"

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "students.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csvData))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodPost, "/students/import", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1", Role: models.RoleAdmin, SchoolID: "school-a"})
	c.Set(middleware.ContextScopeKey, models.TenantScope{SchoolID: "school-a", CampusID: "campus-1"})

	h.Import(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data models.ImportReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, 2, envelope.Data.Created)
	assert.Equal(t, 0, envelope.Data.Failed)
	assert.Len(t, studentRepo.students, 2)
}

func TestStudentHandlerImportMissingFile(t *testing.T) {
	h, _, _ := newStudentHandlerFixture()

	c, w := newFeeTestContext(t, http.MethodPost, "/students/import", nil)
	h.Import(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
