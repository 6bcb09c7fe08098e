package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nif-edu/fees-api/internal/models"
	appErrors "github.com/nif-edu/fees-api/pkg/errors"
)

type mockArchiveRepo struct {
	archives map[string]*models.ArchivedStudent
	flagged  []string
}

func newMockArchiveRepo() *mockArchiveRepo {
	return &mockArchiveRepo{archives: make(map[string]*models.ArchivedStudent)}
}

func (m *mockArchiveRepo) Archive(ctx context.Context, archived *models.ArchivedStudent) error {
	if archived.ID == "" {
		archived.ID = "arc-1"
	}
	if archived.ArchivedAt.IsZero() {
		archived.ArchivedAt = time.Now().UTC()
	}
	copied := *archived
	m.archives[archived.ID] = &copied
	m.flagged = append(m.flagged, archived.StudentID)
	return nil
}

func (m *mockArchiveRepo) List(ctx context.Context, scope models.TenantScope, filter models.ArchiveFilter) ([]models.ArchivedStudent, int, error) {
	out := make([]models.ArchivedStudent, 0, len(m.archives))
	for _, a := range m.archives {
		out = append(out, *a)
	}
	return out, len(out), nil
}

func (m *mockArchiveRepo) FindByID(ctx context.Context, scope models.TenantScope, id string) (*models.ArchivedStudent, error) {
	a, ok := m.archives[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return a, nil
}

func (m *mockArchiveRepo) ListAll(ctx context.Context, scope models.TenantScope, filter models.ArchiveFilter) ([]models.ArchivedStudent, error) {
	out := make([]models.ArchivedStudent, 0, len(m.archives))
	for _, a := range m.archives {
		out = append(out, *a)
	}
	return out, nil
}

func newArchiveService(repo *mockArchiveRepo, students *mockStudentReader, feeRepo *mockFeeRepo, audit *mockAudit, emitter *mockEmitter) *ArchiveService {
	var a archiveAuditRepository
	if audit != nil {
		a = audit
	}
	var e archiveEventEmitter
	if emitter != nil {
		e = emitter
	}
	return NewArchiveService(repo, students, feeRepo, a, e, nil, nil)
}

func TestArchiveSnapshotsStudentAndLedger(t *testing.T) {
	repo := newMockArchiveRepo()
	feeRepo := newMockFeeRepo()
	audit := &mockAudit{}
	emitter := &mockEmitter{}

	student := bVocStudent()
	students := &mockStudentReader{students: map[string]*models.StudentDetail{
		student.ID: {Student: *student, FeeTotal: 191000, FeePaid: 191000, FeeDue: 0, FeeStatus: models.FeeStatusPaid},
	}}

	fees := newFeeService(feeRepo, nil, nil, nil, nil)
	_, err := fees.OpenYear(context.Background(), student, 1, nil)
	require.NoError(t, err)

	svc := newArchiveService(repo, students, feeRepo, audit, emitter)
	scope := models.TenantScope{SchoolID: "school-a", CampusID: "campus-1"}
	actor := &models.JWTClaims{UserID: "u1"}

	archived, err := svc.Archive(context.Background(), scope, models.ArchiveStudentRequest{StudentID: student.ID, Status: "completed"}, actor)
	require.NoError(t, err)

	assert.Equal(t, student.ID, archived.StudentID)
	assert.Equal(t, "completed", archived.ArchiveStatus)
	assert.Equal(t, "u1", archived.ArchivedBy)
	assert.Equal(t, int64(191000), archived.FeeTotal)

	var records []models.FeeRecord
	require.NoError(t, json.Unmarshal(archived.FeeRecords, &records))
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].YearNumber)

	var snapshot models.Student
	require.NoError(t, json.Unmarshal(archived.Snapshot, &snapshot))
	assert.Equal(t, student.AdmissionNo, snapshot.AdmissionNo)

	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionStudentArchive, audit.logs[0].Action)
	assert.Contains(t, emitter.events, "student.archived")
}

func TestArchiveAlreadyArchived(t *testing.T) {
	student := bVocStudent()
	student.Archived = true
	students := &mockStudentReader{students: map[string]*models.StudentDetail{
		student.ID: {Student: *student},
	}}
	svc := newArchiveService(newMockArchiveRepo(), students, newMockFeeRepo(), nil, nil)

	_, err := svc.Archive(context.Background(), models.TenantScope{SchoolID: "school-a"},
		models.ArchiveStudentRequest{StudentID: student.ID, Status: "completed"}, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestArchiveUnknownStudent(t *testing.T) {
	svc := newArchiveService(newMockArchiveRepo(), &mockStudentReader{}, newMockFeeRepo(), nil, nil)

	_, err := svc.Archive(context.Background(), models.TenantScope{SchoolID: "school-a"},
		models.ArchiveStudentRequest{StudentID: "ghost", Status: "dropped"}, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRestoreNotImplemented(t *testing.T) {
	svc := newArchiveService(newMockArchiveRepo(), &mockStudentReader{}, newMockFeeRepo(), nil, nil)

	err := svc.Restore(context.Background(), models.TenantScope{SchoolID: "school-a"}, "arc-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotImplemented.Code, appErrors.FromError(err).Code)
}

func TestBuildDatasetFlattensArchives(t *testing.T) {
	repo := newMockArchiveRepo()
	repo.archives["arc-1"] = &models.ArchivedStudent{
		ID:            "arc-1",
		AdmissionNo:   "NIF-001",
		FullName:      "Asha Rao",
		ProgramType:   models.ProgramBVoc,
		Course:        "Interior Design",
		AcademicYear:  "2025-26",
		FeeTotal:      191000,
		FeePaid:       150000,
		FeeDue:        41000,
		ArchiveStatus: "dropped",
		ArchivedAt:    time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
	}
	svc := newArchiveService(repo, &mockStudentReader{}, newMockFeeRepo(), nil, nil)

	dataset, err := svc.BuildDataset(context.Background(), models.TenantScope{SchoolID: "school-a"}, models.ArchiveFilter{})
	require.NoError(t, err)
	require.Len(t, dataset.Rows, 1)
	assert.Equal(t, "NIF-001", dataset.Rows[0]["Admission No"])
	assert.Equal(t, "41000", dataset.Rows[0]["Fee Due"])
	assert.Equal(t, "2026-03-15", dataset.Rows[0]["Archived At"])
	assert.Contains(t, dataset.Headers, "Fee Total")
}
