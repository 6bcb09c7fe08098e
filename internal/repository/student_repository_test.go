package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nif-edu/fees-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func studentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "school_id", "campus_id", "admission_no", "full_name", "gender", "phone",
		"guardian_name", "guardian_phone", "program_type", "course", "duration_years", "current_year",
		"academic_year", "total_fee", "archived", "created_at", "updated_at",
		"fee_total", "fee_paid", "fee_due", "fee_status",
	}).AddRow(
		"st-1", "school-a", "campus-1", "NIF-001", "Asha Rao", "F", "9000000001",
		"Prakash Rao", "9000000002", "B_VOC", "Interior Design", 3, 1,
		"2025-26", nil, false, time.Now(), time.Now(),
		int64(191000), int64(50000), int64(141000), "partial",
	)
}

func TestStudentRepositoryListScoped(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	scope := models.TenantScope{SchoolID: "school-a", CampusID: "campus-1"}
	mock.ExpectQuery(`SELECT s.id, s.school_id, s.campus_id`).
		WithArgs("school-a", "campus-1").
		WillReturnRows(studentRows())
	mock.ExpectQuery(`SELECT COUNT\(s.id\)`).
		WithArgs("school-a", "campus-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	students, total, err := repo.List(context.Background(), scope, models.StudentFilter{})
	require.NoError(t, err)
	assert.Len(t, students, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, int64(141000), students[0].FeeDue)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	scope := models.TenantScope{SchoolID: "school-a"}
	archived := false
	mock.ExpectQuery(`SELECT s.id, s.school_id, s.campus_id`).
		WithArgs("school-a", "B_VOC", 1, false, "%asha%").
		WillReturnRows(studentRows())
	mock.ExpectQuery(`SELECT COUNT\(s.id\)`).
		WithArgs("school-a", "B_VOC", 1, false, "%asha%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	_, _, err := repo.List(context.Background(), scope, models.StudentFilter{
		ProgramType: models.ProgramBVoc,
		Year:        1,
		Archived:    &archived,
		Search:      "Asha",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(`SELECT s.id, s.school_id, s.campus_id`).
		WithArgs("missing", "school-a").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), models.TenantScope{SchoolID: "school-a"}, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec("INSERT INTO students").
		WillReturnResult(sqlmock.NewResult(1, 1))

	student := &models.Student{
		SchoolID:      "school-a",
		CampusID:      "campus-1",
		AdmissionNo:   "NIF-001",
		FullName:      "Asha Rao",
		ProgramType:   models.ProgramBVoc,
		Course:        "Interior Design",
		DurationYears: 3,
		CurrentYear:   1,
		AcademicYear:  "2025-26",
	}
	require.NoError(t, repo.Create(context.Background(), student))
	assert.NotEmpty(t, student.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryExistsByAdmissionNo(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery("SELECT 1 FROM students").
		WithArgs("school-a", "NIF-001").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsByAdmissionNo(context.Background(), "school-a", "NIF-001", "")
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery("SELECT 1 FROM students").
		WithArgs("school-a", "NIF-002").
		WillReturnError(sql.ErrNoRows)

	exists, err = repo.ExistsByAdmissionNo(context.Background(), "school-a", "NIF-002", "")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryAdvanceYear(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery("UPDATE students SET current_year").
		WithArgs("st-1", sqlmock.AnyArg(), "school-a").
		WillReturnRows(sqlmock.NewRows([]string{"current_year"}).AddRow(2))

	year, err := repo.AdvanceYear(context.Background(), models.TenantScope{SchoolID: "school-a"}, "st-1")
	require.NoError(t, err)
	assert.Equal(t, 2, year)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryAdvanceYearAtCap(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery("UPDATE students SET current_year").
		WithArgs("st-1", sqlmock.AnyArg(), "school-a").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.AdvanceYear(context.Background(), models.TenantScope{SchoolID: "school-a"}, "st-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
