package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nif-edu/fees-api/internal/models"
)

func examRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "school_id", "campus_id", "exam_id", "student_id", "subject",
		"marks_obtained", "max_marks", "grade", "status", "published", "created_at", "updated_at",
	}).AddRow(
		"res-1", "school-a", "campus-1", "sem1-2026", "st-1", "Design Theory",
		72.0, 100.0, "B+", "pass", false, time.Now(), time.Now(),
	)
}

func TestExamRepositoryListByExam(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExamRepository(db)

	scope := models.TenantScope{SchoolID: "school-a"}
	mock.ExpectQuery(`SELECT e.id, e.school_id`).
		WithArgs("school-a", "sem1-2026").
		WillReturnRows(examRows())
	mock.ExpectQuery(`SELECT COUNT\(e.id\)`).
		WithArgs("school-a", "sem1-2026").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	results, total, err := repo.List(context.Background(), scope, models.ExamResultFilter{ExamID: "sem1-2026"})
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "st-1", results[0].StudentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamRepositoryUpdatePublishedRejected(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExamRepository(db)

	mock.ExpectExec(`UPDATE exam_results SET subject`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.ExamResult{
		ID:       "res-1",
		SchoolID: "school-a",
		Subject:  "Design Theory",
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamRepositoryPublishByExam(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExamRepository(db)

	scope := models.TenantScope{SchoolID: "school-a", CampusID: "campus-1"}
	mock.ExpectExec(`UPDATE exam_results e SET published = true`).
		WithArgs("sem1-2026", sqlmock.AnyArg(), "school-a", "campus-1").
		WillReturnResult(sqlmock.NewResult(0, 12))

	count, err := repo.PublishByExam(context.Background(), scope, "sem1-2026")
	require.NoError(t, err)
	assert.Equal(t, int64(12), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamRepositoryExistsForExamStudent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExamRepository(db)

	mock.ExpectQuery(`SELECT 1 FROM exam_results`).
		WithArgs("sem1-2026", "st-1").
		WillReturnError(sql.ErrNoRows)

	exists, err := repo.ExistsForExamStudent(context.Background(), "sem1-2026", "st-1")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
