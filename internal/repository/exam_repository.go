package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nif-edu/fees-api/internal/models"
)

const examColumns = `e.id, e.school_id, e.campus_id, e.exam_id, e.student_id, e.subject,
        e.marks_obtained, e.max_marks, e.grade, e.status, e.published, e.created_at, e.updated_at`

// ExamRepository manages exam result rows.
type ExamRepository struct {
	db *sqlx.DB
}

// NewExamRepository constructs an ExamRepository.
func NewExamRepository(db *sqlx.DB) *ExamRepository {
	return &ExamRepository{db: db}
}

func examScopeConditions(scope models.TenantScope, args []interface{}) ([]string, []interface{}) {
	conditions := []string{"1=1"}
	if scope.SchoolID != "" {
		conditions = append(conditions, fmt.Sprintf("e.school_id = $%d", len(args)+1))
		args = append(args, scope.SchoolID)
	}
	if scope.CampusID != "" {
		conditions = append(conditions, fmt.Sprintf("e.campus_id = $%d", len(args)+1))
		args = append(args, scope.CampusID)
	}
	return conditions, args
}

// List returns exam results matching the filter within the scope.
func (r *ExamRepository) List(ctx context.Context, scope models.TenantScope, filter models.ExamResultFilter) ([]models.ExamResult, int, error) {
	base := "FROM exam_results e"
	args := []interface{}{}
	conditions, args := examScopeConditions(scope, args)

	if filter.ExamID != "" {
		conditions = append(conditions, fmt.Sprintf("e.exam_id = $%d", len(args)+1))
		args = append(args, filter.ExamID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Published != nil {
		conditions = append(conditions, fmt.Sprintf("e.published = $%d", len(args)+1))
		args = append(args, *filter.Published)
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s ORDER BY e.created_at DESC LIMIT %d OFFSET %d`,
		examColumns, base, size, offset)

	var results []models.ExamResult
	if err := r.db.SelectContext(ctx, &results, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list exam results: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(e.id) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count exam results: %w", err)
	}
	return results, total, nil
}

// FindByID fetches one exam result, scoped.
func (r *ExamRepository) FindByID(ctx context.Context, scope models.TenantScope, id string) (*models.ExamResult, error) {
	args := []interface{}{id}
	conditions, args := examScopeConditions(scope, args)
	query := fmt.Sprintf(`SELECT %s FROM exam_results e WHERE e.id = $1 AND %s`,
		examColumns, strings.Join(conditions, " AND "))

	var result models.ExamResult
	if err := r.db.GetContext(ctx, &result, query, args...); err != nil {
		return nil, err
	}
	return &result, nil
}

// ExistsForExamStudent reports whether a result already exists for the
// (exam, student) pair.
func (r *ExamRepository) ExistsForExamStudent(ctx context.Context, examID, studentID string) (bool, error) {
	const query = `SELECT 1 FROM exam_results WHERE exam_id = $1 AND student_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, examID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check exam result: %w", err)
	}
	return true, nil
}

// Create inserts a new exam result.
func (r *ExamRepository) Create(ctx context.Context, result *models.ExamResult) error {
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	result.CreatedAt = now
	result.UpdatedAt = now
	const query = `INSERT INTO exam_results (id, school_id, campus_id, exam_id, student_id, subject,
        marks_obtained, max_marks, grade, status, published, created_at, updated_at)
        VALUES (:id, :school_id, :campus_id, :exam_id, :student_id, :subject,
        :marks_obtained, :max_marks, :grade, :status, :published, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, result); err != nil {
		return fmt.Errorf("create exam result: %w", err)
	}
	return nil
}

// Update modifies the marks, grade and status of an unpublished result.
func (r *ExamRepository) Update(ctx context.Context, result *models.ExamResult) error {
	result.UpdatedAt = time.Now().UTC()
	const query = `UPDATE exam_results SET subject = :subject, marks_obtained = :marks_obtained,
        max_marks = :max_marks, grade = :grade, status = :status, updated_at = :updated_at
        WHERE id = :id AND school_id = :school_id AND published = false`
	res, err := r.db.NamedExecContext(ctx, query, result)
	if err != nil {
		return fmt.Errorf("update exam result: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update exam result: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// PublishByExam flips every result of an exam to published and returns the
// number of rows affected.
func (r *ExamRepository) PublishByExam(ctx context.Context, scope models.TenantScope, examID string) (int64, error) {
	args := []interface{}{examID, time.Now().UTC()}
	conditions := []string{"e.exam_id = $1", "e.published = false"}
	if scope.SchoolID != "" {
		conditions = append(conditions, fmt.Sprintf("e.school_id = $%d", len(args)+1))
		args = append(args, scope.SchoolID)
	}
	if scope.CampusID != "" {
		conditions = append(conditions, fmt.Sprintf("e.campus_id = $%d", len(args)+1))
		args = append(args, scope.CampusID)
	}
	query := fmt.Sprintf(`UPDATE exam_results e SET published = true, updated_at = $2 WHERE %s`,
		strings.Join(conditions, " AND "))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("publish exam results: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("publish exam results: %w", err)
	}
	return rows, nil
}
