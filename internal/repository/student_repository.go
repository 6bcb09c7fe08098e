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

// feeRollup joins the ledger rollup used to decorate student reads. The
// summary is derived on every read; the ledger tables stay authoritative.
const feeRollup = `COALESCE(f.fee_total, 0) AS fee_total,
        COALESCE(f.fee_paid, 0) AS fee_paid,
        COALESCE(f.fee_due, 0) AS fee_due,
        CASE WHEN COALESCE(f.fee_due, 0) = 0 AND COALESCE(f.fee_total, 0) > 0 THEN 'paid'
             WHEN COALESCE(f.fee_paid, 0) > 0 THEN 'partial'
             ELSE 'due' END AS fee_status`

const feeRollupJoin = `LEFT JOIN (
            SELECT student_id, SUM(total_fee) AS fee_total, SUM(paid_amount) AS fee_paid, SUM(due_amount) AS fee_due
            FROM fee_records GROUP BY student_id
        ) f ON f.student_id = s.id`

// StudentRepository manages persistence for student records. Every query is
// bounded by the caller's tenant scope.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

func studentScopeConditions(scope models.TenantScope, args []interface{}) ([]string, []interface{}) {
	conditions := []string{"1=1"}
	if scope.SchoolID != "" {
		conditions = append(conditions, fmt.Sprintf("s.school_id = $%d", len(args)+1))
		args = append(args, scope.SchoolID)
	}
	if scope.CampusID != "" {
		conditions = append(conditions, fmt.Sprintf("s.campus_id = $%d", len(args)+1))
		args = append(args, scope.CampusID)
	}
	return conditions, args
}

// List returns students matching the provided filters within the scope.
func (r *StudentRepository) List(ctx context.Context, scope models.TenantScope, filter models.StudentFilter) ([]models.StudentDetail, int, error) {
	base := fmt.Sprintf("FROM students s %s", feeRollupJoin)
	args := []interface{}{}
	conditions, args := studentScopeConditions(scope, args)

	if filter.ProgramType != "" {
		conditions = append(conditions, fmt.Sprintf("s.program_type = $%d", len(args)+1))
		args = append(args, filter.ProgramType)
	}
	if filter.Course != "" {
		conditions = append(conditions, fmt.Sprintf("s.course = $%d", len(args)+1))
		args = append(args, filter.Course)
	}
	if filter.Year > 0 {
		conditions = append(conditions, fmt.Sprintf("s.current_year = $%d", len(args)+1))
		args = append(args, filter.Year)
	}
	if filter.Archived != nil {
		conditions = append(conditions, fmt.Sprintf("s.archived = $%d", len(args)+1))
		args = append(args, *filter.Archived)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(s.full_name) LIKE $%d OR LOWER(s.admission_no) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"full_name":    "s.full_name",
		"admission_no": "s.admission_no",
		"created_at":   "s.created_at",
	}
	if sortBy == "" {
		sortBy = "created_at"
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "s.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT s.id, s.school_id, s.campus_id, s.admission_no, s.full_name, s.gender, s.phone,
        s.guardian_name, s.guardian_phone, s.program_type, s.course, s.duration_years, s.current_year,
        s.academic_year, s.total_fee, s.archived, s.created_at, s.updated_at,
        %s
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, feeRollup, base, column, order, size, offset)

	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(s.id) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches one student with ledger rollup, scoped.
func (r *StudentRepository) FindByID(ctx context.Context, scope models.TenantScope, id string) (*models.StudentDetail, error) {
	args := []interface{}{id}
	conditions, args := studentScopeConditions(scope, args)
	query := fmt.Sprintf(`SELECT s.id, s.school_id, s.campus_id, s.admission_no, s.full_name, s.gender, s.phone,
        s.guardian_name, s.guardian_phone, s.program_type, s.course, s.duration_years, s.current_year,
        s.academic_year, s.total_fee, s.archived, s.created_at, s.updated_at,
        %s
        FROM students s %s
        WHERE s.id = $1 AND %s`, feeRollup, feeRollupJoin, strings.Join(conditions, " AND "))

	var detail models.StudentDetail
	if err := r.db.GetContext(ctx, &detail, query, args...); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ExistsByAdmissionNo checks admission number uniqueness within a school.
func (r *StudentRepository) ExistsByAdmissionNo(ctx context.Context, schoolID, admissionNo string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM students WHERE school_id = $1 AND admission_no = $2"
	args := []interface{}{schoolID, admissionNo}
	if excludeID != "" {
		query += " AND id <> $3"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check admission no: %w", err)
	}
	return true, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (id, school_id, campus_id, admission_no, full_name, gender, phone,
        guardian_name, guardian_phone, program_type, course, duration_years, current_year, academic_year,
        total_fee, archived, created_at, updated_at)
        VALUES (:id, :school_id, :campus_id, :admission_no, :full_name, :gender, :phone,
        :guardian_name, :guardian_phone, :program_type, :course, :duration_years, :current_year, :academic_year,
        :total_fee, :archived, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update modifies the mutable identity and program fields. school_id is
// immutable and deliberately absent from the SET list.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET admission_no = :admission_no, full_name = :full_name, gender = :gender,
        phone = :phone, guardian_name = :guardian_name, guardian_phone = :guardian_phone,
        course = :course, academic_year = :academic_year, total_fee = :total_fee, updated_at = :updated_at
        WHERE id = :id AND school_id = :school_id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// AdvanceYear bumps current_year, bounded by duration_years.
func (r *StudentRepository) AdvanceYear(ctx context.Context, scope models.TenantScope, id string) (int, error) {
	args := []interface{}{id, time.Now().UTC()}
	conditions := []string{"id = $1", "archived = false", "current_year < duration_years"}
	if scope.SchoolID != "" {
		conditions = append(conditions, fmt.Sprintf("school_id = $%d", len(args)+1))
		args = append(args, scope.SchoolID)
	}
	query := fmt.Sprintf(`UPDATE students SET current_year = current_year + 1, updated_at = $2
        WHERE %s RETURNING current_year`, strings.Join(conditions, " AND "))
	var year int
	if err := r.db.GetContext(ctx, &year, query, args...); err != nil {
		return 0, err
	}
	return year, nil
}
