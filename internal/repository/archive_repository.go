package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nif-edu/fees-api/internal/models"
)

const archiveColumns = `a.id, a.school_id, a.campus_id, a.student_id, a.admission_no, a.full_name,
        a.program_type, a.course, a.academic_year, a.fee_total, a.fee_paid, a.fee_due,
        a.fee_records, a.snapshot, a.archive_status, a.archived_by, a.archived_at`

// ArchiveRepository manages the archived-students snapshot table.
type ArchiveRepository struct {
	db *sqlx.DB
}

// NewArchiveRepository constructs an ArchiveRepository.
func NewArchiveRepository(db *sqlx.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// Archive writes the snapshot row and flips the live student's archived flag
// in one transaction, so a snapshot never exists without the flag and vice
// versa.
func (r *ArchiveRepository) Archive(ctx context.Context, archived *models.ArchivedStudent) error {
	if archived.ID == "" {
		archived.ID = uuid.NewString()
	}
	if archived.ArchivedAt.IsZero() {
		archived.ArchivedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insert = `INSERT INTO archived_students (id, school_id, campus_id, student_id, admission_no, full_name,
        program_type, course, academic_year, fee_total, fee_paid, fee_due, fee_records, snapshot,
        archive_status, archived_by, archived_at)
        VALUES (:id, :school_id, :campus_id, :student_id, :admission_no, :full_name,
        :program_type, :course, :academic_year, :fee_total, :fee_paid, :fee_due, :fee_records, :snapshot,
        :archive_status, :archived_by, :archived_at)`
	if _, err := tx.NamedExecContext(ctx, insert, archived); err != nil {
		return fmt.Errorf("insert archive snapshot: %w", err)
	}

	const flag = `UPDATE students SET archived = true, updated_at = $2 WHERE id = $1 AND archived = false`
	result, err := tx.ExecContext(ctx, flag, archived.StudentID, archived.ArchivedAt)
	if err != nil {
		return fmt.Errorf("flag student archived: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("flag student archived: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("flag student archived: student %s not updatable", archived.StudentID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive tx: %w", err)
	}
	return nil
}

func archiveScopeConditions(scope models.TenantScope, args []interface{}) ([]string, []interface{}) {
	conditions := []string{"1=1"}
	if scope.SchoolID != "" {
		conditions = append(conditions, fmt.Sprintf("a.school_id = $%d", len(args)+1))
		args = append(args, scope.SchoolID)
	}
	if scope.CampusID != "" {
		conditions = append(conditions, fmt.Sprintf("a.campus_id = $%d", len(args)+1))
		args = append(args, scope.CampusID)
	}
	return conditions, args
}

// List returns archived students matching the filter within the scope.
func (r *ArchiveRepository) List(ctx context.Context, scope models.TenantScope, filter models.ArchiveFilter) ([]models.ArchivedStudent, int, error) {
	base := "FROM archived_students a"
	args := []interface{}{}
	conditions, args := archiveScopeConditions(scope, args)

	if filter.ProgramType != "" {
		conditions = append(conditions, fmt.Sprintf("a.program_type = $%d", len(args)+1))
		args = append(args, filter.ProgramType)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("a.archive_status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(a.full_name) LIKE $%d OR LOWER(a.admission_no) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
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

	query := fmt.Sprintf(`SELECT %s %s ORDER BY a.archived_at DESC LIMIT %d OFFSET %d`,
		archiveColumns, base, size, offset)

	var archives []models.ArchivedStudent
	if err := r.db.SelectContext(ctx, &archives, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list archived students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(a.id) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count archived students: %w", err)
	}
	return archives, total, nil
}

// FindByID fetches one archived snapshot, scoped.
func (r *ArchiveRepository) FindByID(ctx context.Context, scope models.TenantScope, id string) (*models.ArchivedStudent, error) {
	args := []interface{}{id}
	conditions, args := archiveScopeConditions(scope, args)
	query := fmt.Sprintf(`SELECT %s FROM archived_students a WHERE a.id = $1 AND %s`,
		archiveColumns, strings.Join(conditions, " AND "))

	var archived models.ArchivedStudent
	if err := r.db.GetContext(ctx, &archived, query, args...); err != nil {
		return nil, err
	}
	return &archived, nil
}

// ListAll streams every archived row in the scope for export rendering,
// without pagination.
func (r *ArchiveRepository) ListAll(ctx context.Context, scope models.TenantScope, filter models.ArchiveFilter) ([]models.ArchivedStudent, error) {
	args := []interface{}{}
	conditions, args := archiveScopeConditions(scope, args)
	if filter.ProgramType != "" {
		conditions = append(conditions, fmt.Sprintf("a.program_type = $%d", len(args)+1))
		args = append(args, filter.ProgramType)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("a.archive_status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	query := fmt.Sprintf(`SELECT %s FROM archived_students a WHERE %s ORDER BY a.archived_at DESC`,
		archiveColumns, strings.Join(conditions, " AND "))

	var archives []models.ArchivedStudent
	if err := r.db.SelectContext(ctx, &archives, query, args...); err != nil {
		return nil, fmt.Errorf("list all archived students: %w", err)
	}
	return archives, nil
}
