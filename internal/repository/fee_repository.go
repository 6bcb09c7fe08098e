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

const feeRecordColumns = `fr.id, fr.school_id, fr.campus_id, fr.student_id, fr.year_number, fr.total_fee,
        fr.paid_amount, fr.due_amount, fr.status, fr.last_payment_at, fr.created_at, fr.updated_at`

// FeeRepository manages the fee ledger: records, payments and the frozen
// installment snapshots.
type FeeRepository struct {
	db *sqlx.DB
}

// NewFeeRepository constructs a FeeRepository.
func NewFeeRepository(db *sqlx.DB) *FeeRepository {
	return &FeeRepository{db: db}
}

func feeScopeConditions(scope models.TenantScope, args []interface{}) ([]string, []interface{}) {
	conditions := []string{"1=1"}
	if scope.SchoolID != "" {
		conditions = append(conditions, fmt.Sprintf("fr.school_id = $%d", len(args)+1))
		args = append(args, scope.SchoolID)
	}
	if scope.CampusID != "" {
		conditions = append(conditions, fmt.Sprintf("fr.campus_id = $%d", len(args)+1))
		args = append(args, scope.CampusID)
	}
	return conditions, args
}

// ExistsForStudentYear reports whether a ledger row already exists for the
// (student, year) pair. A partial unique index backs this check; the pre-read
// exists to produce a friendly conflict message.
func (r *FeeRepository) ExistsForStudentYear(ctx context.Context, studentID string, year int) (bool, error) {
	const query = `SELECT 1 FROM fee_records WHERE student_id = $1 AND year_number = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, year); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check fee record: %w", err)
	}
	return true, nil
}

// Create inserts a ledger row together with its installment snapshot in one
// transaction.
func (r *FeeRepository) Create(ctx context.Context, record *models.FeeRecord, installments []models.FeeInstallment) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin fee record tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insertRecord = `INSERT INTO fee_records (id, school_id, campus_id, student_id, year_number, total_fee,
        paid_amount, due_amount, status, last_payment_at, created_at, updated_at)
        VALUES (:id, :school_id, :campus_id, :student_id, :year_number, :total_fee,
        :paid_amount, :due_amount, :status, :last_payment_at, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertRecord, record); err != nil {
		return fmt.Errorf("create fee record: %w", err)
	}

	const insertInstallment = `INSERT INTO fee_installments (id, fee_record_id, seq, label, amount, due_date, status)
        VALUES (:id, :fee_record_id, :seq, :label, :amount, :due_date, :status)`
	for i := range installments {
		installments[i].ID = uuid.NewString()
		installments[i].FeeRecordID = record.ID
		if _, err := tx.NamedExecContext(ctx, insertInstallment, installments[i]); err != nil {
			return fmt.Errorf("create fee installment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit fee record tx: %w", err)
	}
	return nil
}

// FindByID fetches one ledger row with payments and installments, scoped.
func (r *FeeRepository) FindByID(ctx context.Context, scope models.TenantScope, id string) (*models.FeeRecordDetail, error) {
	args := []interface{}{id}
	conditions, args := feeScopeConditions(scope, args)
	query := fmt.Sprintf(`SELECT %s FROM fee_records fr WHERE fr.id = $1 AND %s`,
		feeRecordColumns, strings.Join(conditions, " AND "))

	var record models.FeeRecord
	if err := r.db.GetContext(ctx, &record, query, args...); err != nil {
		return nil, err
	}

	detail := &models.FeeRecordDetail{FeeRecord: record}

	const paymentsQuery = `SELECT id, fee_record_id, amount, method, reference, notes, paid_on
        FROM fee_payments WHERE fee_record_id = $1 ORDER BY paid_on ASC`
	if err := r.db.SelectContext(ctx, &detail.Payments, paymentsQuery, record.ID); err != nil {
		return nil, fmt.Errorf("load fee payments: %w", err)
	}

	const installmentsQuery = `SELECT id, fee_record_id, seq, label, amount, due_date, status
        FROM fee_installments WHERE fee_record_id = $1 ORDER BY seq ASC`
	if err := r.db.SelectContext(ctx, &detail.Installments, installmentsQuery, record.ID); err != nil {
		return nil, fmt.Errorf("load fee installments: %w", err)
	}

	return detail, nil
}

// List returns ledger rows matching the filter within the scope.
func (r *FeeRepository) List(ctx context.Context, scope models.TenantScope, filter models.FeeFilter) ([]models.FeeRecord, int, error) {
	base := "FROM fee_records fr JOIN students s ON s.id = fr.student_id"
	args := []interface{}{}
	conditions, args := feeScopeConditions(scope, args)

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("fr.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ProgramType != "" {
		conditions = append(conditions, fmt.Sprintf("s.program_type = $%d", len(args)+1))
		args = append(args, filter.ProgramType)
	}
	if filter.Course != "" {
		conditions = append(conditions, fmt.Sprintf("s.course = $%d", len(args)+1))
		args = append(args, filter.Course)
	}
	if filter.Year > 0 {
		conditions = append(conditions, fmt.Sprintf("fr.year_number = $%d", len(args)+1))
		args = append(args, filter.Year)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("fr.status = $%d", len(args)+1))
		args = append(args, filter.Status)
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

	query := fmt.Sprintf(`SELECT %s %s ORDER BY fr.created_at DESC LIMIT %d OFFSET %d`,
		feeRecordColumns, base, size, offset)

	var records []models.FeeRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list fee records: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(fr.id) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count fee records: %w", err)
	}
	return records, total, nil
}

// ListByStudent returns all ledger rows for one student, oldest year first.
func (r *FeeRepository) ListByStudent(ctx context.Context, scope models.TenantScope, studentID string) ([]models.FeeRecord, error) {
	args := []interface{}{studentID}
	conditions, args := feeScopeConditions(scope, args)
	query := fmt.Sprintf(`SELECT %s FROM fee_records fr WHERE fr.student_id = $1 AND %s ORDER BY fr.year_number ASC`,
		feeRecordColumns, strings.Join(conditions, " AND "))

	var records []models.FeeRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list student fee records: %w", err)
	}
	return records, nil
}

// Collect applies a payment as a single conditional update plus the
// append-only payment row, in one transaction. The due_amount guard makes
// concurrent collections safe: a racing writer that would overdraw the
// record simply matches zero rows.
func (r *FeeRepository) Collect(ctx context.Context, scope models.TenantScope, id string, payment *models.FeePayment) (*models.FeeRecord, error) {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.PaidOn.IsZero() {
		payment.PaidOn = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin collect tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	args := []interface{}{payment.Amount, payment.PaidOn, id}
	conditions := []string{"fr.id = $3", "fr.due_amount >= $1"}
	if scope.SchoolID != "" {
		conditions = append(conditions, fmt.Sprintf("fr.school_id = $%d", len(args)+1))
		args = append(args, scope.SchoolID)
	}
	if scope.CampusID != "" {
		conditions = append(conditions, fmt.Sprintf("fr.campus_id = $%d", len(args)+1))
		args = append(args, scope.CampusID)
	}

	query := fmt.Sprintf(`UPDATE fee_records fr SET
        paid_amount = fr.paid_amount + $1,
        due_amount = fr.due_amount - $1,
        status = CASE WHEN fr.due_amount - $1 = 0 THEN 'paid' ELSE 'partial' END,
        last_payment_at = $2,
        updated_at = $2
        WHERE %s
        RETURNING %s`, strings.Join(conditions, " AND "), feeRecordColumns)

	var updated models.FeeRecord
	if err := tx.GetContext(ctx, &updated, query, args...); err != nil {
		return nil, err
	}

	payment.FeeRecordID = updated.ID
	const insertPayment = `INSERT INTO fee_payments (id, fee_record_id, amount, method, reference, notes, paid_on)
        VALUES (:id, :fee_record_id, :amount, :method, :reference, :notes, :paid_on)`
	if _, err := tx.NamedExecContext(ctx, insertPayment, payment); err != nil {
		return nil, fmt.Errorf("append fee payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit collect tx: %w", err)
	}
	return &updated, nil
}

// Summary aggregates ledger amounts per program type within the scope.
func (r *FeeRepository) Summary(ctx context.Context, scope models.TenantScope) ([]models.FeeSummaryRow, error) {
	base := "FROM fee_records fr JOIN students s ON s.id = fr.student_id"
	args := []interface{}{}
	conditions, args := feeScopeConditions(scope, args)

	query := fmt.Sprintf(`SELECT s.program_type, COUNT(fr.id) AS records,
        SUM(fr.total_fee) AS total_fee, SUM(fr.paid_amount) AS paid_amount, SUM(fr.due_amount) AS due_amount
        %s WHERE %s GROUP BY s.program_type ORDER BY s.program_type`, base, strings.Join(conditions, " AND "))

	var rows []models.FeeSummaryRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("fee summary: %w", err)
	}
	return rows, nil
}
