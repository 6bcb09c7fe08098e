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

func feeRecordRow(paid, due int64, status models.FeeStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "school_id", "campus_id", "student_id", "year_number", "total_fee",
		"paid_amount", "due_amount", "status", "last_payment_at", "created_at", "updated_at",
	}).AddRow("fee-1", "school-a", "campus-1", "st-1", 1, int64(191000),
		paid, due, string(status), time.Now(), time.Now(), time.Now())
}

func TestFeeRepositoryCreateWithInstallments(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO fee_records").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO fee_installments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO fee_installments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	record := &models.FeeRecord{
		SchoolID:   "school-a",
		CampusID:   "campus-1",
		StudentID:  "st-1",
		YearNumber: 1,
		TotalFee:   191000,
		DueAmount:  191000,
		Status:     models.FeeStatusDue,
	}
	installments := []models.FeeInstallment{
		{Seq: 1, Label: "Term 1", Amount: 95500, Status: models.FeeStatusDue},
		{Seq: 2, Label: "Term 2", Amount: 95500, Status: models.FeeStatusDue},
	}
	require.NoError(t, repo.Create(context.Background(), record, installments))
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, record.ID, installments[0].FeeRecordID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryCreateRollsBackOnInstallmentFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO fee_records").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO fee_installments").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	record := &models.FeeRecord{SchoolID: "school-a", StudentID: "st-1", YearNumber: 1, TotalFee: 96000, DueAmount: 96000, Status: models.FeeStatusDue}
	err := repo.Create(context.Background(), record, []models.FeeInstallment{{Seq: 1, Amount: 96000, Status: models.FeeStatusDue}})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryExistsForStudentYear(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	mock.ExpectQuery("SELECT 1 FROM fee_records").
		WithArgs("st-1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsForStudentYear(context.Background(), "st-1", 1)
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery("SELECT 1 FROM fee_records").
		WithArgs("st-1", 2).
		WillReturnError(sql.ErrNoRows)

	exists, err = repo.ExistsForStudentYear(context.Background(), "st-1", 2)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryCollect(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE fee_records fr SET").
		WithArgs(int64(50000), sqlmock.AnyArg(), "fee-1", "school-a").
		WillReturnRows(feeRecordRow(50000, 141000, models.FeeStatusPartial))
	mock.ExpectExec("INSERT INTO fee_payments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	payment := &models.FeePayment{Amount: 50000, Method: "upi"}
	updated, err := repo.Collect(context.Background(), models.TenantScope{SchoolID: "school-a"}, "fee-1", payment)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), updated.PaidAmount)
	assert.Equal(t, int64(141000), updated.DueAmount)
	assert.Equal(t, models.FeeStatusPartial, updated.Status)
	assert.Equal(t, updated.TotalFee, updated.PaidAmount+updated.DueAmount)
	assert.Equal(t, "fee-1", payment.FeeRecordID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryCollectGuardRejectsOverdraw(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE fee_records fr SET").
		WithArgs(int64(999999), sqlmock.AnyArg(), "fee-1", "school-a").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	payment := &models.FeePayment{Amount: 999999}
	_, err := repo.Collect(context.Background(), models.TenantScope{SchoolID: "school-a"}, "fee-1", payment)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositoryFindByIDLoadsChildren(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	mock.ExpectQuery("SELECT fr.id, fr.school_id").
		WithArgs("fee-1", "school-a").
		WillReturnRows(feeRecordRow(50000, 141000, models.FeeStatusPartial))
	mock.ExpectQuery("SELECT id, fee_record_id, amount, method").
		WithArgs("fee-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "fee_record_id", "amount", "method", "reference", "notes", "paid_on"}).
			AddRow("pay-1", "fee-1", int64(50000), "upi", "TXN1", "", time.Now()))
	mock.ExpectQuery("SELECT id, fee_record_id, seq, label").
		WithArgs("fee-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "fee_record_id", "seq", "label", "amount", "due_date", "status"}).
			AddRow("inst-1", "fee-1", 1, "Term 1", int64(95500), nil, "due"))

	detail, err := repo.FindByID(context.Background(), models.TenantScope{SchoolID: "school-a"}, "fee-1")
	require.NoError(t, err)
	assert.Len(t, detail.Payments, 1)
	assert.Len(t, detail.Installments, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeRepositorySummary(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFeeRepository(db)

	mock.ExpectQuery("SELECT s.program_type, COUNT").
		WithArgs("school-a").
		WillReturnRows(sqlmock.NewRows([]string{"program_type", "records", "total_fee", "paid_amount", "due_amount"}).
			AddRow("B_VOC", 2, int64(382000), int64(100000), int64(282000)))

	rows, err := repo.Summary(context.Background(), models.TenantScope{SchoolID: "school-a"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.ProgramBVoc, rows[0].ProgramType)
	assert.Equal(t, rows[0].TotalFee, rows[0].PaidAmount+rows[0].DueAmount)
	assert.NoError(t, mock.ExpectationsWereMet())
}
