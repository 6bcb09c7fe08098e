package models

import "time"

// FeeStatus is the derived state of a ledger row.
type FeeStatus string

const (
	FeeStatusDue     FeeStatus = "due"
	FeeStatusPartial FeeStatus = "partial"
	FeeStatusPaid    FeeStatus = "paid"
)

// DeriveFeeStatus computes the status from amounts. paid iff nothing is due,
// partial iff something has been paid, due otherwise.
func DeriveFeeStatus(paid, due int64) FeeStatus {
	switch {
	case due == 0:
		return FeeStatusPaid
	case paid > 0:
		return FeeStatusPartial
	default:
		return FeeStatusDue
	}
}

// FeeRecord is the authoritative running balance for one student's one
// program year. Invariant: PaidAmount + DueAmount == TotalFee at all times.
type FeeRecord struct {
	ID            string     `db:"id" json:"id"`
	SchoolID      string     `db:"school_id" json:"school_id"`
	CampusID      string     `db:"campus_id" json:"campus_id"`
	StudentID     string     `db:"student_id" json:"student_id"`
	YearNumber    int        `db:"year_number" json:"year_number"`
	TotalFee      int64      `db:"total_fee" json:"total_fee"`
	PaidAmount    int64      `db:"paid_amount" json:"paid_amount"`
	DueAmount     int64      `db:"due_amount" json:"due_amount"`
	Status        FeeStatus  `db:"status" json:"status"`
	LastPaymentAt *time.Time `db:"last_payment_at" json:"last_payment_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// FeePayment is an append-only ledger entry; rows are never updated or
// deleted outside of bulk-wipe scripts.
type FeePayment struct {
	ID          string    `db:"id" json:"id"`
	FeeRecordID string    `db:"fee_record_id" json:"fee_record_id"`
	Amount      int64     `db:"amount" json:"amount"`
	Method      string    `db:"method" json:"method"`
	Reference   string    `db:"reference" json:"reference"`
	Notes       string    `db:"notes" json:"notes"`
	PaidOn      time.Time `db:"paid_on" json:"paid_on"`
}

// FeeInstallment is one entry of the plan frozen at record-creation time.
// The snapshot is intentionally not re-derived when the student's plan
// changes later.
type FeeInstallment struct {
	ID          string     `db:"id" json:"id"`
	FeeRecordID string     `db:"fee_record_id" json:"fee_record_id"`
	Seq         int        `db:"seq" json:"seq"`
	Label       string     `db:"label" json:"label"`
	Amount      int64      `db:"amount" json:"amount"`
	DueDate     *time.Time `db:"due_date" json:"due_date,omitempty"`
	Status      FeeStatus  `db:"status" json:"status"`
}

// FeeRecordDetail bundles a ledger row with its payment history and frozen
// installment plan.
type FeeRecordDetail struct {
	FeeRecord
	Payments     []FeePayment     `json:"payments"`
	Installments []FeeInstallment `json:"installments"`
}

// FeeFilter captures list query parameters for ledger rows.
type FeeFilter struct {
	StudentID   string
	ProgramType ProgramType
	Course      string
	Year        int
	Status      FeeStatus
	Page        int
	PageSize    int
}

// FeeSummaryRow aggregates ledger amounts for one program type.
type FeeSummaryRow struct {
	ProgramType ProgramType `db:"program_type" json:"program_type"`
	Records     int         `db:"records" json:"records"`
	TotalFee    int64       `db:"total_fee" json:"total_fee"`
	PaidAmount  int64       `db:"paid_amount" json:"paid_amount"`
	DueAmount   int64       `db:"due_amount" json:"due_amount"`
}

// FeeTotals maps program type and year number to the standard annual fee.
// Values are the institute's published fee schedule; a per-student override
// or a student-level default takes precedence over this table.
var FeeTotals = map[ProgramType]map[int]int64{
	ProgramAdvCert: {1: 96000},
	ProgramBVoc:    {1: 191000, 2: 171000, 3: 171000},
	ProgramMVoc:    {1: 201000, 2: 181000},
	ProgramBDes:    {1: 221000, 2: 201000, 3: 201000, 4: 201000},
}

// LookupFeeTotal returns the published total for a program year.
func LookupFeeTotal(program ProgramType, year int) (int64, bool) {
	years, ok := FeeTotals[program]
	if !ok {
		return 0, false
	}
	total, ok := years[year]
	return total, ok
}
