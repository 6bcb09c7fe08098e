package models

import (
	"encoding/json"
	"time"
)

// ArchivedStudent is an immutable snapshot of a student and their ledger,
// written once at archival time. FeeRecords and Snapshot hold the full JSON
// copies kept for audit; the scalar columns exist for listing and export.
type ArchivedStudent struct {
	ID            string          `db:"id" json:"id"`
	SchoolID      string          `db:"school_id" json:"school_id"`
	CampusID      string          `db:"campus_id" json:"campus_id"`
	StudentID     string          `db:"student_id" json:"student_id"`
	AdmissionNo   string          `db:"admission_no" json:"admission_no"`
	FullName      string          `db:"full_name" json:"full_name"`
	ProgramType   ProgramType     `db:"program_type" json:"program_type"`
	Course        string          `db:"course" json:"course"`
	AcademicYear  string          `db:"academic_year" json:"academic_year"`
	FeeTotal      int64           `db:"fee_total" json:"fee_total"`
	FeePaid       int64           `db:"fee_paid" json:"fee_paid"`
	FeeDue        int64           `db:"fee_due" json:"fee_due"`
	FeeRecords    json.RawMessage `db:"fee_records" json:"fee_records"`
	Snapshot      json.RawMessage `db:"snapshot" json:"snapshot"`
	ArchiveStatus string          `db:"archive_status" json:"archive_status"`
	ArchivedBy    string          `db:"archived_by" json:"archived_by"`
	ArchivedAt    time.Time       `db:"archived_at" json:"archived_at"`
}

// ArchiveFilter captures list query parameters for archived students.
type ArchiveFilter struct {
	Search      string
	ProgramType ProgramType
	Status      string
	Page        int
	PageSize    int
}

// ExportFormat selects the rendering of an asynchronous archive export.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)
