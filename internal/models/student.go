package models

import "time"

// ProgramType classifies the vocational program a student is enrolled in.
type ProgramType string

const (
	ProgramAdvCert ProgramType = "ADV_CERT"
	ProgramBVoc    ProgramType = "B_VOC"
	ProgramMVoc    ProgramType = "M_VOC"
	ProgramBDes    ProgramType = "B_DES"
)

// ValidProgramType reports whether the given value is a known program type.
func ValidProgramType(p ProgramType) bool {
	switch p {
	case ProgramAdvCert, ProgramBVoc, ProgramMVoc, ProgramBDes:
		return true
	}
	return false
}

// Student represents an enrolled learner. Rows are tenant-owned: school_id is
// immutable after creation, campus_id changes only via maintenance scripts.
type Student struct {
	ID            string      `db:"id" json:"id"`
	SchoolID      string      `db:"school_id" json:"school_id"`
	CampusID      string      `db:"campus_id" json:"campus_id"`
	AdmissionNo   string      `db:"admission_no" json:"admission_no"`
	FullName      string      `db:"full_name" json:"full_name"`
	Gender        string      `db:"gender" json:"gender"`
	Phone         string      `db:"phone" json:"phone"`
	GuardianName  string      `db:"guardian_name" json:"guardian_name"`
	GuardianPhone string      `db:"guardian_phone" json:"guardian_phone"`
	ProgramType   ProgramType `db:"program_type" json:"program_type"`
	Course        string      `db:"course" json:"course"`
	DurationYears int         `db:"duration_years" json:"duration_years"`
	CurrentYear   int         `db:"current_year" json:"current_year"`
	AcademicYear  string      `db:"academic_year" json:"academic_year"`
	TotalFee      *int64      `db:"total_fee" json:"total_fee,omitempty"`
	Archived      bool        `db:"archived" json:"archived"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search      string
	ProgramType ProgramType
	Course      string
	Year        int
	Archived    *bool
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}

// StudentDetail pairs a student with the rolled-up ledger position across all
// of their fee records. The rollup is computed on read; it is never stored.
type StudentDetail struct {
	Student
	FeeTotal  int64     `db:"fee_total" json:"fee_total"`
	FeePaid   int64     `db:"fee_paid" json:"fee_paid"`
	FeeDue    int64     `db:"fee_due" json:"fee_due"`
	FeeStatus FeeStatus `db:"fee_status" json:"fee_status"`
}

// ImportRowError reports why a single CSV upload row was rejected.
type ImportRowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportReport summarises a bulk CSV upload: successes are kept even when
// other rows fail.
type ImportReport struct {
	Created int              `json:"created"`
	Failed  int              `json:"failed"`
	Errors  []ImportRowError `json:"errors"`
}
