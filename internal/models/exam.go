package models

import "time"

// ExamResultStatus is the outcome recorded for a student in an exam.
type ExamResultStatus string

const (
	ExamResultPass   ExamResultStatus = "pass"
	ExamResultFail   ExamResultStatus = "fail"
	ExamResultAbsent ExamResultStatus = "absent"
)

// ExamResult holds one student's marks for one exam. The (exam_id,
// student_id) pair is unique; it shares the tenant-scoping contract with the
// ledger tables.
type ExamResult struct {
	ID            string           `db:"id" json:"id"`
	SchoolID      string           `db:"school_id" json:"school_id"`
	CampusID      string           `db:"campus_id" json:"campus_id"`
	ExamID        string           `db:"exam_id" json:"exam_id"`
	StudentID     string           `db:"student_id" json:"student_id"`
	Subject       string           `db:"subject" json:"subject"`
	MarksObtained float64          `db:"marks_obtained" json:"marks_obtained"`
	MaxMarks      float64          `db:"max_marks" json:"max_marks"`
	Grade         string           `db:"grade" json:"grade"`
	Status        ExamResultStatus `db:"status" json:"status"`
	Published     bool             `db:"published" json:"published"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// ExamResultFilter captures list query parameters for exam results.
type ExamResultFilter struct {
	ExamID    string
	StudentID string
	Published *bool
	Page      int
	PageSize  int
}
