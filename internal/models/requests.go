package models

// CreateStudentRequest is the payload for registering a student. TotalFee,
// when present, overrides the published fee schedule for every year of the
// program.
type CreateStudentRequest struct {
	AdmissionNo   string      `json:"admission_no" validate:"required"`
	FullName      string      `json:"full_name" validate:"required"`
	Gender        string      `json:"gender" validate:"omitempty,oneof=M F O"`
	Phone         string      `json:"phone"`
	GuardianName  string      `json:"guardian_name"`
	GuardianPhone string      `json:"guardian_phone"`
	ProgramType   ProgramType `json:"program_type" validate:"required"`
	Course        string      `json:"course" validate:"required"`
	DurationYears int         `json:"duration_years" validate:"required,min=1,max=4"`
	AcademicYear  string      `json:"academic_year" validate:"required"`
	TotalFee      *int64      `json:"total_fee" validate:"omitempty,gt=0"`
	SchoolID      string      `json:"schoolId"`
	CampusID      string      `json:"campusId"`
}

// UpdateStudentRequest carries the mutable student fields. Nil means leave
// unchanged.
type UpdateStudentRequest struct {
	AdmissionNo   *string `json:"admission_no"`
	FullName      *string `json:"full_name"`
	Gender        *string `json:"gender" validate:"omitempty,oneof=M F O"`
	Phone         *string `json:"phone"`
	GuardianName  *string `json:"guardian_name"`
	GuardianPhone *string `json:"guardian_phone"`
	Course        *string `json:"course"`
	AcademicYear  *string `json:"academic_year"`
	TotalFee      *int64  `json:"total_fee" validate:"omitempty,gt=0"`
}

// CreateFeeRecordRequest opens a ledger row for a student's program year.
// Total, when present, overrides both the student default and the published
// schedule.
type CreateFeeRecordRequest struct {
	StudentID  string `json:"student_id" validate:"required"`
	YearNumber int    `json:"year_number" validate:"required,min=1,max=4"`
	Total      *int64 `json:"total" validate:"omitempty,gt=0"`
}

// CollectPaymentRequest records money against a ledger row.
type CollectPaymentRequest struct {
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	Method    string `json:"method" validate:"required,oneof=cash upi card cheque bank_transfer"`
	Reference string `json:"reference"`
	Notes     string `json:"notes"`
}

// ArchiveStudentRequest finalises a student's record.
type ArchiveStudentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	Status    string `json:"status" validate:"required,oneof=completed dropped transferred"`
}

// CreateExamResultRequest records one student's marks for an exam.
type CreateExamResultRequest struct {
	ExamID        string           `json:"exam_id" validate:"required"`
	StudentID     string           `json:"student_id" validate:"required"`
	Subject       string           `json:"subject" validate:"required"`
	MarksObtained float64          `json:"marks_obtained" validate:"min=0"`
	MaxMarks      float64          `json:"max_marks" validate:"required,gt=0"`
	Grade         string           `json:"grade"`
	Status        ExamResultStatus `json:"status" validate:"required,oneof=pass fail absent"`
}

// UpdateExamResultRequest modifies an unpublished result.
type UpdateExamResultRequest struct {
	Subject       *string           `json:"subject"`
	MarksObtained *float64          `json:"marks_obtained" validate:"omitempty,min=0"`
	MaxMarks      *float64          `json:"max_marks" validate:"omitempty,gt=0"`
	Grade         *string           `json:"grade"`
	Status        *ExamResultStatus `json:"status" validate:"omitempty,oneof=pass fail absent"`
}

// ExportRequest starts an asynchronous archive export.
type ExportRequest struct {
	Format      ExportFormat `json:"format" validate:"required,oneof=csv pdf"`
	ProgramType ProgramType  `json:"program_type"`
	Status      string       `json:"status"`
}
