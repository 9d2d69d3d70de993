// internal/domain/evaluation/class.go
package evaluation

// Class is a taught section of a discipline that enrolls students.
type Class struct {
	ID             int64
	Code           string
	DisciplineName string
	CourseName     string
	ProfessorID    int64
}

// Student is an enrolled student. Email may be empty.
type Student struct {
	ID    int64
	Name  string
	Email string
}

// EnrollmentStatus values; only active enrollments count toward eligibility.
const (
	EnrollmentActive   = "ACTIVE"
	EnrollmentInactive = "INACTIVE"
)
