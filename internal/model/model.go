package model

import (
	"strings"
	"time"
)

// Role is one of a fixed set. There is no ordering between roles; every
// route declares the exact set it permits.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RolePrincipal  Role = "PRINCIPAL"
	RoleTeacher    Role = "TEACHER"
	RoleStudent    Role = "STUDENT"
	RoleParent     Role = "PARENT"
)

func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	switch role {
	case RoleSuperAdmin, RolePrincipal, RoleTeacher, RoleStudent, RoleParent:
		return role, true
	default:
		return "", false
	}
}

type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "PRESENT"
	AttendanceAbsent  AttendanceStatus = "ABSENT"
	AttendanceLate    AttendanceStatus = "LATE"
	AttendanceHalfDay AttendanceStatus = "HALF_DAY"
	AttendanceLeave   AttendanceStatus = "LEAVE"
)

func ParseAttendanceStatus(raw string) (AttendanceStatus, bool) {
	status := AttendanceStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch status {
	case AttendancePresent, AttendanceAbsent, AttendanceLate, AttendanceHalfDay, AttendanceLeave:
		return status, true
	default:
		return "", false
	}
}

// User is an identity of any role. SchoolID is empty only for SUPER_ADMIN.
type User struct {
	ID           string
	SchoolID     string
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     *string
	DateOfBirth  *time.Time
	Gender       *string
	Phone        *string
	Address      *string
	City         *string
	State        *string
	Pincode      *string
	Role         Role
	Active       bool
	Verified     bool
	LastLogin    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// School is the unit of data isolation.
type School struct {
	ID               string
	Code             string
	Name             string
	Address          *string
	City             *string
	State            *string
	Phone            *string
	Email            *string
	Active           bool
	AttendanceModule bool
	ExamModule       bool
	NoticeModule     bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type ClassSection struct {
	ID             string
	SchoolID       string
	ClassName      string
	SectionName    string
	ClassTeacherID *string
	AcademicYear   string
	MaxStudents    int
	Active         bool
}

// StudentProfile carries the admission details that go with a STUDENT user.
type StudentProfile struct {
	UserID          string
	SchoolID        string
	AdmissionNumber string
	ClassSectionID  *string
	RollNumber      *string
	GuardianName    *string
	GuardianPhone   *string
	AdmissionDate   *time.Time
	Active          bool
}

// AttendanceRecord holds at most one row per (UserID, Date). Re-marking a
// date replaces the row wholesale; the superseded remarks and marker are
// discarded.
type AttendanceRecord struct {
	ID             string
	SchoolID       string
	UserID         string
	ClassSectionID *string
	Date           time.Time
	Status         AttendanceStatus
	Remarks        *string
	MarkedByID     string
	CreatedAt      time.Time
}
