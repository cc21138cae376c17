package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"schoolcore/internal/db"
	"schoolcore/internal/model"
)

// Integration tests run against a real database when TEST_DATABASE_URL is
// set; otherwise they are skipped.
func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	if err := db.Migrate(url); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := db.NewPool(context.Background(), url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return NewStore(pool)
}

func seedSchool(t *testing.T, store *Store) model.School {
	t.Helper()
	now := time.Now().UTC()
	school := model.School{
		ID:        uuid.NewString(),
		Code:      "T-" + uuid.NewString()[:8],
		Name:      "Test School",
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateSchool(context.Background(), school); err != nil {
		t.Fatalf("seed school: %v", err)
	}
	return school
}

func seedUser(t *testing.T, store *Store, role model.Role, schoolID string) model.User {
	t.Helper()
	now := time.Now().UTC()
	name := "u-" + uuid.NewString()[:8]
	user := model.User{
		ID:           uuid.NewString(),
		SchoolID:     schoolID,
		Username:     name,
		Email:        name + "@example.com",
		PasswordHash: "x",
		FirstName:    "Test",
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func seedSection(t *testing.T, store *Store, schoolID string) model.ClassSection {
	t.Helper()
	section := model.ClassSection{
		ID:           uuid.NewString(),
		SchoolID:     schoolID,
		ClassName:    "5",
		SectionName:  "A",
		AcademicYear: "2026-27",
		MaxStudents:  40,
		Active:       true,
	}
	_, err := store.pool.Exec(context.Background(), `
		INSERT INTO class_sections (id, school_id, class_name, section_name, academic_year, max_students, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, section.ID, section.SchoolID, section.ClassName, section.SectionName, section.AcademicYear, section.MaxStudents, section.Active)
	if err != nil {
		t.Fatalf("seed section: %v", err)
	}
	return section
}

func TestCreateUserDuplicate(t *testing.T) {
	store := testStore(t)
	school := seedSchool(t, store)
	user := seedUser(t, store, model.RoleTeacher, school.ID)

	dup := user
	dup.ID = uuid.NewString()
	err := store.CreateUser(context.Background(), dup)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}
}

func TestGetUserByUsernameNotFound(t *testing.T) {
	store := testStore(t)
	_, err := store.GetUserByUsername(context.Background(), "no-such-user-"+uuid.NewString())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestReplaceAttendanceBatch(t *testing.T) {
	store := testStore(t)
	school := seedSchool(t, store)
	section := seedSection(t, store, school.ID)
	teacher := seedUser(t, store, model.RoleTeacher, school.ID)
	student := seedUser(t, store, model.RoleStudent, school.ID)
	date := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	remark := func(s string) *string { return &s }
	ctx := context.Background()

	err := store.ReplaceAttendanceBatch(ctx, section, date, teacher.ID, []AttendanceItem{
		{StudentID: student.ID, Status: model.AttendancePresent, Remarks: remark("on time")},
	})
	if err != nil {
		t.Fatalf("first mark: %v", err)
	}

	err = store.ReplaceAttendanceBatch(ctx, section, date, teacher.ID, []AttendanceItem{
		{StudentID: student.ID, Status: model.AttendanceLate, Remarks: remark("bus delay")},
	})
	if err != nil {
		t.Fatalf("second mark: %v", err)
	}

	records, err := store.ListAttendanceByUserAndRange(ctx, student.ID, date, date)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	if records[0].Status != model.AttendanceLate {
		t.Fatalf("status = %s, want LATE", records[0].Status)
	}
	if records[0].Remarks == nil || *records[0].Remarks != "bus delay" {
		t.Fatalf("remarks = %v, want bus delay", records[0].Remarks)
	}
}

func TestReplaceAttendanceBatchRollsBack(t *testing.T) {
	store := testStore(t)
	school := seedSchool(t, store)
	section := seedSection(t, store, school.ID)
	teacher := seedUser(t, store, model.RoleTeacher, school.ID)
	student := seedUser(t, store, model.RoleStudent, school.ID)
	date := time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	err := store.ReplaceAttendanceBatch(ctx, section, date, teacher.ID, []AttendanceItem{
		{StudentID: student.ID, Status: model.AttendancePresent},
		{StudentID: uuid.NewString(), Status: model.AttendanceAbsent},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	records, err := store.ListAttendanceByUserAndRange(ctx, student.ID, date, date)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("records = %d, want 0 after rollback", len(records))
	}
}

func TestReplaceAttendanceBatchTenantMismatch(t *testing.T) {
	store := testStore(t)
	schoolA := seedSchool(t, store)
	schoolB := seedSchool(t, store)
	sectionA := seedSection(t, store, schoolA.ID)
	teacher := seedUser(t, store, model.RoleTeacher, schoolA.ID)
	outsider := seedUser(t, store, model.RoleStudent, schoolB.ID)
	date := time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC)

	err := store.ReplaceAttendanceBatch(context.Background(), sectionA, date, teacher.ID, []AttendanceItem{
		{StudentID: outsider.ID, Status: model.AttendancePresent},
	})
	if !errors.Is(err, ErrTenantMismatch) {
		t.Fatalf("err = %v, want ErrTenantMismatch", err)
	}
}

func TestDeactivateUser(t *testing.T) {
	store := testStore(t)
	school := seedSchool(t, store)
	student := seedUser(t, store, model.RoleStudent, school.ID)
	ctx := context.Background()

	ok, err := store.DeactivateUser(ctx, student.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if !ok {
		t.Fatal("deactivate reported no rows")
	}

	after, err := store.GetUserByID(ctx, student.ID)
	if err != nil {
		t.Fatalf("get after deactivate: %v", err)
	}
	if after.Active {
		t.Fatal("user still active")
	}

	ok, err = store.DeactivateUser(ctx, uuid.NewString(), time.Now().UTC())
	if err != nil {
		t.Fatalf("deactivate unknown: %v", err)
	}
	if ok {
		t.Fatal("deactivate of unknown user reported rows")
	}
}
