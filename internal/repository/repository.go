package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"schoolcore/internal/model"
)

var (
	// ErrNotFound covers any lookup that matched no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate covers unique-key violations (username, email, school
	// code, admission number).
	ErrDuplicate = errors.New("duplicate")
	// ErrTenantMismatch is returned when a referenced record belongs to a
	// different school than the one scoping the operation.
	ErrTenantMismatch = errors.New("tenant mismatch")
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// Users

const userColumns = `id, COALESCE(school_id::text, ''), username, email, password_hash, first_name, last_name,
	date_of_birth, gender, phone, address, city, state, pincode, role, is_active, is_verified, last_login,
	created_at, updated_at`

func scanUser(row pgx.Row) (model.User, error) {
	var user model.User
	var role string
	err := row.Scan(
		&user.ID,
		&user.SchoolID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.DateOfBirth,
		&user.Gender,
		&user.Phone,
		&user.Address,
		&user.City,
		&user.State,
		&user.Pincode,
		&role,
		&user.Active,
		&user.Verified,
		&user.LastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return model.User{}, mapError(err)
	}
	user.Role = model.Role(role)
	return user, nil
}

func (s *Store) CreateUser(ctx context.Context, user model.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, school_id, username, email, password_hash, first_name, last_name,
			date_of_birth, gender, phone, address, city, state, pincode, role, is_active, is_verified,
			last_login, created_at, updated_at)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`, user.ID, user.SchoolID, user.Username, user.Email, user.PasswordHash, user.FirstName, user.LastName,
		user.DateOfBirth, user.Gender, user.Phone, user.Address, user.City, user.State, user.Pincode,
		string(user.Role), user.Active, user.Verified, user.LastLogin, user.CreatedAt, user.UpdatedAt)
	return mapError(err)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (model.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
}

func (s *Store) UpdateLastLogin(ctx context.Context, userID string, when time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET last_login = $1, updated_at = $1 WHERE id = $2`, when, userID)
	return mapError(err)
}

// DeactivateUser flips is_active without deleting the row; attendance
// history keeps referencing the identity.
func (s *Store) DeactivateUser(ctx context.Context, userID string, when time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET is_active = false, updated_at = $1 WHERE id = $2`, when, userID)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ListStudentsBySchool(ctx context.Context, schoolID, classSectionID string, limit int) ([]model.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users u
		WHERE u.role = 'STUDENT' AND u.school_id = $1::uuid
	`
	args := []interface{}{schoolID}
	if classSectionID != "" {
		query += ` AND EXISTS (SELECT 1 FROM student_profiles p WHERE p.user_id = u.id AND p.class_section_id = $2::uuid)`
		args = append(args, classSectionID)
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY u.first_name, u.last_name LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, mapError(rows.Err())
}

// Schools

const schoolColumns = `id, school_code, school_name, address, city, state, phone, email, is_active,
	attendance_module, exam_module, notice_module, created_at, updated_at`

func scanSchool(row pgx.Row) (model.School, error) {
	var school model.School
	err := row.Scan(
		&school.ID,
		&school.Code,
		&school.Name,
		&school.Address,
		&school.City,
		&school.State,
		&school.Phone,
		&school.Email,
		&school.Active,
		&school.AttendanceModule,
		&school.ExamModule,
		&school.NoticeModule,
		&school.CreatedAt,
		&school.UpdatedAt,
	)
	if err != nil {
		return model.School{}, mapError(err)
	}
	return school, nil
}

func (s *Store) CreateSchool(ctx context.Context, school model.School) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO schools (id, school_code, school_name, address, city, state, phone, email, is_active,
			attendance_module, exam_module, notice_module, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, school.ID, school.Code, school.Name, school.Address, school.City, school.State, school.Phone, school.Email,
		school.Active, school.AttendanceModule, school.ExamModule, school.NoticeModule, school.CreatedAt, school.UpdatedAt)
	return mapError(err)
}

func (s *Store) GetSchool(ctx context.Context, schoolID string) (model.School, error) {
	return scanSchool(s.pool.QueryRow(ctx, `SELECT `+schoolColumns+` FROM schools WHERE id = $1`, schoolID))
}

func (s *Store) ListSchools(ctx context.Context, limit int) ([]model.School, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+schoolColumns+` FROM schools ORDER BY school_name LIMIT $1`, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var schools []model.School
	for rows.Next() {
		school, err := scanSchool(rows)
		if err != nil {
			return nil, err
		}
		schools = append(schools, school)
	}
	return schools, mapError(rows.Err())
}

// Class sections

func (s *Store) GetClassSection(ctx context.Context, sectionID string) (model.ClassSection, error) {
	var section model.ClassSection
	row := s.pool.QueryRow(ctx, `
		SELECT id, school_id, class_name, section_name, class_teacher_id, COALESCE(academic_year, ''), max_students, is_active
		FROM class_sections
		WHERE id = $1
	`, sectionID)
	err := row.Scan(
		&section.ID,
		&section.SchoolID,
		&section.ClassName,
		&section.SectionName,
		&section.ClassTeacherID,
		&section.AcademicYear,
		&section.MaxStudents,
		&section.Active,
	)
	if err != nil {
		return model.ClassSection{}, mapError(err)
	}
	return section, nil
}

// Students

// CreateStudent persists the identity row and the admission profile in one
// transaction so a duplicate admission number cannot leave a profile-less
// user behind.
func (s *Store) CreateStudent(ctx context.Context, user model.User, profile model.StudentProfile) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, school_id, username, email, password_hash, first_name, last_name,
				date_of_birth, gender, phone, address, city, state, pincode, role, is_active, is_verified,
				last_login, created_at, updated_at)
			VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		`, user.ID, user.SchoolID, user.Username, user.Email, user.PasswordHash, user.FirstName, user.LastName,
			user.DateOfBirth, user.Gender, user.Phone, user.Address, user.City, user.State, user.Pincode,
			string(user.Role), user.Active, user.Verified, user.LastLogin, user.CreatedAt, user.UpdatedAt)
		if err != nil {
			return mapError(err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO student_profiles (user_id, school_id, admission_number, class_section_id, roll_number,
				guardian_name, guardian_phone, admission_date, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, profile.UserID, profile.SchoolID, profile.AdmissionNumber, profile.ClassSectionID, profile.RollNumber,
			profile.GuardianName, profile.GuardianPhone, profile.AdmissionDate, profile.Active)
		return mapError(err)
	})
}

func (s *Store) GetStudentProfile(ctx context.Context, userID string) (model.StudentProfile, error) {
	var profile model.StudentProfile
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, school_id, admission_number, class_section_id, roll_number, guardian_name,
			guardian_phone, admission_date, is_active
		FROM student_profiles
		WHERE user_id = $1
	`, userID)
	err := row.Scan(
		&profile.UserID,
		&profile.SchoolID,
		&profile.AdmissionNumber,
		&profile.ClassSectionID,
		&profile.RollNumber,
		&profile.GuardianName,
		&profile.GuardianPhone,
		&profile.AdmissionDate,
		&profile.Active,
	)
	if err != nil {
		return model.StudentProfile{}, mapError(err)
	}
	return profile, nil
}

// Attendance

type AttendanceItem struct {
	StudentID string
	Status    model.AttendanceStatus
	Remarks   *string
}

// ReplaceAttendanceBatch applies the whole batch inside one transaction.
// Per item: the student must exist (ErrNotFound wrapped with the id) and
// belong to the section's school (ErrTenantMismatch); any existing record
// for (student, date) is removed and a fresh row inserted. On any failure
// the transaction rolls back and nothing from the batch is retained.
func (s *Store) ReplaceAttendanceBatch(ctx context.Context, section model.ClassSection, date time.Time, markedByID string, items []AttendanceItem) error {
	now := time.Now().UTC()
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		for _, item := range items {
			var studentSchoolID string
			err := tx.QueryRow(ctx, `SELECT COALESCE(school_id::text, '') FROM users WHERE id = $1`, item.StudentID).Scan(&studentSchoolID)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return fmt.Errorf("student %s: %w", item.StudentID, ErrNotFound)
				}
				return err
			}
			if studentSchoolID != section.SchoolID {
				return fmt.Errorf("student %s: %w", item.StudentID, ErrTenantMismatch)
			}

			if _, err := tx.Exec(ctx, `
				DELETE FROM attendance WHERE user_id = $1 AND attendance_date = $2
			`, item.StudentID, date); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO attendance (id, school_id, user_id, class_section_id, attendance_date, status,
					remarks, marked_by, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			`, uuid.NewString(), section.SchoolID, item.StudentID, section.ID, date, string(item.Status),
				item.Remarks, markedByID, now); err != nil {
				return mapError(err)
			}
		}
		return nil
	})
}

func (s *Store) ListAttendanceByUserAndRange(ctx context.Context, userID string, start, end time.Time) ([]model.AttendanceRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, school_id, user_id, class_section_id, attendance_date, status, remarks, marked_by, created_at
		FROM attendance
		WHERE user_id = $1 AND attendance_date BETWEEN $2 AND $3
		ORDER BY attendance_date
	`, userID, start, end)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var records []model.AttendanceRecord
	for rows.Next() {
		var record model.AttendanceRecord
		var status string
		if err := rows.Scan(
			&record.ID,
			&record.SchoolID,
			&record.UserID,
			&record.ClassSectionID,
			&record.Date,
			&status,
			&record.Remarks,
			&record.MarkedByID,
			&record.CreatedAt,
		); err != nil {
			return nil, err
		}
		record.Status = model.AttendanceStatus(status)
		records = append(records, record)
	}
	return records, mapError(rows.Err())
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}
