package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"schoolcore/internal/auth"
	"schoolcore/internal/config"
	"schoolcore/internal/crypto"
	"schoolcore/internal/metrics"
	"schoolcore/internal/model"
	"schoolcore/internal/policy"
	"schoolcore/internal/repository"
)

const dateLayout = "2006-01-02"

// Store is the persistence surface the handlers need. *repository.Store
// implements it; tests substitute an in-memory fake.
type Store interface {
	CreateUser(ctx context.Context, user model.User) error
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
	GetUserByID(ctx context.Context, userID string) (model.User, error)
	UpdateLastLogin(ctx context.Context, userID string, when time.Time) error
	DeactivateUser(ctx context.Context, userID string, when time.Time) (bool, error)
	ListStudentsBySchool(ctx context.Context, schoolID, classSectionID string, limit int) ([]model.User, error)

	CreateSchool(ctx context.Context, school model.School) error
	GetSchool(ctx context.Context, schoolID string) (model.School, error)
	ListSchools(ctx context.Context, limit int) ([]model.School, error)

	GetClassSection(ctx context.Context, sectionID string) (model.ClassSection, error)
	CreateStudent(ctx context.Context, user model.User, profile model.StudentProfile) error
	GetStudentProfile(ctx context.Context, userID string) (model.StudentProfile, error)

	ReplaceAttendanceBatch(ctx context.Context, section model.ClassSection, date time.Time, markedByID string, items []repository.AttendanceItem) error
	ListAttendanceByUserAndRange(ctx context.Context, userID string, start, end time.Time) ([]model.AttendanceRecord, error)
}

type Server struct {
	cfg    config.Config
	store  Store
	policy *policy.Table
	logger *zap.Logger
}

func NewServer(cfg config.Config, store Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:    cfg,
		store:  store,
		policy: policy.Default(),
		logger: logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.logRequests)
	r.Use(s.authenticate)
	r.Use(s.authorize)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/logout", s.handleLogout)
	r.Get("/auth/me", s.handleGetMe)

	r.Post("/attendance", s.handleMarkAttendance)
	r.Get("/attendance/student/{studentId}", s.handleGetStudentAttendance)

	r.Post("/schools", s.handleCreateSchool)
	r.Get("/schools", s.handleListSchools)
	r.Get("/schools/{schoolId}", s.handleGetSchool)

	r.Get("/students", s.handleListStudents)
	r.Post("/students", s.handleCreateStudent)
	r.Get("/students/{studentId}", s.handleGetStudent)
	r.Delete("/students/{studentId}", s.handleDeleteStudent)

	r.Post("/teachers", s.handleCreateTeacher)

	return r
}

// Middleware

type claimsKey struct{}

// publicPaths bypass authentication entirely; a token on these routes is
// ignored, not validated.
var publicPaths = map[string]bool{
	"/auth/register": true,
	"/auth/login":    true,
	"/auth/logout":   true,
	"/health":        true,
	"/metrics":       true,
}

var publicPrefixes = []string{"/public/"}

func isPublicPath(path string) bool {
	if publicPaths[path] {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// authenticate resolves the bearer token into request-scoped claims. A
// missing token is not an error here; the policy table decides whether the
// route tolerates anonymous callers. A present-but-invalid token terminates
// the request before any policy or handler code runs.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := auth.ParseToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, token)
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				writeError(w, http.StatusUnauthorized, "token expired")
				return
			}
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authorize enforces role capability per the policy table. Tenant isolation
// is deliberately not checked here; handlers and the store do that per
// operation.
func (s *Server) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rule := s.policy.Evaluate(r.Method, r.URL.Path)
		switch rule.Access {
		case policy.Public:
			next.ServeHTTP(w, r)
		case policy.AnyAuthenticated:
			if claimsFromContext(r.Context()) == nil {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			next.ServeHTTP(w, r)
		case policy.RoleSet:
			claims := claimsFromContext(r.Context())
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if !rule.Allows(model.Role(claims.Role)) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		}
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		if recorder.status >= http.StatusInternalServerError {
			metrics.HandlerErrors.Inc()
		}
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", recorder.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

// Views

type userResponse struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	FirstName string  `json:"firstName"`
	LastName  *string `json:"lastName,omitempty"`
	Role      string  `json:"role"`
	SchoolID  string  `json:"schoolId,omitempty"`
	IsActive  bool    `json:"isActive"`
}

func mapUserResponse(user model.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      string(user.Role),
		SchoolID:  user.SchoolID,
		IsActive:  user.Active,
	}
}

type schoolResponse struct {
	ID         string `json:"id"`
	SchoolCode string `json:"schoolCode"`
	SchoolName string `json:"schoolName"`
	IsActive   bool   `json:"isActive"`
}

func mapSchoolResponse(school model.School) schoolResponse {
	return schoolResponse{
		ID:         school.ID,
		SchoolCode: school.Code,
		SchoolName: school.Name,
		IsActive:   school.Active,
	}
}

type studentResponse struct {
	User            userResponse `json:"user"`
	AdmissionNumber string       `json:"admissionNumber,omitempty"`
	ClassSectionID  *string      `json:"classSectionId,omitempty"`
	RollNumber      *string      `json:"rollNumber,omitempty"`
	GuardianName    *string      `json:"guardianName,omitempty"`
	GuardianPhone   *string      `json:"guardianPhone,omitempty"`
}

type attendanceResponse struct {
	ID             string  `json:"id"`
	StudentID      string  `json:"studentId"`
	ClassSectionID *string `json:"classSectionId,omitempty"`
	AttendanceDate string  `json:"attendanceDate"`
	Status         string  `json:"status"`
	Remarks        *string `json:"remarks,omitempty"`
	MarkedBy       string  `json:"markedBy"`
}

func mapAttendanceResponse(record model.AttendanceRecord) attendanceResponse {
	return attendanceResponse{
		ID:             record.ID,
		StudentID:      record.UserID,
		ClassSectionID: record.ClassSectionID,
		AttendanceDate: record.Date.Format(dateLayout),
		Status:         string(record.Status),
		Remarks:        record.Remarks,
		MarkedBy:       record.MarkedByID,
	}
}

// Auth handlers

type registerRequest struct {
	SchoolID    string  `json:"schoolId"`
	Username    string  `json:"username"`
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	FirstName   string  `json:"firstName"`
	LastName    *string `json:"lastName,omitempty"`
	DateOfBirth *string `json:"dateOfBirth,omitempty"`
	Gender      *string `json:"gender,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Address     *string `json:"address,omitempty"`
	City        *string `json:"city,omitempty"`
	State       *string `json:"state,omitempty"`
	Pincode     *string `json:"pincode,omitempty"`
	Role        string  `json:"role"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Username == "" || req.Email == "" || req.Password == "" || strings.TrimSpace(req.FirstName) == "" {
		writeError(w, http.StatusBadRequest, "username, email, password and firstName are required")
		return
	}
	role, ok := model.ParseRole(req.Role)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid role")
		return
	}
	if role != model.RoleSuperAdmin && req.SchoolID == "" {
		writeError(w, http.StatusBadRequest, "schoolId is required for this role")
		return
	}

	if req.SchoolID != "" {
		if _, err := s.store.GetSchool(r.Context(), req.SchoolID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				writeError(w, http.StatusNotFound, "school not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
	}

	user, errMsg := buildUser(req, role)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			writeError(w, http.StatusConflict, "username or email already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeSuccess(w, "user registered successfully", mapUserResponse(user))
}

func buildUser(req registerRequest, role model.Role) (model.User, string) {
	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		return model.User{}, "invalid password"
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		SchoolID:     req.SchoolID,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     req.LastName,
		Gender:       req.Gender,
		Phone:        req.Phone,
		Address:      req.Address,
		City:         req.City,
		State:        req.State,
		Pincode:      req.Pincode,
		Role:         role,
		Active:       true,
		Verified:     false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.DateOfBirth != nil && *req.DateOfBirth != "" {
		dob, err := time.Parse(dateLayout, *req.DateOfBirth)
		if err != nil {
			return model.User{}, "dateOfBirth must be YYYY-MM-DD"
		}
		user.DateOfBirth = &dob
	}
	return user, ""
}

// dummyPasswordHash is never a real credential; logins for unknown
// usernames verify against it so that path costs the same bcrypt work as a
// wrong password for a known user.
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string       `json:"token"`
	Type  string       `json:"type"`
	User  userResponse `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	// Unknown username and wrong password must be indistinguishable to the
	// caller, in body and in timing; both paths pay one bcrypt verification
	// before the identical 401.
	user, err := s.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = crypto.CheckPassword(dummyPasswordHash, req.Password)
			metrics.Logins.WithLabelValues("failure").Inc()
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if err := crypto.CheckPassword(user.PasswordHash, req.Password); err != nil {
		metrics.Logins.WithLabelValues("failure").Inc()
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	now := time.Now().UTC()
	if err := s.store.UpdateLastLogin(r.Context(), user.ID, now); err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	user.LastLogin = &now

	token, err := auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.AccessTokenTTL, auth.Claims{
		UserID:   user.ID,
		Role:     string(user.Role),
		SchoolID: user.SchoolID,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	metrics.Logins.WithLabelValues("success").Inc()
	writeSuccess(w, "login successful", loginResponse{
		Token: token,
		Type:  "Bearer",
		User:  mapUserResponse(user),
	})
}

// Tokens are stateless; logout succeeds without touching the token, which
// stays valid until its natural expiry.
func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, "logged out successfully", nil)
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	user, err := s.store.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeSuccess(w, "", mapUserResponse(user))
}

// Attendance handlers

type attendanceMarkRequest struct {
	ClassSectionID string           `json:"classSectionId"`
	AttendanceDate string           `json:"attendanceDate"`
	AttendanceList []attendanceItem `json:"attendanceList"`
}

type attendanceItem struct {
	StudentID string  `json:"studentId"`
	Status    string  `json:"status"`
	Remarks   *string `json:"remarks,omitempty"`
}

func (s *Server) handleMarkAttendance(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req attendanceMarkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ClassSectionID == "" {
		writeError(w, http.StatusBadRequest, "classSectionId is required")
		return
	}
	date, err := time.Parse(dateLayout, req.AttendanceDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "attendanceDate must be YYYY-MM-DD")
		return
	}
	if len(req.AttendanceList) == 0 {
		writeError(w, http.StatusBadRequest, "attendanceList must not be empty")
		return
	}

	items := make([]repository.AttendanceItem, 0, len(req.AttendanceList))
	for _, item := range req.AttendanceList {
		if item.StudentID == "" {
			writeError(w, http.StatusBadRequest, "studentId is required for every attendance item")
			return
		}
		status, ok := model.ParseAttendanceStatus(item.Status)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid attendance status: "+item.Status)
			return
		}
		items = append(items, repository.AttendanceItem{
			StudentID: item.StudentID,
			Status:    status,
			Remarks:   item.Remarks,
		})
	}

	// Guarded defensively; the policy table should make an unknown marker
	// unreachable.
	marker, err := s.store.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	section, err := s.store.GetClassSection(r.Context(), req.ClassSectionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "class section not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	// Tenant isolation: the section's school scopes the whole batch, and
	// only the top role operates across schools.
	if marker.Role != model.RoleSuperAdmin && marker.SchoolID != section.SchoolID {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.AttendanceTxTimeout)
	defer cancel()
	if err := s.store.ReplaceAttendanceBatch(ctx, section, date, marker.ID, items); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "student not found")
		case errors.Is(err, repository.ErrTenantMismatch):
			writeError(w, http.StatusForbidden, "forbidden")
		default:
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	metrics.AttendanceBatches.Inc()
	writeSuccess(w, "attendance marked successfully", nil)
}

func (s *Server) handleGetStudentAttendance(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	studentID := chi.URLParam(r, "studentId")
	start, err := time.Parse(dateLayout, r.URL.Query().Get("startDate"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "startDate must be YYYY-MM-DD")
		return
	}
	end, err := time.Parse(dateLayout, r.URL.Query().Get("endDate"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "endDate must be YYYY-MM-DD")
		return
	}

	if claims.Role == string(model.RoleStudent) && claims.UserID != studentID {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	student, err := s.store.GetUserByID(r.Context(), studentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "student not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if claims.Role != string(model.RoleSuperAdmin) && student.SchoolID != claims.SchoolID {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	records, err := s.store.ListAttendanceByUserAndRange(r.Context(), studentID, start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]attendanceResponse, 0, len(records))
	for _, record := range records {
		resp = append(resp, mapAttendanceResponse(record))
	}
	writeSuccess(w, "", resp)
}

// School handlers

type createSchoolRequest struct {
	SchoolCode string  `json:"schoolCode"`
	SchoolName string  `json:"schoolName"`
	Address    *string `json:"address,omitempty"`
	City       *string `json:"city,omitempty"`
	State      *string `json:"state,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	Email      *string `json:"email,omitempty"`
}

func (s *Server) handleCreateSchool(w http.ResponseWriter, r *http.Request) {
	var req createSchoolRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.SchoolCode = strings.TrimSpace(req.SchoolCode)
	req.SchoolName = strings.TrimSpace(req.SchoolName)
	if req.SchoolCode == "" || req.SchoolName == "" {
		writeError(w, http.StatusBadRequest, "schoolCode and schoolName are required")
		return
	}

	now := time.Now().UTC()
	school := model.School{
		ID:               uuid.NewString(),
		Code:             req.SchoolCode,
		Name:             req.SchoolName,
		Address:          req.Address,
		City:             req.City,
		State:            req.State,
		Phone:            req.Phone,
		Email:            req.Email,
		Active:           true,
		AttendanceModule: true,
		ExamModule:       true,
		NoticeModule:     true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateSchool(r.Context(), school); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			writeError(w, http.StatusConflict, "school code already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeSuccess(w, "school created successfully", mapSchoolResponse(school))
}

func (s *Server) handleGetSchool(w http.ResponseWriter, r *http.Request) {
	schoolID := chi.URLParam(r, "schoolId")
	school, err := s.store.GetSchool(r.Context(), schoolID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "school not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeSuccess(w, "", mapSchoolResponse(school))
}

func (s *Server) handleListSchools(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 100)
	schools, err := s.store.ListSchools(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	resp := make([]schoolResponse, 0, len(schools))
	for _, school := range schools {
		resp = append(resp, mapSchoolResponse(school))
	}
	writeSuccess(w, "", resp)
}

// Student handlers

type createStudentRequest struct {
	SchoolID        string  `json:"schoolId,omitempty"`
	ClassSectionID  string  `json:"classSectionId"`
	AdmissionNumber string  `json:"admissionNumber"`
	Username        string  `json:"username"`
	Email           string  `json:"email"`
	Password        string  `json:"password"`
	FirstName       string  `json:"firstName"`
	LastName        *string `json:"lastName,omitempty"`
	RollNumber      *string `json:"rollNumber,omitempty"`
	GuardianName    *string `json:"guardianName,omitempty"`
	GuardianPhone   *string `json:"guardianPhone,omitempty"`
}

func (s *Server) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req createStudentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.AdmissionNumber = strings.TrimSpace(req.AdmissionNumber)
	if req.Username == "" || req.Email == "" || req.Password == "" ||
		strings.TrimSpace(req.FirstName) == "" || req.AdmissionNumber == "" || req.ClassSectionID == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	// A principal always creates into their own school; only the top role
	// picks a school explicitly.
	schoolID := claims.SchoolID
	if claims.Role == string(model.RoleSuperAdmin) {
		schoolID = req.SchoolID
	}
	if schoolID == "" {
		writeError(w, http.StatusBadRequest, "schoolId is required")
		return
	}

	if _, err := s.store.GetSchool(r.Context(), schoolID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "school not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	section, err := s.store.GetClassSection(r.Context(), req.ClassSectionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "class section not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if section.SchoolID != schoolID {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		SchoolID:     schoolID,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     req.LastName,
		Role:         model.RoleStudent,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	profile := model.StudentProfile{
		UserID:          user.ID,
		SchoolID:        schoolID,
		AdmissionNumber: req.AdmissionNumber,
		ClassSectionID:  &section.ID,
		RollNumber:      req.RollNumber,
		GuardianName:    req.GuardianName,
		GuardianPhone:   req.GuardianPhone,
		Active:          true,
	}

	if err := s.store.CreateStudent(r.Context(), user, profile); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			writeError(w, http.StatusConflict, "username, email or admission number already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeSuccess(w, "student created successfully", mapUserResponse(user))
}

func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	studentID := chi.URLParam(r, "studentId")
	if claims.Role == string(model.RoleStudent) && claims.UserID != studentID {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	student, err := s.store.GetUserByID(r.Context(), studentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "student not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if student.Role != model.RoleStudent {
		writeError(w, http.StatusNotFound, "student not found")
		return
	}
	if claims.Role != string(model.RoleSuperAdmin) && student.SchoolID != claims.SchoolID {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	resp := studentResponse{User: mapUserResponse(student)}
	// Users registered as STUDENT without an admission record have no
	// profile row; the base view still goes out.
	if profile, err := s.store.GetStudentProfile(r.Context(), studentID); err == nil {
		resp.AdmissionNumber = profile.AdmissionNumber
		resp.ClassSectionID = profile.ClassSectionID
		resp.RollNumber = profile.RollNumber
		resp.GuardianName = profile.GuardianName
		resp.GuardianPhone = profile.GuardianPhone
	} else if !errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeSuccess(w, "", resp)
}

func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	schoolID := claims.SchoolID
	if claims.Role == string(model.RoleSuperAdmin) {
		schoolID = r.URL.Query().Get("schoolId")
	}
	if schoolID == "" {
		writeError(w, http.StatusBadRequest, "schoolId is required")
		return
	}

	students, err := s.store.ListStudentsBySchool(r.Context(), schoolID, r.URL.Query().Get("classSectionId"), queryLimit(r, 200))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]userResponse, 0, len(students))
	for _, student := range students {
		resp = append(resp, mapUserResponse(student))
	}
	writeSuccess(w, "", resp)
}

func (s *Server) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	studentID := chi.URLParam(r, "studentId")

	student, err := s.store.GetUserByID(r.Context(), studentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "student not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if student.Role != model.RoleStudent {
		writeError(w, http.StatusNotFound, "student not found")
		return
	}
	if claims.Role != string(model.RoleSuperAdmin) && student.SchoolID != claims.SchoolID {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	deactivated, err := s.store.DeactivateUser(r.Context(), studentID, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !deactivated {
		writeError(w, http.StatusNotFound, "student not found")
		return
	}
	writeSuccess(w, "student deactivated successfully", nil)
}

// Teacher handlers

type createTeacherRequest struct {
	SchoolID  string  `json:"schoolId,omitempty"`
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	FirstName string  `json:"firstName"`
	LastName  *string `json:"lastName,omitempty"`
	Phone     *string `json:"phone,omitempty"`
}

func (s *Server) handleCreateTeacher(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req createTeacherRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Username == "" || req.Email == "" || req.Password == "" || strings.TrimSpace(req.FirstName) == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	schoolID := claims.SchoolID
	if claims.Role == string(model.RoleSuperAdmin) {
		schoolID = req.SchoolID
	}
	if schoolID == "" {
		writeError(w, http.StatusBadRequest, "schoolId is required")
		return
	}
	if _, err := s.store.GetSchool(r.Context(), schoolID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "school not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		SchoolID:     schoolID,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     req.LastName,
		Phone:        req.Phone,
		Role:         model.RoleTeacher,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			writeError(w, http.StatusConflict, "username or email already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeSuccess(w, "teacher created successfully", mapUserResponse(user))
}

// Helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

// maxQueryLimit caps client-supplied page sizes.
const maxQueryLimit = 500

func queryLimit(r *http.Request, fallback int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > maxQueryLimit {
				return maxQueryLimit
			}
			return parsed
		}
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, message string, data interface{}) {
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiResponse{Success: false, Message: message})
}
