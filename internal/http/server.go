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
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/menaceXnadin/Ai-Attendance-Management-System-sub004/internal/auth"
	"github.com/menaceXnadin/Ai-Attendance-Management-System-sub004/internal/config"
	"github.com/menaceXnadin/Ai-Attendance-Management-System-sub004/internal/db"
	"github.com/menaceXnadin/Ai-Attendance-Management-System-sub004/internal/history"
	"github.com/menaceXnadin/Ai-Attendance-Management-System-sub004/internal/schedule"
)

type Server struct {
	cfg       config.Config
	store     *db.Store
	history   history.Store
	timetable schedule.Config
	location  *time.Location
	mode      schedule.Mode
	now       func() time.Time
}

func NewServer(cfg config.Config, store *db.Store, historyStore history.Store, timetable schedule.Config, location *time.Location, mode schedule.Mode) (*Server, error) {
	if err := timetable.Validate(); err != nil {
		return nil, err
	}
	if location == nil {
		location = time.Local
	}
	return &Server{
		cfg:       cfg,
		store:     store,
		history:   historyStore,
		timetable: timetable,
		location:  location,
		mode:      mode,
		now:       time.Now,
	}, nil
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.With(s.authMiddleware).Get("/schedule", s.handleGetSchedule)
	r.With(s.authMiddleware).Get("/eligibility", s.handleGetEligibility)
	r.With(s.authMiddleware).Post("/verifications", s.handleCreateVerification)
	r.With(s.authMiddleware).Get("/attendance/today", s.handleGetDayOverview)
	r.With(s.authMiddleware).Get("/attendance", s.handleListAttendance)
	r.With(s.authMiddleware).Get("/attendance/report", s.handleAttendanceReport)
	r.With(s.authMiddleware).Delete("/attendance/{recordId}", s.handleDeleteAttendance)

	return r
}

// Auth

type claimsKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		claims, err := auth.ParseToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

// Models

type schoolHoursResponse struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type periodResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Start string `json:"start"`
	End   string `json:"end"`
}

type scheduleResponse struct {
	SchoolHours schoolHoursResponse `json:"school_hours"`
	Periods     []periodResponse    `json:"periods"`
	Timezone    string              `json:"timezone"`
}

type eligibilityResponse struct {
	Allowed       bool            `json:"allowed"`
	Code          string          `json:"code"`
	Reason        string          `json:"reason"`
	CurrentPeriod *periodResponse `json:"current_period,omitempty"`
	NextPeriod    *periodResponse `json:"next_period,omitempty"`
	TimeUntilNext string          `json:"time_until_next,omitempty"`
	Mode          string          `json:"mode"`
	EvaluatedAt   int64           `json:"evaluated_at"`
}

type createVerificationRequest struct {
	Method string `json:"method"`
}

type attendanceRecordResponse struct {
	ID         string `json:"id"`
	Student    string `json:"student"`
	Day        string `json:"day"`
	PeriodID   string `json:"period_id"`
	PeriodName string `json:"period_name"`
	Method     string `json:"method"`
	MarkedAt   int64  `json:"marked_at"`
}

type dayOverviewEntry struct {
	Period   periodResponse `json:"period"`
	State    string         `json:"state"`
	Label    string         `json:"label"`
	Verified bool           `json:"verified"`
}

type dayOverviewResponse struct {
	Day     string             `json:"day"`
	Student string             `json:"student"`
	Periods []dayOverviewEntry `json:"periods"`
}

type attendanceReportEntry struct {
	PeriodID   string `json:"period_id"`
	PeriodName string `json:"period_name"`
	Verified   int64  `json:"verified"`
}

type attendanceReportResponse struct {
	Day     string                  `json:"day"`
	Periods []attendanceReportEntry `json:"periods"`
	Total   int64                   `json:"total"`
}

func mapPeriod(period schedule.Period) periodResponse {
	return periodResponse{
		ID:    period.ID,
		Name:  period.Name,
		Start: period.Start.String(),
		End:   period.End.String(),
	}
}

func mapEligibility(verdict schedule.Verdict, mode schedule.Mode, evaluatedAt time.Time) eligibilityResponse {
	resp := eligibilityResponse{
		Allowed:     verdict.Allowed,
		Code:        string(verdict.Code),
		Reason:      verdict.Reason,
		Mode:        mode.String(),
		EvaluatedAt: evaluatedAt.Unix(),
	}
	if verdict.Current != nil {
		period := mapPeriod(*verdict.Current)
		resp.CurrentPeriod = &period
	}
	if verdict.Next != nil {
		period := mapPeriod(*verdict.Next)
		resp.NextPeriod = &period
		resp.TimeUntilNext = schedule.FormatDuration(verdict.TimeUntilNext)
	}
	return resp
}

func mapRecord(record db.Record) attendanceRecordResponse {
	return attendanceRecordResponse{
		ID:         record.ID,
		Student:    record.StudentID,
		Day:        record.Day.Format("2006-01-02"),
		PeriodID:   record.PeriodID,
		PeriodName: record.PeriodName,
		Method:     record.Method,
		MarkedAt:   record.MarkedAt.Unix(),
	}
}

// Handlers

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	periods := make([]periodResponse, 0, len(s.timetable.Periods))
	for _, period := range s.timetable.Periods {
		periods = append(periods, mapPeriod(period))
	}
	writeJSON(w, http.StatusOK, scheduleResponse{
		SchoolHours: schoolHoursResponse{
			Start: s.timetable.Hours.Start.String(),
			End:   s.timetable.Hours.End.String(),
		},
		Periods:  periods,
		Timezone: s.location.String(),
	})
}

func (s *Server) handleGetEligibility(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	if claims.UserType != "student" && claims.UserType != "dev" {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	now := s.now().In(s.location)
	mode := s.mode
	if claims.UserType == "dev" {
		// Dev tokens may pin the evaluation instant and mode to inspect
		// the timetable without waiting for wall-clock time.
		if raw := r.URL.Query().Get("day"); raw != "" {
			day, err := parseDay(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_day")
				return
			}
			now = time.Date(day.Year(), day.Month(), day.Day(), now.Hour(), now.Minute(), 0, 0, s.location)
		}
		if raw := r.URL.Query().Get("at"); raw != "" {
			at, err := schedule.ParseTimeOfDay(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_at")
				return
			}
			now = time.Date(now.Year(), now.Month(), now.Day(), int(at)/60, int(at)%60, 0, 0, s.location)
		}
		if raw := r.URL.Query().Get("mode"); raw != "" {
			parsed, err := schedule.ParseMode(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_mode")
				return
			}
			mode = parsed
		}
	}

	dayHistory, err := s.history.DayHistory(r.Context(), claims.UserID, now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	verdict := schedule.Evaluate(now, s.timetable, dayHistory, mode)
	writeJSON(w, http.StatusOK, mapEligibility(verdict, mode, now))
}

func (s *Server) handleCreateVerification(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	if claims.UserType != "student" {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req createVerificationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	method, err := normalizeMethod(req.Method)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_method")
		return
	}

	now := s.now().In(s.location)
	dayHistory, err := s.history.DayHistory(r.Context(), claims.UserID, now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	verdict := schedule.Evaluate(now, s.timetable, dayHistory, s.mode)
	if !verdict.Allowed {
		status := http.StatusForbidden
		if verdict.Code == schedule.ReasonAlreadyVerified {
			status = http.StatusConflict
		}
		writeError(w, status, string(verdict.Code))
		return
	}
	if verdict.Current == nil {
		// Override mode can allow a capture outside any period, but a
		// record needs a period to attach to.
		writeError(w, http.StatusForbidden, string(schedule.ReasonNoActivePeriod))
		return
	}

	first, err := s.history.MarkVerified(r.Context(), claims.UserID, now, verdict.Current.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !first {
		writeError(w, http.StatusConflict, string(schedule.ReasonAlreadyVerified))
		return
	}

	record := db.Record{
		ID:         uuid.NewString(),
		StudentID:  claims.UserID,
		SchoolID:   claims.SchoolID,
		Day:        now,
		PeriodID:   verdict.Current.ID,
		PeriodName: verdict.Current.Name,
		Method:     method,
		MarkedAt:   now.UTC(),
	}
	if err := s.store.CreateRecord(r.Context(), record); err != nil {
		if errors.Is(err, db.ErrDuplicateRecord) {
			writeError(w, http.StatusConflict, string(schedule.ReasonAlreadyVerified))
			return
		}
		// Release the marker so the student can retry the capture.
		_ = s.history.Unmark(r.Context(), claims.UserID, now, verdict.Current.ID)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, mapRecord(record))
}

func (s *Server) handleGetDayOverview(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	studentID := claims.UserID
	if raw := r.URL.Query().Get("studentId"); raw != "" && raw != claims.UserID {
		if claims.UserType != "teacher" && claims.UserType != "admin" && claims.UserType != "dev" {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		if _, err := uuid.Parse(raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_student_id")
			return
		}
		studentID = raw
	}

	now := s.now().In(s.location)
	dayHistory, err := s.history.DayHistory(r.Context(), studentID, now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	at := schedule.TimeOfDayFrom(now)
	periods := make([]dayOverviewEntry, 0, len(s.timetable.Periods))
	for _, period := range s.timetable.Periods {
		verified := dayHistory.Has(schedule.PeriodKey(now, period.ID))
		periods = append(periods, dayOverviewEntry{
			Period:   mapPeriod(period),
			State:    schedule.StateOf(at, period, verified).String(),
			Label:    schedule.DayLabel(at, period, verified),
			Verified: verified,
		})
	}
	writeJSON(w, http.StatusOK, dayOverviewResponse{
		Day:     now.Format("2006-01-02"),
		Student: studentID,
		Periods: periods,
	})
}

func (s *Server) handleListAttendance(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	studentID := r.URL.Query().Get("studentId")
	limit := parseLimit(r, 50)

	var from, to *time.Time
	if raw := r.URL.Query().Get("from"); raw != "" {
		day, err := parseDay(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from")
			return
		}
		from = &day
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		day, err := parseDay(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to")
			return
		}
		to = &day
	}

	var (
		records []db.Record
		err     error
	)
	switch claims.UserType {
	case "student":
		if studentID != "" && studentID != claims.UserID {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		records, err = s.store.ListRecordsByStudent(r.Context(), claims.UserID, claims.SchoolID, from, to, limit)
	case "teacher", "admin", "dev":
		if studentID != "" {
			if _, parseErr := uuid.Parse(studentID); parseErr != nil {
				writeError(w, http.StatusBadRequest, "invalid_student_id")
				return
			}
			records, err = s.store.ListRecordsByStudent(r.Context(), studentID, claims.SchoolID, from, to, limit)
		} else {
			records, err = s.store.ListRecordsBySchool(r.Context(), claims.SchoolID, from, to, limit)
		}
	default:
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	resp := make([]attendanceRecordResponse, 0, len(records))
	for _, record := range records {
		resp = append(resp, mapRecord(record))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAttendanceReport(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	if claims.UserType == "student" {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	day := s.now().In(s.location)
	if raw := r.URL.Query().Get("day"); raw != "" {
		parsed, err := parseDay(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_day")
			return
		}
		day = parsed
	}

	rows, err := s.store.CountRecordsByPeriod(r.Context(), claims.SchoolID, day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.PeriodID] = row.Total
	}

	var total int64
	periods := make([]attendanceReportEntry, 0, len(s.timetable.Periods))
	for _, period := range s.timetable.Periods {
		verified := counts[period.ID]
		total += verified
		periods = append(periods, attendanceReportEntry{
			PeriodID:   period.ID,
			PeriodName: period.Name,
			Verified:   verified,
		})
		delete(counts, period.ID)
	}
	// Records from periods no longer in the timetable still count.
	for _, row := range rows {
		if verified, ok := counts[row.PeriodID]; ok {
			total += verified
			periods = append(periods, attendanceReportEntry{
				PeriodID:   row.PeriodID,
				PeriodName: row.PeriodName,
				Verified:   verified,
			})
		}
	}
	writeJSON(w, http.StatusOK, attendanceReportResponse{
		Day:     day.Format("2006-01-02"),
		Periods: periods,
		Total:   total,
	})
}

func (s *Server) handleDeleteAttendance(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	if claims.UserType != "admin" && claims.UserType != "dev" {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	recordID := chi.URLParam(r, "recordId")
	if _, err := uuid.Parse(recordID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_record_id")
		return
	}

	record, err := s.store.GetRecord(r.Context(), recordID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "record_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if claims.UserType != "dev" && record.SchoolID != claims.SchoolID {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	if err := s.store.SoftDeleteRecord(r.Context(), recordID, time.Now().UTC()); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	// Clear the day marker so the student can verify for the period again.
	if err := s.history.Unmark(r.Context(), record.StudentID, record.Day, record.PeriodID); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Utilities

var errInvalid = errors.New("invalid value")

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

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func parseLimit(r *http.Request, fallback int32) int32 {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return int32(parsed)
		}
	}
	return fallback
}

func parseDay(value string) (time.Time, error) {
	return time.Parse("2006-01-02", value)
}

func normalizeMethod(value string) (string, error) {
	if value == "" {
		return "face", nil
	}
	switch value {
	case "face", "manual":
		return value, nil
	default:
		return "", errInvalid
	}
}
