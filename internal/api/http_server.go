package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"uborka/internal/config"
	"uborka/internal/database"
	"uborka/internal/domain"
	"uborka/internal/metrics"
	"uborka/internal/models"
	"uborka/internal/schedule"
	"uborka/internal/service"

	"golang.org/x/time/rate"
)

// ScheduleExporter builds XLSX workbooks and returns their paths.
type ScheduleExporter interface {
	ExportSchedule(ctx context.Context, startDate, endDate time.Time) (string, error)
	ExportSubscriptions(ctx context.Context) (string, error)
}

// HTTPServer exposes the scheduling API over HTTP.
type HTTPServer struct {
	cfg      config.APIConfig
	subs     domain.SubscriptionService
	timeoff  domain.TimeOffService
	exporter ScheduleExporter
	server   *http.Server
	auth     *HTTPAuth
}

func NewHTTPServer(cfg config.APIConfig, subs domain.SubscriptionService, timeoff domain.TimeOffService, exporter ScheduleExporter) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{cfg: cfg, subs: subs, timeoff: timeoff, exporter: exporter}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc("/api/v1/bookings", srv.handleBookings)
	mux.HandleFunc("/api/v1/subscriptions", srv.handleSubscriptions)
	mux.HandleFunc("/api/v1/subscriptions/", srv.handleSubscription)
	mux.HandleFunc("/api/v1/occurrences/", srv.handleOccurrence)
	mux.HandleFunc("/api/v1/timeoff", srv.handleTimeOffCreate)
	mux.HandleFunc("/api/v1/timeoff/", srv.handleTimeOffAction)
	mux.HandleFunc("/api/v1/schedule/export", srv.handleScheduleExport)
	mux.HandleFunc("/api/v1/subscriptions/export", srv.handleSubscriptionsExport)

	handler := loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	log.Printf("HTTP API listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the configured root handler
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

type bookingRequest struct {
	ClientID        int64      `json:"client_id"`
	CleanerID       int64      `json:"cleaner_id"`
	AddressID       int64      `json:"address_id"`
	ServiceType     string     `json:"service_type"`
	DurationMinutes int        `json:"duration_minutes"`
	Price           float64    `json:"price"`
	Notes           string     `json:"notes"`
	ScheduledAt     time.Time  `json:"scheduled_at"`
	IsRecurring     bool       `json:"is_recurring"`
	Frequency       string     `json:"frequency"`
	RecurrenceEnd   *time.Time `json:"recurrence_end,omitempty"`
}

func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body bookingRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	freq := body.Frequency
	if freq == "" {
		freq = models.FrequencyNone
	}

	root := &models.Occurrence{
		ClientID:        body.ClientID,
		CleanerID:       body.CleanerID,
		AddressID:       body.AddressID,
		ServiceType:     body.ServiceType,
		DurationMinutes: body.DurationMinutes,
		Price:           body.Price,
		Notes:           body.Notes,
		ScheduledAt:     body.ScheduledAt,
		IsRecurring:     body.IsRecurring,
		Frequency:       freq,
		RecurrenceEnd:   body.RecurrenceEnd,
	}

	created, children, conflicts, err := s.subs.CreateRecurring(r.Context(), root)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"booking":   created,
		"generated": len(children),
		"conflicts": conflicts,
	})
}

func (s *HTTPServer) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	subs, err := s.subs.ListSubscriptions(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"subscriptions": subs})
}

func (s *HTTPServer) handleSubscription(w http.ResponseWriter, r *http.Request) {
	id, action, ok := parseIDAction(r.URL.Path, "/api/v1/subscriptions/")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid subscription ID")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		sub, err := s.subs.GetSubscription(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sub)

	case action == "pause" && r.Method == http.MethodPost:
		removed, err := s.subs.Pause(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": models.SubscriptionPaused, "removed": removed})

	case action == "resume" && r.Method == http.MethodPost:
		generated, conflicts, err := s.subs.Resume(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    models.SubscriptionActive,
			"generated": generated,
			"conflicts": conflicts,
		})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type occurrenceActionRequest struct {
	Status      string    `json:"status,omitempty"`
	Version     int64     `json:"version"`
	ScheduledAt time.Time `json:"scheduled_at,omitempty"`
}

func (s *HTTPServer) handleOccurrence(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id, action, ok := parseIDAction(r.URL.Path, "/api/v1/occurrences/")
	if !ok || action == "" {
		writeError(w, http.StatusBadRequest, "invalid occurrence path")
		return
	}

	var body occurrenceActionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var err error
	switch action {
	case "status":
		switch body.Status {
		case models.StatusCompleted, models.StatusCleanerCompleted:
			err = s.subs.CompleteOccurrence(r.Context(), id, body.Version)
		case models.StatusCancelled:
			err = s.subs.CancelOccurrence(r.Context(), id, body.Version)
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported status transition: %q", body.Status))
			return
		}
	case "paid":
		err = s.subs.MarkPaid(r.Context(), id, body.Version)
	case "reschedule":
		err = s.subs.Reschedule(r.Context(), id, body.Version, body.ScheduledAt)
	default:
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

type timeOffRequest struct {
	CleanerID int64     `json:"cleaner_id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Reason    string    `json:"reason,omitempty"`
}

func (s *HTTPServer) handleTimeOffCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body timeOffRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	off := &models.TimeOff{
		CleanerID: body.CleanerID,
		StartDate: body.StartDate,
		EndDate:   body.EndDate,
		Reason:    body.Reason,
	}

	affected, err := s.timeoff.Request(r.Context(), off)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"time_off": off,
		"affected": affected,
	})
}

func (s *HTTPServer) handleTimeOffAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id, action, ok := parseIDAction(r.URL.Path, "/api/v1/timeoff/")
	if !ok || action == "" {
		writeError(w, http.StatusBadRequest, "invalid time off path")
		return
	}

	var err error
	switch action {
	case "approve":
		err = s.timeoff.Approve(r.Context(), id)
	case "decline":
		err = s.timeoff.Decline(r.Context(), id)
	default:
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

func (s *HTTPServer) handleScheduleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	now := time.Now()
	startDate := now.AddDate(0, -models.DefaultExportRangeMonthsBefore, 0)
	endDate := now.AddDate(0, models.DefaultExportRangeMonthsAfter, 0)

	if raw := strings.TrimSpace(r.URL.Query().Get("start")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start format; expected YYYY-MM-DD")
			return
		}
		startDate = parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("end")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end format; expected YYYY-MM-DD")
			return
		}
		endDate = parsed
	}
	if endDate.Before(startDate) {
		writeError(w, http.StatusBadRequest, "end must not be before start")
		return
	}

	filePath, err := s.exporter.ExportSchedule(r.Context(), startDate, endDate)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(filePath)))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	http.ServeFile(w, r, filePath)
}

func (s *HTTPServer) handleSubscriptionsExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	filePath, err := s.exporter.ExportSubscriptions(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(filePath)))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	http.ServeFile(w, r, filePath)
}

// parseIDAction splits "/prefix/{id}" and "/prefix/{id}/{action}" paths.
func parseIDAction(path, prefix string) (int64, string, bool) {
	rest := strings.TrimPrefix(path, prefix)
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || len(parts) > 2 {
		return 0, "", false
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}
	return id, action, true
}

// writeServiceError maps scheduling errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrAlreadyPaused),
		errors.Is(err, database.ErrNotPaused),
		errors.Is(err, database.ErrNotSeriesRoot),
		errors.Is(err, database.ErrConcurrentModification),
		errors.Is(err, service.ErrNotRecurring),
		errors.Is(err, service.ErrSeriesCancelled),
		errors.Is(err, service.ErrSeriesCompleted),
		errors.Is(err, service.ErrSeriesLocked):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
type HTTPAuth struct {
	cfg      config.APIConfig
	clients  map[string]config.APIClientKey
	limiters sync.Map // map[string]*rate.Limiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &HTTPAuth{cfg: cfg, clients: m}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled || !a.cfg.HTTP.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(r); err != nil {
				statusCode := http.StatusUnauthorized
				if err == errPermissionDenied {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, err.Error())
				return
			}
		}

		if err := a.checkRateLimit(r); err != nil {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

var errPermissionDenied = fmt.Errorf("permission denied")

func (a *HTTPAuth) checkAuth(r *http.Request) error {
	apiKeyHeader := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey))
	if apiKeyHeader == "" {
		apiKeyHeader = "x-api-key"
	}
	extraHeader := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderExtra))
	if extraHeader == "" {
		extraHeader = "x-api-extra"
	}

	apiKey := strings.TrimSpace(r.Header.Get(apiKeyHeader))
	extra := strings.TrimSpace(r.Header.Get(extraHeader))
	if apiKey == "" || extra == "" {
		return fmt.Errorf("missing api key headers")
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return fmt.Errorf("invalid api key")
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return fmt.Errorf("invalid extra header")
	}

	if err := a.checkPermissions(client, r); err != nil {
		return err
	}

	return nil
}

func (a *HTTPAuth) checkPermissions(client config.APIClientKey, r *http.Request) error {
	required := requiredPermissionHTTP(r)
	if required == "" {
		return nil
	}
	if len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

func requiredPermissionHTTP(r *http.Request) string {
	path := r.URL.Path
	switch {
	case path == "/api/v1/bookings":
		return "write:bookings"
	case strings.HasPrefix(path, "/api/v1/occurrences/"):
		return "write:bookings"
	case strings.HasPrefix(path, "/api/v1/subscriptions") && r.Method == http.MethodPost:
		return "write:bookings"
	case strings.HasPrefix(path, "/api/v1/subscriptions"):
		return "read:subscriptions"
	case strings.HasPrefix(path, "/api/v1/timeoff"):
		return "write:timeoff"
	case path == "/api/v1/schedule/export":
		return "read:schedule"
	}
	return ""
}

func (a *HTTPAuth) checkRateLimit(r *http.Request) error {
	if a.cfg.RateLimit.RPS <= 0 {
		return nil
	}

	key := a.clientKey(r)
	lim := a.getLimiter(key)
	if !lim.Allow() {
		return fmt.Errorf("rate limit exceeded")
	}
	return nil
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	apiKeyHeader := strings.TrimSpace(strings.ToLower(a.cfg.Auth.HeaderAPIKey))
	if apiKeyHeader == "" {
		apiKeyHeader = "x-api-key"
	}

	if apiKey := strings.TrimSpace(r.Header.Get(apiKeyHeader)); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}

func (a *HTTPAuth) getLimiter(key string) *rate.Limiter {
	if v, ok := a.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}

	burst := a.cfg.RateLimit.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(a.cfg.RateLimit.RPS), burst)
	actual, loaded := a.limiters.LoadOrStore(key, lim)
	if loaded {
		return actual.(*rate.Limiter)
	}
	return lim
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		dur := time.Since(start)
		metrics.IncHTTP(r.URL.Path)
		log.Printf("http method=%s path=%s status=%d dur=%s", r.Method, r.URL.Path, recorder.status, dur)
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
