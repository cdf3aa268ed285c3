package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"tripstats/internal/export"
	applog "tripstats/internal/log"
	"tripstats/internal/services"
	"tripstats/internal/trips"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady verifies the store connection when one is configured.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]any{
		"rate_limiter": map[string]any{"active_clients": s.rateLimiter.ActiveClients()},
	}

	if s.ready == nil {
		checks["store"] = "ok"
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			checks["store"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["store"] = "ok"
		}
	}

	NewResponse().Status(httpStatus).JSON(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics reports security counters in plain text.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "# Security metrics\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n", atomic.LoadInt64(&s.metrics.rateLimitHits))
	fmt.Fprintf(w, "invalid_ip_attempts_total %d\n", atomic.LoadInt64(&s.metrics.invalidIPAttempts))
	fmt.Fprintf(w, "suspicious_requests_total %d\n", atomic.LoadInt64(&s.metrics.suspiciousRequests))
	fmt.Fprintf(w, "rate_limiter_active_clients %d\n", s.rateLimiter.ActiveClients())
	fmt.Fprintf(w, "uptime_seconds %d\n", int64(time.Since(s.started).Seconds()))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	userID, err := ParseUserID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	uploads, err := ParseUploads(r, s.maxUploadBytes)
	switch {
	case errors.Is(err, ErrUploadLarge):
		ErrorResponse(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("upload exceeds %d bytes", s.maxUploadBytes)).Write(w)
		return
	case errors.Is(err, ErrNoFiles):
		BadRequestError(`attach one or more .xlsx files in the "file" field`).Write(w)
		return
	case err != nil:
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Invalid upload", applog.FieldUserID, userID, applog.FieldError, err)
		BadRequestError("invalid multipart upload").Write(w)
		return
	}

	report, err := s.trips.Ingest(r.Context(), userID, uploads)
	if err != nil {
		s.writeServiceError(w, r, err, applog.OpIngest)
		return
	}
	NewResponse().JSON(report).Write(w)
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	userID, err := ParseUserID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	files, err := s.trips.Files(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err, applog.OpList)
		return
	}
	NewResponse().JSON(map[string]any{"files": files}).Write(w)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	userID, err := ParseUserID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	sum, err := s.trips.Summary(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err, applog.OpRead)
		return
	}
	NewResponse().JSON(sum.Overview).Write(w)
}

func (s *Server) handleTop(w http.ResponseWriter, r *http.Request) {
	userID, err := ParseUserID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	n, err := ParseTopN(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	ranking, err := s.trips.Top(r.Context(), userID, n)
	if err != nil {
		s.writeServiceError(w, r, err, applog.OpRead)
		return
	}
	NewResponse().JSON(ranking).Write(w)
}

func (s *Server) handleCar(w http.ResponseWriter, r *http.Request) {
	userID, err := ParseUserID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	car, err := s.trips.Car(r.Context(), userID, sanitizeInput(r.PathValue("plate")))
	if err != nil {
		s.writeServiceError(w, r, err, applog.OpRead)
		return
	}
	NewResponse().JSON(car).Write(w)
}

func (s *Server) handleDriver(w http.ResponseWriter, r *http.Request) {
	userID, err := ParseUserID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	driver, err := s.trips.Driver(r.Context(), userID, sanitizeInput(r.PathValue("name")))
	if err != nil {
		s.writeServiceError(w, r, err, applog.OpRead)
		return
	}
	NewResponse().JSON(driver).Write(w)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	userID, err := ParseUserID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	records, err := s.trips.Records(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err, applog.OpExport)
		return
	}
	content, err := export.Workbook(records)
	if err != nil {
		s.writeServiceError(w, r, err, applog.OpExport)
		return
	}
	NewResponse().Attachment(export.FileName, xlsxContentType, content).Write(w)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	userID, err := ParseUserID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	n, err := s.trips.Clear(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, r, err, applog.OpClear)
		return
	}
	NewResponse().JSON(map[string]int{"removed": n}).Write(w)
}

// writeServiceError maps service errors onto status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, trips.ErrInvalidUser):
		BadRequestError(err.Error()).Write(w)
	case errors.Is(err, services.ErrNotFound):
		NotFoundError(err.Error()).Write(w)
	case errors.Is(err, export.ErrNoData):
		NotFoundError("no trips recorded yet").Write(w)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		ErrorResponse(http.StatusServiceUnavailable, "request cancelled").Write(w)
	default:
		applog.NewStructuredLogger(applog.FromContext(r.Context())).LogError(r.Context(), "Request failed", err, applog.ComponentHTTP, op,
			applog.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", ""))
		InternalServerError("internal error").Write(w)
	}
}
