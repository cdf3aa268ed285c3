package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"tripstats/internal/export"
	"tripstats/internal/extract/extracttest"
	applog "tripstats/internal/log"
	"tripstats/internal/services"
	"tripstats/internal/trips/memory"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func quietLogger() *applog.Logger {
	return applog.New(applog.Config{Component: "test", Handler: applog.NewHandler(io.Discard, "text", slog.LevelError)})
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	opts.Logger = quietLogger()
	svc := services.NewTripService(memory.New(), nil, services.DefaultTripServiceConfig(), opts.Logger)
	srv := NewServer(":0", svc, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

type file struct {
	name string
	data []byte
}

func uploadRequest(t *testing.T, path string, files ...file) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := mw.CreateFormFile(uploadField, f.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(f.data); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

func septInvoice(t *testing.T) []byte {
	t.Helper()
	buf, err := extracttest.Invoice([][2]any{
		{"Склад-Порт, от 06.09.25, а/м 123, Иванов И.И.", 1000},
		{"Порт-Склад, от 07.09.25, а/м 456, Петров П.П.", "2 500,00"},
		{"Порт-Склад, от 08.09.25, а/м 123, Иванов И.И.", 500},
	})
	if err != nil {
		t.Fatal(err)
	}
	return buf
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, Options{})
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rr := serve(srv, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	down := newTestServer(t, Options{Ready: fakePinger{err: errors.New("connection refused")}})
	rr := serve(down, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with failing store: status=%d", rr.Code)
	}
	var body map[string]any
	decode(t, rr, &body)
	if body["status"] != "not_ready" {
		t.Errorf("unexpected readiness body: %v", body)
	}
}

func TestUploadAndQuery(t *testing.T) {
	srv := newTestServer(t, Options{})

	rr := serve(srv, uploadRequest(t, "/users/42/files",
		file{"sept.xlsx", septInvoice(t)},
		file{"notes.txt", []byte("hello")},
	))
	if rr.Code != http.StatusOK {
		t.Fatalf("upload status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get(requestIDHeader) == "" || rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("missing middleware headers: %v", rr.Header())
	}
	var report services.IngestReport
	decode(t, rr, &report)
	if len(report.Files) != 2 || report.Files[0].Outcome != services.OutcomeAdded || report.Files[1].Outcome != services.OutcomeRejected {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Added != 3 || report.TotalRecords != 3 {
		t.Errorf("unexpected counts: %+v", report)
	}

	rr = serve(srv, uploadRequest(t, "/users/42/files", file{"sept.xlsx", septInvoice(t)}))
	decode(t, rr, &report)
	if report.Files[0].Outcome != services.OutcomeDuplicate {
		t.Errorf("re-upload outcome = %s", report.Files[0].Outcome)
	}

	rr = serve(srv, httptest.NewRequest(http.MethodGet, "/users/42/stats", nil))
	var overview struct {
		TripCount   int    `json:"trip_count"`
		TotalAmount string `json:"total_amount"`
		FileCount   int    `json:"file_count"`
		CarCount    int    `json:"car_count"`
		DriverCount int    `json:"driver_count"`
	}
	decode(t, rr, &overview)
	if overview.TripCount != 3 || overview.TotalAmount != "4000" || overview.CarCount != 2 || overview.DriverCount != 2 || overview.FileCount != 1 {
		t.Errorf("unexpected stats: %+v", overview)
	}

	rr = serve(srv, httptest.NewRequest(http.MethodGet, "/users/42/top?n=1", nil))
	var ranking struct {
		Cars []struct {
			Plate string `json:"plate"`
		} `json:"cars"`
		Drivers []struct {
			Name string `json:"name"`
		} `json:"drivers"`
	}
	decode(t, rr, &ranking)
	if len(ranking.Cars) != 1 || ranking.Cars[0].Plate != "456" || len(ranking.Drivers) != 1 || ranking.Drivers[0].Name != "Петров" {
		t.Errorf("unexpected ranking: %+v", ranking)
	}

	rr = serve(srv, httptest.NewRequest(http.MethodGet, "/users/42/cars/123", nil))
	var car struct {
		TripCount int      `json:"trip_count"`
		Drivers   []string `json:"drivers"`
	}
	decode(t, rr, &car)
	if rr.Code != http.StatusOK || car.TripCount != 2 || len(car.Drivers) != 1 {
		t.Errorf("car 123: status=%d %+v", rr.Code, car)
	}

	rr = serve(srv, httptest.NewRequest(http.MethodGet, "/users/42/drivers/"+url.PathEscape("иванов"), nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"trip_count":2`) {
		t.Errorf("driver lookup: status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = serve(srv, httptest.NewRequest(http.MethodGet, "/users/42/cars/999", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown car status=%d", rr.Code)
	}

	rr = serve(srv, httptest.NewRequest(http.MethodGet, "/users/42/files", nil))
	var files struct {
		Files []string `json:"files"`
	}
	decode(t, rr, &files)
	if len(files.Files) != 1 || files.Files[0] != "sept.xlsx" {
		t.Errorf("unexpected files: %+v", files)
	}
}

func TestExport(t *testing.T) {
	srv := newTestServer(t, Options{})

	rr := serve(srv, httptest.NewRequest(http.MethodGet, "/users/7/export", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("export without data: status=%d", rr.Code)
	}

	serve(srv, uploadRequest(t, "/users/7/files", file{"sept.xlsx", septInvoice(t)}))
	rr = serve(srv, httptest.NewRequest(http.MethodGet, "/users/7/export", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("export status=%d body=%s", rr.Code, rr.Body.String())
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, export.FileName) {
		t.Errorf("Content-Disposition = %q", cd)
	}
	f, err := excelize.OpenReader(bytes.NewReader(rr.Body.Bytes()))
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(export.SheetTrips)
	if err != nil || len(rows) != 4 {
		t.Errorf("exported trip rows = %d, %v", len(rows), err)
	}
}

func TestClear(t *testing.T) {
	srv := newTestServer(t, Options{})
	serve(srv, uploadRequest(t, "/users/9/files", file{"sept.xlsx", septInvoice(t)}))

	rr := serve(srv, httptest.NewRequest(http.MethodDelete, "/users/9/trips", nil))
	var cleared map[string]int
	decode(t, rr, &cleared)
	if rr.Code != http.StatusOK || cleared["removed"] != 3 {
		t.Fatalf("clear: status=%d body=%v", rr.Code, cleared)
	}

	rr = serve(srv, httptest.NewRequest(http.MethodGet, "/users/9/stats", nil))
	if !strings.Contains(rr.Body.String(), `"trip_count":0`) {
		t.Errorf("stats after clear: %s", rr.Body.String())
	}
}

func TestRequestValidation(t *testing.T) {
	srv := newTestServer(t, Options{MaxUploadBytes: 2048})

	tests := []struct {
		name string
		req  *http.Request
		want int
	}{
		{"non numeric user", httptest.NewRequest(http.MethodGet, "/users/abc/stats", nil), http.StatusBadRequest},
		{"zero user", httptest.NewRequest(http.MethodGet, "/users/0/stats", nil), http.StatusBadRequest},
		{"negative user", httptest.NewRequest(http.MethodDelete, "/users/-3/trips", nil), http.StatusBadRequest},
		{"bad n", httptest.NewRequest(http.MethodGet, "/users/1/top?n=zero", nil), http.StatusBadRequest},
		{"no files", uploadRequest(t, "/users/1/files"), http.StatusBadRequest},
		{"too large", uploadRequest(t, "/users/1/files", file{"big.xlsx", bytes.Repeat([]byte("x"), 8192)}), http.StatusRequestEntityTooLarge},
		{"not multipart", httptest.NewRequest(http.MethodPost, "/users/1/files", strings.NewReader("x")), http.StatusBadRequest},
		{"wrong method", httptest.NewRequest(http.MethodPut, "/users/1/trips", nil), http.StatusMethodNotAllowed},
		{"unknown driver", httptest.NewRequest(http.MethodGet, "/users/1/drivers/nobody", nil), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := serve(srv, tt.req); rr.Code != tt.want {
				t.Errorf("status=%d want %d body=%s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestRateLimitMutatingRequests(t *testing.T) {
	srv := newTestServer(t, Options{RateLimit: 1})

	if rr := serve(srv, httptest.NewRequest(http.MethodDelete, "/users/1/trips", nil)); rr.Code != http.StatusOK {
		t.Fatalf("first delete status=%d", rr.Code)
	}
	rr := serve(srv, httptest.NewRequest(http.MethodDelete, "/users/1/trips", nil))
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("second delete status=%d", rr.Code)
	}
	// Reads are never limited.
	if rr := serve(srv, httptest.NewRequest(http.MethodGet, "/users/1/stats", nil)); rr.Code != http.StatusOK {
		t.Errorf("read after limit status=%d", rr.Code)
	}
}

func TestRequestIDPropagation(t *testing.T) {
	srv := newTestServer(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "/users/1/files", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	if got := serve(srv, req).Header().Get(requestIDHeader); got != "abc-123" {
		t.Errorf("request id = %q, want caller supplied id", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/users/1/files", nil)
	req.Header.Set(requestIDHeader, "bad id <script>")
	if got := serve(srv, req).Header().Get(requestIDHeader); !strings.HasPrefix(got, "req_") {
		t.Errorf("request id = %q, want generated id", got)
	}
}
