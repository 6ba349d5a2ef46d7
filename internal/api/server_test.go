package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/inventory-core/internal/infrastructure/config"
	"github.com/nerrad567/inventory-core/internal/infrastructure/database"
	"github.com/nerrad567/inventory-core/internal/infrastructure/logging"
	"github.com/nerrad567/inventory-core/internal/inventory"
	_ "github.com/nerrad567/inventory-core/migrations" // registers the schema
)

const validBody = `{
	"hostname": "LAPTOP01",
	"ip_address": "192.168.1.10",
	"logged_in_user": "CORP\\alice",
	"laptop_serial": "ABC123",
	"drives": [{"model": "Samsung SSD 980", "serial_number": "S64D", "device_id": "\\\\.\\PHYSICALDRIVE0"}],
	"timestamp_utc": "2025-12-26T10:30:00Z"
}`

// testServer creates a Server backed by a real database in a temp directory.
func testServer(t *testing.T) (*Server, *database.DB) {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "inventory.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	log := logging.Discard()
	svc := inventory.NewService(inventory.NewEngine(db.Writer()), log, false)

	srv, err := New(Deps{
		Config:   testServerConfig(),
		Logger:   log,
		Ingester: svc,
		Reader:   inventory.NewReader(db.Reader(), log),
		Database: db,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv, db
}

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		Host:     "127.0.0.1",
		Port:     0,
		Timeouts: config.ServerTimeoutConfig{Read: 5, Write: 5, Idle: 5},
	}
}

// stubServer creates a Server around stub dependencies.
func stubServer(t *testing.T, ing Ingester, reader DeviceReader, health HealthChecker) *Server {
	t.Helper()

	srv, err := New(Deps{
		Config:   testServerConfig(),
		Logger:   logging.Discard(),
		Ingester: ing,
		Reader:   reader,
		Database: health,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

type stubIngester struct {
	err   error
	panic bool
}

func (s stubIngester) Ingest(context.Context, inventory.CheckIn) (inventory.Receipt, error) {
	if s.panic {
		panic("boom")
	}
	return inventory.Receipt{}, s.err
}

type stubReader struct {
	err error
}

func (s stubReader) ListDevices(context.Context) ([]inventory.DeviceState, error) {
	return nil, s.err
}

func (s stubReader) GetDevice(context.Context, string) (*inventory.DeviceState, error) {
	return nil, s.err
}

func (s stubReader) History(context.Context, string) ([]inventory.HistoryRecord, error) {
	return nil, s.err
}

// serialRecorder captures the serials handed to the reader.
type serialRecorder struct {
	mu      sync.Mutex
	serials []string
}

func (s *serialRecorder) record(serial string) {
	s.mu.Lock()
	s.serials = append(s.serials, serial)
	s.mu.Unlock()
}

func (s *serialRecorder) ListDevices(context.Context) ([]inventory.DeviceState, error) {
	return []inventory.DeviceState{}, nil
}

func (s *serialRecorder) GetDevice(_ context.Context, serial string) (*inventory.DeviceState, error) {
	s.record(serial)
	return &inventory.DeviceState{LaptopSerial: serial}, nil
}

func (s *serialRecorder) History(_ context.Context, serial string) ([]inventory.HistoryRecord, error) {
	s.record(serial)
	return []inventory.HistoryRecord{}, nil
}

type stubHealth struct {
	err error
}

func (s stubHealth) HealthCheck(context.Context) error {
	return s.err
}

type stubLink bool

func (s stubLink) IsConnected() bool {
	return bool(s)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) Error {
	t.Helper()

	var e Error
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("error body is not JSON: %v (%s)", err, w.Body.String())
	}
	return e
}

// ─── Construction ──────────────────────────────────────────────────

func TestNew_RequiresDependencies(t *testing.T) {
	full := Deps{
		Logger:   logging.Discard(),
		Ingester: stubIngester{},
		Reader:   stubReader{},
		Database: stubHealth{},
	}

	tests := []struct {
		name   string
		modify func(*Deps)
	}{
		{"missing logger", func(d *Deps) { d.Logger = nil }},
		{"missing ingester", func(d *Deps) { d.Ingester = nil }},
		{"missing reader", func(d *Deps) { d.Reader = nil }},
		{"missing database", func(d *Deps) { d.Database = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := full
			tt.modify(&deps)
			if _, err := New(deps); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

// ─── Health ────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding health: %v", err)
	}
	if resp.Status != "ok" || resp.Database != "ok" || resp.Version != "test" {
		t.Errorf("health = %+v", resp)
	}
	if resp.MQTT != "" || resp.InfluxDB != "" {
		t.Errorf("optional links reported without being configured: %+v", resp)
	}
}

func TestHealth_DatabaseDown(t *testing.T) {
	srv := stubServer(t, stubIngester{}, stubReader{}, stubHealth{err: errors.New("disk gone")})

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	if strings.Contains(w.Body.String(), "disk gone") {
		t.Error("health response leaks the storage error")
	}
}

func TestHealth_OptionalLinks(t *testing.T) {
	srv, err := New(Deps{
		Logger:   logging.Discard(),
		Ingester: stubIngester{},
		Reader:   stubReader{},
		Database: stubHealth{},
		MQTT:     stubLink(true),
		InfluxDB: stubLink(false),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	w := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health", "")

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding health: %v", err)
	}
	if resp.MQTT != "connected" || resp.InfluxDB != "disconnected" {
		t.Errorf("links = mqtt:%q influxdb:%q", resp.MQTT, resp.InfluxDB)
	}
}

// ─── Check-in ──────────────────────────────────────────────────────

func TestCheckIn_Accepted(t *testing.T) {
	for _, path := range []string{"/api/v1/checkin", "/checkin"} {
		t.Run(path, func(t *testing.T) {
			srv, db := testServer(t)

			w := do(t, srv.buildRouter(), http.MethodPost, path, validBody)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 (%s)", w.Code, w.Body.String())
			}

			var resp CheckInResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decoding response: %v", err)
			}
			if resp.Status != "accepted" {
				t.Errorf("status = %q, want accepted", resp.Status)
			}

			var n int
			if err := db.Reader().QueryRow("SELECT COUNT(*) FROM checkins WHERE laptop_serial = 'ABC123'").Scan(&n); err != nil {
				t.Fatalf("counting history: %v", err)
			}
			if n != 1 {
				t.Errorf("history rows = %d, want 1", n)
			}
		})
	}
}

func TestCheckIn_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "malformed json",
			body:       `{"hostname":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeBadRequest,
		},
		{
			name:       "invalid hostname",
			body:       strings.Replace(validBody, `"LAPTOP01"`, `"-bad-"`, 1),
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeValidation,
			wantMsg:    msgInvalidInput,
		},
		{
			name:       "invalid ip",
			body:       strings.Replace(validBody, `"192.168.1.10"`, `"not-an-ip"`, 1),
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeValidation,
			wantMsg:    msgInvalidInput,
		},
		{
			name:       "oversized body",
			body:       `{"hostname":"` + strings.Repeat("a", maxRequestBodySize) + `"}`,
			wantStatus: http.StatusRequestEntityTooLarge,
			wantCode:   ErrCodeTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServer(t)

			w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/checkin", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}

			e := decodeError(t, w)
			if e.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", e.Code, tt.wantCode)
			}
			if tt.wantMsg != "" && e.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", e.Message, tt.wantMsg)
			}
			for _, leak := range []string{"hostname", "ip_address"} {
				if tt.wantMsg != "" && strings.Contains(w.Body.String(), leak) {
					t.Errorf("response leaks field name %q: %s", leak, w.Body.String())
				}
			}
		})
	}
}

func TestCheckIn_PersistenceFailure(t *testing.T) {
	ing := stubIngester{err: &inventory.PersistenceError{
		Serial: "ABC123",
		Op:     inventory.OpCommit,
		Err:    errors.New("database is locked"),
	}}
	srv := stubServer(t, ing, stubReader{}, stubHealth{})

	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/checkin", validBody)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if e := decodeError(t, w); e.Message != msgInternalError {
		t.Errorf("message = %q, want %q", e.Message, msgInternalError)
	}
	if strings.Contains(w.Body.String(), "locked") {
		t.Error("response leaks the storage error")
	}
}

func TestCheckIn_PanicRecovered(t *testing.T) {
	srv := stubServer(t, stubIngester{panic: true}, stubReader{}, stubHealth{})

	w := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/checkin", validBody)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// ─── Devices ───────────────────────────────────────────────────────

func TestListDevices(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := do(t, router, http.MethodGet, "/api/v1/devices", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"devices":[]`) {
		t.Errorf("empty list body = %s, want devices:[]", w.Body.String())
	}

	older := strings.Replace(validBody, `"ABC123"`, `"OLDER1"`, 1)
	older = strings.Replace(older, "2025-12-26T10:30:00Z", "2025-12-20T10:30:00Z", 1)
	for _, body := range []string{older, validBody} {
		if w := do(t, router, http.MethodPost, "/api/v1/checkin", body); w.Code != http.StatusOK {
			t.Fatalf("check-in status = %d (%s)", w.Code, w.Body.String())
		}
	}

	w = do(t, router, http.MethodGet, "/api/v1/devices", "")

	var resp struct {
		Devices []inventory.DeviceState `json:"devices"`
		Count   int                     `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if resp.Count != 2 || len(resp.Devices) != 2 {
		t.Fatalf("count = %d, devices = %d, want 2", resp.Count, len(resp.Devices))
	}
	if resp.Devices[0].LaptopSerial != "ABC123" || resp.Devices[1].LaptopSerial != "OLDER1" {
		t.Errorf("order = [%s %s], want most recently seen first",
			resp.Devices[0].LaptopSerial, resp.Devices[1].LaptopSerial)
	}
}

func TestGetDevice(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	if w := do(t, router, http.MethodGet, "/api/v1/devices/ABC123", ""); w.Code != http.StatusNotFound {
		t.Fatalf("unknown device status = %d, want 404", w.Code)
	}

	renamed := strings.Replace(validBody, `"LAPTOP01"`, `"LAPTOP01-RENAMED"`, 1)
	for _, body := range []string{validBody, renamed} {
		if w := do(t, router, http.MethodPost, "/api/v1/checkin", body); w.Code != http.StatusOK {
			t.Fatalf("check-in status = %d (%s)", w.Code, w.Body.String())
		}
	}

	w := do(t, router, http.MethodGet, "/api/v1/devices/ABC123", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp DeviceDetailResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding device: %v", err)
	}
	if resp.Device == nil || resp.Device.Hostname != "LAPTOP01-RENAMED" {
		t.Fatalf("device = %+v, want renamed hostname", resp.Device)
	}
	if len(resp.DriveSerials) != 1 || resp.DriveSerials[0] != "S64D" {
		t.Errorf("drive serials = %v, want [S64D]", resp.DriveSerials)
	}
	if len(resp.History) != 2 {
		t.Fatalf("history = %d records, want 2", len(resp.History))
	}
	if resp.History[0].Hostname != "LAPTOP01-RENAMED" || resp.History[1].Hostname != "LAPTOP01" {
		t.Errorf("history order = [%s %s]", resp.History[0].Hostname, resp.History[1].Hostname)
	}
}

func TestDeviceHistory(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	w := do(t, router, http.MethodGet, "/api/v1/devices/UNKNOWN/history", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"history":[]`) {
		t.Errorf("body = %s, want empty history", w.Body.String())
	}

	do(t, router, http.MethodPost, "/api/v1/checkin", validBody)

	w = do(t, router, http.MethodGet, "/api/v1/devices/ABC123/history", "")
	if !strings.Contains(w.Body.String(), `"count":1`) {
		t.Errorf("body = %s, want one record", w.Body.String())
	}
}

func TestDevices_SerialEscaping(t *testing.T) {
	tests := []struct {
		name    string
		segment string
		want    string
	}{
		{"plain", "ABC123", "ABC123"},
		{"escaped percent before hex", "A%2541", "A%41"},
		{"trailing percent", "AB%25", "AB%"},
		{"escaped slash", "A%2FB", "A/B"},
		{"escaped space", "A%20B", "A B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, suffix := range []string{"", "/history"} {
				rec := &serialRecorder{}
				srv := stubServer(t, stubIngester{}, rec, stubHealth{})

				path := "/api/v1/devices/" + tt.segment + suffix
				w := do(t, srv.buildRouter(), http.MethodGet, path, "")
				if w.Code != http.StatusOK {
					t.Fatalf("%s status = %d, want 200 (%s)", path, w.Code, w.Body.String())
				}
				if len(rec.serials) == 0 {
					t.Fatalf("%s did not reach the reader", path)
				}
				for _, got := range rec.serials {
					if got != tt.want {
						t.Errorf("%s looked up %q, want %q", path, got, tt.want)
					}
				}
			}
		})
	}
}

func TestDevices_ReaderFailure(t *testing.T) {
	srv := stubServer(t, stubIngester{}, stubReader{err: errors.New("no such table: laptops")}, stubHealth{})
	router := srv.buildRouter()

	for _, path := range []string{"/api/v1/devices", "/api/v1/devices/ABC123", "/api/v1/devices/ABC123/history"} {
		w := do(t, router, http.MethodGet, path, "")
		if w.Code != http.StatusInternalServerError {
			t.Errorf("%s status = %d, want 500", path, w.Code)
		}
		if strings.Contains(w.Body.String(), "laptops") {
			t.Errorf("%s leaks the storage error", path)
		}
	}
}

// ─── Middleware ────────────────────────────────────────────────────

func TestRequestID(t *testing.T) {
	srv := stubServer(t, stubIngester{}, stubReader{}, stubHealth{})
	router := srv.buildRouter()

	w := do(t, router, http.MethodGet, "/api/v1/health", "")
	if id := w.Header().Get("X-Request-ID"); len(id) != 36 {
		t.Errorf("generated X-Request-ID = %q, want a UUID", id)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "agent-supplied")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if id := rec.Header().Get("X-Request-ID"); id != "agent-supplied" {
		t.Errorf("X-Request-ID = %q, want agent-supplied", id)
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "test", &buf)

	srv, err := New(Deps{
		Logger:   log,
		Ingester: stubIngester{},
		Reader:   stubReader{},
		Database: stubHealth{},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	do(t, srv.buildRouter(), http.MethodGet, "/api/v1/devices/ABC123/history", "")

	out := buf.String()
	for _, want := range []string{`"msg":"http request"`, `"status":200`, `"path":"/api/v1/devices/ABC123/history"`, `"request_id"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %s: %s", want, out)
		}
	}
}

// ─── Lifecycle ─────────────────────────────────────────────────────

func TestStartClose(t *testing.T) {
	srv, _ := testServer(t)

	if srv.Addr() != "" {
		t.Errorf("Addr() before Start = %q, want empty", srv.Addr())
	}

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if srv.server.ReadTimeout != 5*time.Second || srv.server.WriteTimeout != 5*time.Second || srv.server.IdleTimeout != 5*time.Second {
		t.Errorf("timeouts = %v/%v/%v, want 5s each from config",
			srv.server.ReadTimeout, srv.server.WriteTimeout, srv.server.IdleTimeout)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	resp.Body.Close() //nolint:errcheck // Test cleanup
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	select {
	case err := <-srv.Err():
		t.Errorf("Err() fired after clean close: %v", err)
	default:
	}
}

func TestStart_PortInUse(t *testing.T) {
	first, _ := testServer(t)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer first.Close() //nolint:errcheck // Test cleanup

	_, portStr, err := net.SplitHostPort(first.Addr())
	if err != nil {
		t.Fatalf("SplitHostPort() error = %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parsing port: %v", err)
	}

	second, _ := testServer(t)
	second.cfg.Port = port

	if err := second.Start(context.Background()); err == nil {
		second.Close() //nolint:errcheck // Test cleanup
		t.Error("Start() on a bound port error = nil, want error")
	}
}

func TestClose_NotStarted(t *testing.T) {
	srv := stubServer(t, stubIngester{}, stubReader{}, stubHealth{})
	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
