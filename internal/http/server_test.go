package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"milklog/internal/auth"
	"milklog/internal/config"
	"milklog/internal/core"
	"milklog/internal/services"
	"milklog/internal/storage"
)

func june15() time.Time {
	return time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
}

func newTestServer(t *testing.T, authMode string) *Server {
	t.Helper()

	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "milklog.db"))
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	cfg := &config.Config{
		AuthMode:   authMode,
		PriceScope: config.PriceScopeMonthly,
		Reminders:  true,
		PINSecret:  "test-secret",
		SessionTTL: time.Hour,
	}

	ledger := services.NewLedgerService(repo, nil, cfg.PriceScope, june15)

	var authSvc *auth.Service
	if authMode == config.AuthModePIN {
		authSvc = auth.NewService(repo, cfg.PINSecret, cfg.SessionTTL, june15)
	}

	s := NewServer(":0", ledger, authSvc, cfg)
	t.Cleanup(func() { s.rateLimiter.stop() })
	return s
}

func doJSON(t *testing.T, s *Server, method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestMonthEndToEnd(t *testing.T) {
	s := newTestServer(t, config.AuthModeNone)

	if rec := doJSON(t, s, http.MethodPost, "/api/price", `{"price":80}`); rec.Code != http.StatusOK {
		t.Fatalf("POST /api/price = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, s, http.MethodPost, "/api/day", `{"date":"2024-06-05","quantity":1}`); rec.Code != http.StatusOK {
		t.Fatalf("POST /api/day = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, s, http.MethodPost, "/api/day", `{"date":"2024-06-10","quantity":2}`); rec.Code != http.StatusOK {
		t.Fatalf("POST /api/day = %d: %s", rec.Code, rec.Body.String())
	}

	rec := doJSON(t, s, http.MethodGet, "/api/month?year=2024&month=6", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/month = %d: %s", rec.Code, rec.Body.String())
	}

	var resp monthResponse
	decodeBody(t, rec, &resp)

	if !resp.Editable {
		t.Error("June 2024 should be editable on June 15th")
	}
	if resp.Days["2024-06-05"] != 1 || resp.Days["2024-06-10"] != 2 {
		t.Errorf("days = %v", resp.Days)
	}
	want := core.Summary{MilkDays: 2, TotalQuantity: 3, Price: 80, TotalBill: 240}
	if resp.Summary != want {
		t.Errorf("summary = %+v, want %+v", resp.Summary, want)
	}
}

func TestDayWriteOutsideCurrentMonth(t *testing.T) {
	s := newTestServer(t, config.AuthModeNone)

	rec := doJSON(t, s, http.MethodPost, "/api/day", `{"date":"2024-05-10","quantity":1}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	var resp errorResponse
	decodeBody(t, rec, &resp)
	if resp.Error != "Read only" {
		t.Errorf("error = %q, want %q", resp.Error, "Read only")
	}
}

func TestDayValidation(t *testing.T) {
	s := newTestServer(t, config.AuthModeNone)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed date", `{"date":"2024-6-5","quantity":1}`, http.StatusBadRequest},
		{"impossible date", `{"date":"2024-06-32","quantity":1}`, http.StatusBadRequest},
		{"negative quantity", `{"date":"2024-06-05","quantity":-1}`, http.StatusBadRequest},
		{"unknown field", `{"date":"2024-06-05","quantity":1,"extra":1}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodPost, "/api/day", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestNegativePriceRejected(t *testing.T) {
	s := newTestServer(t, config.AuthModeNone)

	rec := doJSON(t, s, http.MethodPost, "/api/price", `{"price":-5}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestPastMonthReadable(t *testing.T) {
	s := newTestServer(t, config.AuthModeNone)

	rec := doJSON(t, s, http.MethodGet, "/api/month?year=2024&month=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET past month = %d", rec.Code)
	}
	var resp monthResponse
	decodeBody(t, rec, &resp)
	if resp.Editable {
		t.Error("May 2024 must not be editable on June 15th")
	}
}

func TestToggleForm(t *testing.T) {
	s := newTestServer(t, config.AuthModeNone)

	post := func(day string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/toggle", strings.NewReader("day="+day))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		s.Handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := post("5"); rec.Code != http.StatusSeeOther {
		t.Fatalf("POST /toggle = %d: %s", rec.Code, rec.Body.String())
	}

	rec := doJSON(t, s, http.MethodGet, "/api/month?year=2024&month=6", "")
	var resp monthResponse
	decodeBody(t, rec, &resp)
	if resp.Days["2024-06-05"] != 1 {
		t.Fatalf("day not marked after toggle: %v", resp.Days)
	}

	// Toggling again removes the entry.
	if rec := post("5"); rec.Code != http.StatusSeeOther {
		t.Fatalf("second POST /toggle = %d", rec.Code)
	}
	rec = doJSON(t, s, http.MethodGet, "/api/month?year=2024&month=6", "")
	resp = monthResponse{}
	decodeBody(t, rec, &resp)
	if _, ok := resp.Days["2024-06-05"]; ok {
		t.Fatalf("day still marked after second toggle: %v", resp.Days)
	}

	// Day numbers past the end of the month are rejected.
	if rec := post("31"); rec.Code != http.StatusBadRequest {
		t.Errorf("POST /toggle day=31 in June = %d, want 400", rec.Code)
	}
}

func TestReminderSettings(t *testing.T) {
	s := newTestServer(t, config.AuthModeNone)

	if rec := doJSON(t, s, http.MethodPost, "/api/reminder", `{"enabled":true,"time":"06:30"}`); rec.Code != http.StatusOK {
		t.Fatalf("POST /api/reminder = %d: %s", rec.Code, rec.Body.String())
	}

	rec := doJSON(t, s, http.MethodGet, "/api/reminder", "")
	var resp struct {
		Enabled bool   `json:"enabled"`
		Time    string `json:"time"`
	}
	decodeBody(t, rec, &resp)
	if !resp.Enabled || resp.Time != "06:30" {
		t.Errorf("reminder = %+v", resp)
	}

	if rec := doJSON(t, s, http.MethodPost, "/api/reminder", `{"enabled":true,"time":"25:99"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid time accepted: %d", rec.Code)
	}
}

func TestPINAuthFlow(t *testing.T) {
	s := newTestServer(t, config.AuthModePIN)

	// No session: API answers 401, dashboard redirects to the login page.
	if rec := doJSON(t, s, http.MethodGet, "/api/month?year=2024&month=6", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated /api/month = %d, want 401", rec.Code)
	}
	if rec := doJSON(t, s, http.MethodGet, "/dashboard", ""); rec.Code != http.StatusSeeOther {
		t.Fatalf("unauthenticated /dashboard = %d, want 303", rec.Code)
	}

	// Register and capture the session cookie.
	rec := doJSON(t, s, http.MethodPost, "/auth", `{"mode":"register","name":"Ada","pin":"1234"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("register = %d: %s", rec.Code, rec.Body.String())
	}
	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			session = c
		}
	}
	if session == nil || session.Value == "" {
		t.Fatal("register did not set a session cookie")
	}
	if !session.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}

	// The session grants API access.
	if rec := doJSON(t, s, http.MethodGet, "/api/month?year=2024&month=6", "", session); rec.Code != http.StatusOK {
		t.Fatalf("authenticated /api/month = %d: %s", rec.Code, rec.Body.String())
	}

	// Login with the same PIN issues a fresh session.
	rec = doJSON(t, s, http.MethodPost, "/auth", `{"mode":"login","name":"Ada","pin":"1234"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d: %s", rec.Code, rec.Body.String())
	}

	// Wrong PIN is rejected without disclosing which part failed.
	rec = doJSON(t, s, http.MethodPost, "/auth", `{"mode":"login","name":"Ada","pin":"9999"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong pin = %d, want 401", rec.Code)
	}
}

func TestPINAuthDuplicates(t *testing.T) {
	s := newTestServer(t, config.AuthModePIN)

	if rec := doJSON(t, s, http.MethodPost, "/auth", `{"mode":"register","name":"Ada","pin":"1234"}`); rec.Code != http.StatusOK {
		t.Fatalf("register = %d: %s", rec.Code, rec.Body.String())
	}

	if rec := doJSON(t, s, http.MethodPost, "/auth", `{"mode":"register","name":"Ada","pin":"5678"}`); rec.Code != http.StatusConflict {
		t.Errorf("duplicate name = %d, want 409", rec.Code)
	}
	if rec := doJSON(t, s, http.MethodPost, "/auth", `{"mode":"register","name":"Grace","pin":"1234"}`); rec.Code != http.StatusConflict {
		t.Errorf("duplicate pin = %d, want 409", rec.Code)
	}
	if rec := doJSON(t, s, http.MethodPost, "/auth", `{"mode":"register","name":"Grace","pin":"12a4"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed pin = %d, want 400", rec.Code)
	}
}

func TestPINUsersAreIsolated(t *testing.T) {
	s := newTestServer(t, config.AuthModePIN)

	register := func(name, pin string) *http.Cookie {
		rec := doJSON(t, s, http.MethodPost, "/auth", `{"mode":"register","name":"`+name+`","pin":"`+pin+`"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("register %s = %d: %s", name, rec.Code, rec.Body.String())
		}
		for _, c := range rec.Result().Cookies() {
			if c.Name == sessionCookie {
				return c
			}
		}
		t.Fatalf("no session cookie for %s", name)
		return nil
	}

	ada := register("Ada", "1234")
	grace := register("Grace", "5678")

	if rec := doJSON(t, s, http.MethodPost, "/api/day", `{"date":"2024-06-05","quantity":2}`, ada); rec.Code != http.StatusOK {
		t.Fatalf("POST /api/day = %d: %s", rec.Code, rec.Body.String())
	}

	rec := doJSON(t, s, http.MethodGet, "/api/month?year=2024&month=6", "", grace)
	var resp monthResponse
	decodeBody(t, rec, &resp)
	if len(resp.Days) != 0 {
		t.Errorf("another user's entries leaked: %v", resp.Days)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	s := newTestServer(t, config.AuthModePIN)

	rec := doJSON(t, s, http.MethodPost, "/auth", `{"mode":"register","name":"Ada","pin":"1234"}`)
	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			session = c
		}
	}
	if session == nil {
		t.Fatal("no session cookie")
	}

	if rec := doJSON(t, s, http.MethodGet, "/logout", "", session); rec.Code != http.StatusSeeOther {
		t.Fatalf("GET /logout = %d", rec.Code)
	}
	if rec := doJSON(t, s, http.MethodGet, "/api/month?year=2024&month=6", "", session); rec.Code != http.StatusUnauthorized {
		t.Errorf("session still valid after logout: %d", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, config.AuthModeNone)

	for _, path := range []string{"/healthz", "/readyz"} {
		if rec := doJSON(t, s, http.MethodGet, path, ""); rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, rec.Code)
		}
	}
}
