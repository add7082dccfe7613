package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"milklog/internal/auth"
	"milklog/internal/config"
	"milklog/internal/core"
)

func (s *Server) renderTemplate(w http.ResponseWriter, r *http.Request, name string, data any) {
	if s.templates == nil {
		slog.ErrorContext(r.Context(), "Templates not loaded", "url", r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		slog.ErrorContext(r.Context(), "Template execution failed",
			"template", name,
			"error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleSplash(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	_, err := s.identity(r)
	s.renderTemplate(w, r, "splash.html", struct {
		AuthRequired bool
	}{AuthRequired: err != nil})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	now := time.Now()

	s.renderTemplate(w, r, "dashboard.html", struct {
		UserName         string
		Year             int
		Month            int
		MonthLabel       string
		AuthEnabled      bool
		RemindersEnabled bool
	}{
		UserName:         id.Name,
		Year:             now.Year(),
		Month:            int(now.Month()),
		MonthLabel:       now.Format("January 2006"),
		AuthEnabled:      s.authMode == config.AuthModePIN,
		RemindersEnabled: s.remindersEnabled,
	})
}

// handleAuth serves the login page and processes register/login submissions.
// JSON bodies get JSON answers; form posts get redirects.
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	if s.authMode != config.AuthModePIN {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.renderTemplate(w, r, "auth.html", struct{ Error string }{})

	case http.MethodPost:
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			s.handleAuthJSON(w, r)
			return
		}
		s.handleAuthForm(w, r)

	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAuthJSON(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
		Name string `json:"name"`
		PIN  string `json:"pin"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, token, err := s.authenticate(r, req.Mode, req.Name, req.PIN)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	s.setSessionCookie(w, token, s.sessionTTL)
	writeJSON(w, http.StatusOK, struct {
		Success bool   `json:"success"`
		Name    string `json:"name"`
	}{Success: true, Name: user.Name})
}

func (s *Server) handleAuthForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		s.renderTemplate(w, r, "auth.html", struct{ Error string }{Error: "Invalid form submission"})
		return
	}

	mode := r.Form.Get("mode")
	name := sanitizeInput(r.Form.Get("name"))
	pin := strings.TrimSpace(r.Form.Get("pin"))

	_, token, err := s.authenticate(r, mode, name, pin)
	if err != nil {
		s.renderTemplate(w, r, "auth.html", struct{ Error string }{Error: authErrorMessage(err)})
		return
	}

	s.setSessionCookie(w, token, s.sessionTTL)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *Server) authenticate(r *http.Request, mode, name, pin string) (*core.User, string, error) {
	switch mode {
	case "register":
		return s.auth.Register(r.Context(), name, pin)
	default:
		return s.auth.Login(r.Context(), name, pin)
	}
}

func authErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.authMode == config.AuthModePIN && s.auth != nil {
		if cookie, err := r.Cookie(sessionCookie); err == nil {
			if err := s.auth.Logout(r.Context(), cookie.Value); err != nil {
				slog.ErrorContext(r.Context(), "Logout failed", "error", err)
			}
		}
	}
	s.clearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleToggle flips day N of the current month between one bottle and none.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	day, err := strconv.Atoi(strings.TrimSpace(r.Form.Get("day")))
	if err != nil {
		http.Error(w, "invalid day", http.StatusBadRequest)
		return
	}

	id, _ := auth.IdentityFromContext(r.Context())
	if err := s.ledger.ToggleDay(r.Context(), id.UserID, day); err != nil {
		writeServiceError(w, r, err)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// handleUpdatePrice sets the price for the configured scope from a form post.
func (s *Server) handleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	price, err := strconv.ParseInt(strings.TrimSpace(r.Form.Get("price")), 10, 64)
	if err != nil {
		http.Error(w, "invalid price", http.StatusBadRequest)
		return
	}

	id, _ := auth.IdentityFromContext(r.Context())
	if err := s.ledger.SetPrice(r.Context(), id.UserID, price); err != nil {
		writeServiceError(w, r, err)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}
