package http

import (
	"net/http"
	"strconv"
	"time"

	"milklog/internal/auth"
	"milklog/internal/core"
)

type monthResponse struct {
	Year     int            `json:"year"`
	Month    int            `json:"month"`
	Editable bool           `json:"editable"`
	Days     map[string]int `json:"days"`
	Summary  core.Summary   `json:"summary"`
}

type successResponse struct {
	Success bool `json:"success"`
}

// handleMonth answers GET /api/month?year=Y&month=M with the derived ledger.
// Missing parameters default to the current calendar month.
func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	id, _ := auth.IdentityFromContext(r.Context())

	now := time.Now()
	month := core.Month{Year: now.Year(), Month: int(now.Month())}
	if v := r.URL.Query().Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "Invalid year")
			return
		}
		month.Year = y
	}
	if v := r.URL.Query().Get("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "Invalid month")
			return
		}
		month.Month = m
	}

	ledger, err := s.ledger.GetMonth(r.Context(), id.UserID, month)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, monthResponse{
		Year:     ledger.Month.Year,
		Month:    ledger.Month.Month,
		Editable: ledger.Editable,
		Days:     ledger.Days,
		Summary:  ledger.Summary,
	})
}

// handleDay answers POST /api/day {date, quantity}. Quantity zero removes the
// entry; writes outside the current month come back 403.
func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	id, _ := auth.IdentityFromContext(r.Context())

	var req struct {
		Date     string `json:"date"`
		Quantity int    `json:"quantity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	day, err := core.ParseDate(req.Date)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if err := s.ledger.SetDay(r.Context(), id.UserID, day, req.Quantity); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// handlePrice answers POST /api/price {price} for the configured scope.
func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	id, _ := auth.IdentityFromContext(r.Context())

	var req struct {
		Price int64 `json:"price"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.ledger.SetPrice(r.Context(), id.UserID, req.Price); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// handleReminder reads or updates the per-user reminder settings.
func (s *Server) handleReminder(w http.ResponseWriter, r *http.Request) {
	if !s.remindersEnabled {
		writeJSONError(w, http.StatusNotFound, "Reminders disabled")
		return
	}
	id, _ := auth.IdentityFromContext(r.Context())

	switch r.Method {
	case http.MethodGet:
		enabled, timeOfDay, err := s.ledger.Reminder(r.Context(), id.UserID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Enabled bool   `json:"enabled"`
			Time    string `json:"time"`
		}{Enabled: enabled, Time: timeOfDay})

	case http.MethodPost:
		var req struct {
			Enabled bool   `json:"enabled"`
			Time    string `json:"time"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if err := s.ledger.SetReminder(r.Context(), id.UserID, req.Enabled, req.Time); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, successResponse{Success: true})

	default:
		w.Header().Set("Allow", "GET, POST")
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
