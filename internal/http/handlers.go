package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/summary"
)

var startTime = time.Now()

type healthResponse struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Uptime: time.Since(startTime).Round(time.Second).String(),
	})
}

// handleReady reports ready once the settings collection can be read.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	checks := map[string]string{"ledger": "healthy"}
	if _, err := s.reader.Settings(ctx); err != nil {
		checks["ledger"] = "unhealthy: " + err.Error()
		status, code = "degraded", http.StatusServiceUnavailable
	}
	respondJSON(w, code, healthResponse{
		Status: status,
		Uptime: time.Since(startTime).Round(time.Second).String(),
		Checks: checks,
	})
}

type categoriesResponse struct {
	Expense []core.Category `json:"expense"`
	Income  []core.Category `json:"income"`
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, categoriesResponse{
		Expense: core.ExpenseCategories(),
		Income:  core.IncomeCategories(),
	})
}

// handleTransactions lists transactions, optionally scoped to ?month=YYYY-MM
// and filtered by ?kind=, ?category= and ?q=. With ?group=day the result is
// grouped by date, newest first.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	criteria := summary.Criteria{
		CategoryID: sanitizeInput(q.Get("category")),
		Query:      sanitizeInput(q.Get("q")),
	}
	if v := sanitizeInput(q.Get("kind")); v != "" {
		kind, err := core.ParseKind(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		criteria.Kind = kind
	}

	txs, err := s.reader.Transactions(r.Context())
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if v := sanitizeInput(q.Get("month")); v != "" {
		month, err := core.ParseMonth(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		txs = summary.TransactionsForMonth(txs, month)
	}
	txs = summary.Filter(txs, criteria)

	if strings.EqualFold(q.Get("group"), "day") {
		respondJSON(w, http.StatusOK, summary.GroupByDate(txs))
		return
	}
	respondJSON(w, http.StatusOK, txs)
}

func (s *Server) handleBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := s.reader.Budgets(r.Context())
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if v := sanitizeInput(r.URL.Query().Get("month")); v != "" {
		month, err := core.ParseMonth(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		budgets = summary.BudgetsForMonth(budgets, month)
	}
	respondJSON(w, http.StatusOK, budgets)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.reader.Settings(r.Context())
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

// handleSummary serves /api/summary/{month}; "current" means the month of now.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	month, err := s.parseMonth(chi.URLParam(r, "month"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	sum, err := s.reader.MonthlySummary(r.Context(), month)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

func (s *Server) parseMonth(v string) (core.Month, error) {
	v = sanitizeInput(v)
	if v == "" || strings.EqualFold(v, "current") {
		return core.CurrentMonth(s.now()), nil
	}
	return core.ParseMonth(v)
}

func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed", log.FieldError, err)
	}
	respondError(w, code, err.Error())
}
