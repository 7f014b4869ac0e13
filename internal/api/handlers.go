package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"cryptobot/internal/backtest"
	"cryptobot/internal/domain"
	"cryptobot/internal/report"
	"cryptobot/internal/store"
)

const maxBodyBytes = 1 << 20

// RegisterRoutes registers all API routes on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/v1/strategies", s.handleStrategies)
	mux.HandleFunc("POST /api/v1/backtests", s.handleRunBacktest)
	mux.HandleFunc("GET /api/v1/backtests", s.handleListBacktests)
	mux.HandleFunc("GET /api/v1/backtests/{id}", s.handleGetBacktest)
	mux.HandleFunc("GET /api/v1/backtests/{id}/trades.csv", s.handleTradesCSV)
	mux.HandleFunc("POST /api/v1/portfolios", s.handleRunPortfolio)
}

// Handler returns an http.Handler with CORS and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return s.logRequests(corsMiddleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrStrategyNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidRange),
		errors.Is(err, domain.ErrInvalidParams),
		errors.Is(err, domain.ErrInvalidConfig),
		errors.Is(err, backtest.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.log.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decoding body: %w", backtest.ErrInvalidRequest, err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "dataSource": s.svc.DataSource()})
}

func (s *Server) handleStrategies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Strategies())
}

func (s *Server) handleRunBacktest(w http.ResponseWriter, r *http.Request) {
	var req backtest.Request
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	run, err := s.svc.RunBacktest(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

func (s *Server) handleRunPortfolio(w http.ResponseWriter, r *http.Request) {
	var req backtest.PortfolioRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	run, err := s.svc.RunPortfolio(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

func (s *Server) handleListBacktests(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.svc.ListRuns(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if runs == nil {
		runs = []store.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetBacktest(w http.ResponseWriter, r *http.Request) {
	run, err := s.svc.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleTradesCSV(w http.ResponseWriter, r *http.Request) {
	run, err := s.svc.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", run.ID+"-trades.csv"))
	if err := report.WriteTradesCSV(w, run.Result.Trades); err != nil {
		s.log.Error("writing trades csv", "id", run.ID, "error", err)
	}
}
