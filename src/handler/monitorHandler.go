package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"limitbot/src/executors"
)

// MonitorControl is the monitor surface exposed over HTTP.
type MonitorControl interface {
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
	LastCheckTime() time.Time
	MonitoredTokens(ctx context.Context) ([]string, error)
	CheckOrders(ctx context.Context) (executors.CycleResult, error)
}

type monitorStatus struct {
	Running   bool       `json:"running"`
	LastCheck *time.Time `json:"last_check,omitempty"`
	Tokens    []string   `json:"tokens"`
}

type cycleResponse struct {
	executors.CycleResult
	Error string `json:"error,omitempty"`
}

func MonitorStatusHandler(m MonitorControl) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, statusOf(r.Context(), m))
	}
}

func statusOf(ctx context.Context, m MonitorControl) monitorStatus {
	status := monitorStatus{Running: m.IsRunning(), Tokens: []string{}}
	if last := m.LastCheckTime(); !last.IsZero() {
		status.LastCheck = &last
	}
	if tokens, err := m.MonitoredTokens(ctx); err == nil && tokens != nil {
		status.Tokens = tokens
	}
	return status
}

// StartMonitorHandler starts the monitor. Starting a running monitor is not
// an error for API callers.
func StartMonitorHandler(m MonitorControl) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := m.Start(r.Context()); err != nil && !errors.Is(err, executors.ErrAlreadyRunning) {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, statusOf(r.Context(), m))
	}
}

func StopMonitorHandler(m MonitorControl) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.Stop()
		writeJSON(w, http.StatusOK, statusOf(r.Context(), m))
	}
}

// CheckNowHandler runs one cycle synchronously and returns its report.
func CheckNowHandler(m MonitorControl) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := m.CheckOrders(r.Context())
		if errors.Is(err, executors.ErrCycleInProgress) {
			writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
			return
		}

		out := cycleResponse{CycleResult: res}
		if err != nil {
			out.Error = err.Error()
		}
		writeJSON(w, http.StatusOK, out)
	}
}
