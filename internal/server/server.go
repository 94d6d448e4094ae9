package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/komi-kou/meta-ads-dashboard/pkg/alerting"
	"github.com/komi-kou/meta-ads-dashboard/pkg/model"
	"github.com/komi-kou/meta-ads-dashboard/pkg/sender"
	"github.com/komi-kou/meta-ads-dashboard/pkg/storage"
)

// Server exposes the alert state and manual trigger endpoints.
type Server struct {
	storage    storage.Storage
	checker    *alerting.Checker
	sender     *sender.MultiUserSender
	testSender *sender.MultiUserSender
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates the API server. testSender must be built on a bypass
// deduplicator; it backs the manual test-send endpoint only.
func NewServer(store storage.Storage, checker *alerting.Checker, live, testSender *sender.MultiUserSender, logger *slog.Logger) *Server {
	s := &Server{
		storage:    store,
		checker:    checker,
		sender:     live,
		testSender: testSender,
		mux:        http.NewServeMux(),
		logger:     logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/alerts", s.handleAlerts)
	s.mux.HandleFunc("GET /api/v1/alerts/history", s.handleHistory)
	s.mux.HandleFunc("POST /api/v1/check", s.handleCheck)
	s.mux.HandleFunc("POST /api/v1/notifications/test", s.handleTestNotification)
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "user is required", http.StatusBadRequest)
		return
	}

	alerts, err := s.storage.ActiveAlerts(ctx, userID)
	if err != nil {
		s.logger.Error("list active alerts", "user", userID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if alerts == nil {
		alerts = []model.Alert{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(alerts)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "user is required", http.StatusBadRequest)
		return
	}

	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "days must be a positive integer", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	since := time.Now().UTC().AddDate(0, 0, -days)
	alerts, err := s.storage.ListAlerts(ctx, userID, since)
	if err != nil {
		s.logger.Error("list alert history", "user", userID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if alerts == nil {
		alerts = []model.Alert{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(alerts)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
	defer cancel()

	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, "user is required", http.StatusBadRequest)
		return
	}

	alerts, err := s.checker.CheckUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		s.logger.Error("check user", "user", userID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if alerts == nil {
		alerts = []model.Alert{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(alerts)
}

type testNotificationRequest struct {
	UserID string `json:"user_id"`
	Type   string `json:"type"`
}

// handleTestNotification sends one notification outside the hourly gate so
// users can verify their Chatwork channel.
func (s *Server) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req testNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	user, err := s.storage.GetUser(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		s.logger.Error("load user", "user", req.UserID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	switch model.NotificationType(req.Type) {
	case model.NotificationDaily:
		err = s.testSender.SendDailyReport(ctx, user)
	case model.NotificationUpdate:
		err = s.testSender.SendUpdateNotification(ctx, user)
	case model.NotificationAlert:
		err = s.sender.SendAlertNotification(ctx, user, true)
	case model.NotificationToken:
		err = s.testSender.SendTokenReminder(ctx, user, true)
	default:
		http.Error(w, "unknown notification type", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.logger.Error("test notification", "user", req.UserID, "type", req.Type, "error", err)
		http.Error(w, "send failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "sent", "type": req.Type})
}
