// internal/infra/httpapi/server.go
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chore_notifier/internal/app"
	"chore_notifier/internal/domain/household"
	"chore_notifier/internal/domain/notification"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Server exposes the engine to the surrounding application: the protected
// trigger endpoint for the external periodic caller, the read-only status
// endpoint and the preferences read/update endpoints.
type Server struct {
	reminders     *app.ReminderService
	dispatch      *app.DispatchService
	prefs         *app.PreferenceService
	messages      notification.MessageRepository
	triggerSecret string
	batchSize     int
	logger        *logrus.Logger
}

func NewServer(
	reminders *app.ReminderService,
	dispatch *app.DispatchService,
	prefs *app.PreferenceService,
	messages notification.MessageRepository,
	triggerSecret string,
	batchSize int,
	logger *logrus.Logger,
) *Server {
	return &Server{
		reminders:     reminders,
		dispatch:      dispatch,
		prefs:         prefs,
		messages:      messages,
		triggerSecret: triggerSecret,
		batchSize:     batchSize,
		logger:        logger,
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.With(s.requireSecret).Post("/sweep", s.handleSweep)
		r.With(s.requireSecret).Post("/events", s.handleEvent)
		r.Get("/status", s.handleStatus)
		r.Get("/messages/upcoming", s.handleUpcoming)
		r.Get("/messages/{providerMessageID}/status", s.handleMessageStatus)
		r.Get("/reminders/stats", s.handleReminderStats)
		r.Route("/preferences/{familyID}/{userID}", func(r chi.Router) {
			r.Get("/", s.handleGetPreferences)
			r.Patch("/", s.handleUpdatePreferences)
		})
	})
	return r
}

// requireSecret guards the trigger endpoint with the shared secret supplied
// out-of-band. Constant-time comparison, no detail in the rejection.
func (s *Server) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		supplied := r.Header.Get("X-Trigger-Secret")
		if supplied == "" {
			supplied = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(s.triggerSecret)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid or missing trigger secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// sweepResponse is what the external periodic caller gets back.
type sweepResponse struct {
	Sweep     *app.SweepResult    `json:"sweep"`
	Dispatch  *app.DispatchResult `json:"dispatch"`
	ElapsedMS int64               `json:"elapsedMs"`
}

// handleSweep runs one full cycle: reminder generation followed by
// due-message dispatch. Store-level failures surface here so the external
// caller can alert.
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	sweep, err := s.reminders.RunSweep(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Trigger sweep failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dispatch, err := s.dispatch.DispatchDue(r.Context(), s.batchSize)
	if err != nil {
		s.logger.WithError(err).Error("Trigger dispatch failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, sweepResponse{
		Sweep:     sweep,
		Dispatch:  dispatch,
		ElapsedMS: time.Since(start).Milliseconds(),
	})
}

// handleEvent lets the surrounding application report a chore status change;
// the notification fans out to the rest of the family.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChoreID string            `json:"choreId"`
		Kind    notification.Kind `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed event: "+err.Error())
		return
	}
	if req.ChoreID == "" {
		writeError(w, http.StatusBadRequest, "choreId is required")
		return
	}
	switch req.Kind {
	case notification.KindChoreCompleted, notification.KindChoreVerified:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("kind %q is not a status-change event", req.Kind))
		return
	}

	enqueued, err := s.reminders.BroadcastEvent(r.Context(), req.ChoreID, req.Kind)
	if err != nil {
		if err == household.ErrChoreNotFound {
			writeError(w, http.StatusNotFound, "chore not found")
			return
		}
		s.logger.WithError(err).Error("Event broadcast failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"enqueued": enqueued})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.dispatch.ServiceStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	stats, err := s.dispatch.DeliveryStats(r.Context(), r.URL.Query().Get("range"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"channels": status.Channels,
		"queue":    status.Queue,
		"delivery": stats,
	})
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		hours = n
	}
	msgs, err := s.messages.Upcoming(r.Context(), time.Now(), time.Duration(hours)*time.Hour)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	type upcomingItem struct {
		ID          string                 `json:"id"`
		Kind        notification.Kind      `json:"kind"`
		RecipientID string                 `json:"recipientId"`
		ScheduledAt time.Time              `json:"scheduledAt"`
		Channels    []notification.Channel `json:"channels"`
	}
	items := make([]upcomingItem, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, upcomingItem{
			ID: m.ID, Kind: m.Kind, RecipientID: m.RecipientID,
			ScheduledAt: m.ScheduledAt, Channels: m.Channels,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleMessageStatus(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "providerMessageID")
	status, err := s.dispatch.MessageStatus(r.Context(), providerID)
	if err != nil {
		if err == notification.ErrDeliveryNotFound {
			writeError(w, http.StatusNotFound, "no delivery record for that provider message id")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status.Status,
		"errorCode": status.ErrorCode,
		"timestamp": status.Timestamp,
	})
}

func (s *Server) handleReminderStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.reminders.Stats(r.Context(), r.URL.Query().Get("familyId"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if stats == nil {
		stats = []notification.StageStatusCount{}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	p, err := s.prefs.Get(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "familyID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var update notification.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "malformed preferences update: "+err.Error())
		return
	}
	p, err := s.prefs.Update(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "familyID"), update)
	if err != nil {
		var verr *notification.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusUnprocessableEntity, verr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
