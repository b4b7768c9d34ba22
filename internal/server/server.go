package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/kioskmon/internal/model"
	"github.com/t77yq/kioskmon/internal/monitor"
	"github.com/t77yq/kioskmon/internal/notification"
)

const maxRequestBody = 64 << 10

// SubscriptionRegistry stores push subscriptions
type SubscriptionRegistry interface {
	Add(sub model.Subscription)
	Remove(sub model.Subscription) bool
	Len() int
}

// Poller runs a poll cycle on demand
type Poller interface {
	Trigger(ctx context.Context) (monitor.Cycle, error)
	State() monitor.State
}

// BannerFeed lists recent in-app notifications
type BannerFeed interface {
	Recent() []model.Notification
}

// Options wires the server to the pipeline. Status, Subscriptions,
// Dispatcher and Thresholds are required.
type Options struct {
	Status        monitor.SnapshotSource
	Subscriptions SubscriptionRegistry
	Dispatcher    monitor.Dispatcher
	Thresholds    *monitor.ThresholdRegistry
	Poller        Poller
	Banners       BannerFeed
	Latest        *LatestUpdate

	// VAPIDPublicKey is served to browsers that want to subscribe
	VAPIDPublicKey string

	// NotifySecret, when set, requires a valid X-Signature-256 on /api/notify/*
	NotifySecret string

	StatusTimeout time.Duration
}

// Server exposes the kiosk HTTP API
type Server struct {
	opts   Options
	mux    *http.ServeMux
	logger *zap.Logger
	now    func() time.Time
}

// NewServer creates an API server
func NewServer(opts Options, logger *zap.Logger) *Server {
	if opts.StatusTimeout <= 0 {
		opts.StatusTimeout = 10 * time.Second
	}
	if opts.Latest == nil {
		opts.Latest = &LatestUpdate{}
	}
	s := &Server{
		opts:   opts,
		mux:    http.NewServeMux(),
		logger: logger.Named("server"),
		now:    time.Now,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/system/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/subscribe", s.handleSubscribe)
	s.mux.HandleFunc("POST /api/unsubscribe", s.handleUnsubscribe)
	s.mux.HandleFunc("POST /api/notify/error", s.handleNotifyError)
	s.mux.HandleFunc("POST /api/notify/resource", s.handleNotifyResource)
	s.mux.HandleFunc("GET /api/thresholds", s.handleThresholds)
	s.mux.HandleFunc("PUT /api/thresholds/{resource}", s.handleSetThreshold)
	s.mux.HandleFunc("POST /api/poll", s.handlePoll)
	s.mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	s.mux.HandleFunc("GET /api/vapid-public-key", s.handleVAPIDKey)
	s.mux.HandleFunc("GET /api/banners", s.handleBanners)
}

// Handler returns the HTTP handler for this server
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Latest returns the dashboard update cache, usable as a poll loop observer
func (s *Server) Latest() *LatestUpdate {
	return s.opts.Latest
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"subscriptions": s.opts.Subscriptions.Len(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.StatusTimeout)
	defer cancel()

	snapshot, err := s.opts.Status.Fetch(ctx)
	if err != nil {
		s.logger.Error("Failed to read status", zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to retrieve status")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.decodeSubscription(w, r)
	if !ok {
		return
	}
	s.opts.Subscriptions.Add(sub)
	writeJSON(w, http.StatusCreated, struct{}{})
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.decodeSubscription(w, r)
	if !ok {
		return
	}
	removed := s.opts.Subscriptions.Remove(sub)
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (s *Server) decodeSubscription(w http.ResponseWriter, r *http.Request) (model.Subscription, bool) {
	var sub model.Subscription
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid subscription")
		return sub, false
	}
	if sub.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "subscription endpoint required")
		return sub, false
	}
	return sub, true
}

type errorNotice struct {
	Source    string     `json:"source"`
	Message   string     `json:"message"`
	Timestamp *time.Time `json:"timestamp"`
}

func (s *Server) handleNotifyError(w http.ResponseWriter, r *http.Request) {
	var req errorNotice
	if !s.decodeNotice(w, r, &req) {
		return
	}

	alert := model.Alert{
		Kind:      model.AlertKindError,
		Resource:  model.Resource(req.Source),
		Message:   req.Message,
		Timestamp: s.timestamp(req.Timestamp),
	}
	s.dispatch(r.Context(), alert)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type resourceNotice struct {
	Resource  string        `json:"resource"`
	Level     model.Reading `json:"level"`
	Message   string        `json:"message"`
	Timestamp *time.Time    `json:"timestamp"`
}

func (s *Server) handleNotifyResource(w http.ResponseWriter, r *http.Request) {
	var req resourceNotice
	if !s.decodeNotice(w, r, &req) {
		return
	}

	alert := model.Alert{
		Kind:      model.AlertKindResource,
		Resource:  model.Resource(req.Resource),
		Level:     req.Level,
		Message:   req.Message,
		Timestamp: s.timestamp(req.Timestamp),
	}
	s.dispatch(r.Context(), alert)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) decodeNotice(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return false
	}
	if s.opts.NotifySecret != "" &&
		!notification.VerifySignature(body, s.opts.NotifySecret, r.Header.Get(notification.SignatureHeader)) {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) timestamp(ts *time.Time) time.Time {
	if ts == nil || ts.IsZero() {
		return s.now()
	}
	return *ts
}

// dispatch delivers without tying delivery to the client connection
func (s *Server) dispatch(ctx context.Context, alert model.Alert) {
	report := s.opts.Dispatcher.Dispatch(context.WithoutCancel(ctx), alert)
	if err := report.Err(); err != nil {
		s.logger.Warn("Notification partially delivered",
			zap.String("resource", string(alert.Resource)),
			zap.Error(err))
	}
}

func (s *Server) handleThresholds(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Thresholds.Thresholds())
}

func (s *Server) handleSetThreshold(w http.ResponseWriter, r *http.Request) {
	resource, _ := model.ParseResource(r.PathValue("resource"))

	var req struct {
		Value *float64 `json:"value"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil || req.Value == nil {
		writeError(w, http.StatusBadRequest, "numeric value required")
		return
	}

	if err := s.opts.Thresholds.Validate(resource, *req.Value); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.opts.Thresholds.Set(resource, *req.Value)
	writeJSON(w, http.StatusOK, map[string]any{"resource": resource, "value": *req.Value})
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	if s.opts.Poller == nil {
		writeError(w, http.StatusServiceUnavailable, "polling disabled")
		return
	}

	cycle, err := s.opts.Poller.Trigger(context.WithoutCancel(r.Context()))
	if errors.Is(err, monitor.ErrPollInProgress) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]any{
		"data":     cycle.Snapshot,
		"alerts":   cycle.Alerts,
		"duration": cycle.Duration.String(),
	}
	if cycle.Alerts == nil {
		resp["alerts"] = []model.Alert{}
	}
	if cycle.Err != nil {
		resp["error"] = cycle.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	update, ok := s.opts.Latest.Get()
	if !ok {
		writeError(w, http.StatusNotFound, "no data yet")
		return
	}
	resp := map[string]any{
		"data":   update.Snapshot,
		"alerts": update.Alerts,
		"at":     update.At,
	}
	if s.opts.Poller != nil {
		resp["state"] = s.opts.Poller.State().String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVAPIDKey(w http.ResponseWriter, _ *http.Request) {
	if s.opts.VAPIDPublicKey == "" {
		writeError(w, http.StatusNotFound, "push not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": s.opts.VAPIDPublicKey})
}

func (s *Server) handleBanners(w http.ResponseWriter, _ *http.Request) {
	banners := []model.Notification{}
	if s.opts.Banners != nil {
		banners = s.opts.Banners.Recent()
	}
	writeJSON(w, http.StatusOK, banners)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
