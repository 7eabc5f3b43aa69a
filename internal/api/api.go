// Package api exposes the HTTP surface: the hub webhook plus the admin
// endpoints for accounts, feeds, targets and subscriptions.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"yt_relay/internal/model"
	"yt_relay/internal/storage"
	"yt_relay/internal/webhook"
)

// Subscriber triggers a hub handshake for a channel.
type Subscriber interface {
	Subscribe(ctx context.Context, channelID string) error
}

// ChannelResolver maps a channel URL to its channel ID.
type ChannelResolver interface {
	ResolveChannelID(ctx context.Context, rawURL string) (string, error)
}

// Server wires the HTTP routes.
type Server struct {
	store      storage.Storage
	subscriber Subscriber
	resolver   ChannelResolver
	webhook    *webhook.Handler
	log        *slog.Logger
}

// New creates a Server.
func New(store storage.Storage, subscriber Subscriber, resolver ChannelResolver, wh *webhook.Handler, log *slog.Logger) *Server {
	return &Server{
		store:      store,
		subscriber: subscriber,
		resolver:   resolver,
		webhook:    wh,
		log:        log,
	}
}

// Routes returns the route table.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /webhook", s.webhook.Challenge)
	mux.HandleFunc("POST /webhook", s.webhook.Delivery)

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /accounts", s.handleCreateAccount)
	mux.HandleFunc("GET /accounts", s.handleListAccounts)
	mux.HandleFunc("GET /accounts/{id}", s.handleGetAccount)
	mux.HandleFunc("DELETE /accounts/{id}", s.handleDeleteAccount)
	mux.HandleFunc("POST /accounts/{id}/feeds", s.handleAddFeed)
	mux.HandleFunc("DELETE /accounts/{id}/feeds", s.handleRemoveFeed)
	mux.HandleFunc("POST /accounts/{id}/targets", s.handleAddTarget)
	mux.HandleFunc("DELETE /accounts/{id}/targets", s.handleRemoveTarget)

	mux.HandleFunc("GET /subscriptions", s.handleListSubscriptions)
	mux.HandleFunc("POST /subscribe", s.handleSubscribe)
	mux.HandleFunc("POST /resolve-channel", s.handleResolveChannel)
	mux.HandleFunc("POST /ignored-channels", s.handleIgnoreChannel)

	return mux
}

type accountResponse struct {
	ID      int64          `json:"id"`
	Name    string         `json:"name"`
	Feeds   []feedResponse `json:"feeds"`
	Targets []int64        `json:"targets"`
	Created time.Time      `json:"createdAt"`
}

type feedResponse struct {
	ChannelID        string     `json:"channelId"`
	Status           string     `json:"subStatus,omitempty"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
	LastRenewedAt    *time.Time `json:"lastRenewedAt,omitempty"`
	ErrorMessage     string     `json:"errorMessage,omitempty"`
	Health           string     `json:"health"`
	HoursUntilExpiry float64    `json:"hoursUntilExpiry"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "name required")
		return
	}

	account := model.Account{Name: req.Name}
	if err := s.store.CreateAccount(r.Context(), &account); err != nil {
		s.internalError(w, "create account", err)
		return
	}
	s.writeJSON(w, http.StatusOK, accountResponse{
		ID:      account.ID,
		Name:    account.Name,
		Feeds:   []feedResponse{},
		Targets: []int64{},
		Created: account.CreatedAt,
	})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.ListAccounts(r.Context())
	if err != nil {
		s.internalError(w, "list accounts", err)
		return
	}

	now := time.Now().UTC()
	result := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		resp, err := s.accountResponse(r.Context(), &a, now)
		if err != nil {
			s.internalError(w, "assemble account", err)
			return
		}
		result = append(result, *resp)
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	account, ok := s.accountFromPath(w, r)
	if !ok {
		return
	}
	resp, err := s.accountResponse(r.Context(), account, time.Now().UTC())
	if err != nil {
		s.internalError(w, "assemble account", err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	account, ok := s.accountFromPath(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteAccount(r.Context(), account.ID); err != nil {
		s.internalError(w, "delete account", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleAddFeed(w http.ResponseWriter, r *http.Request) {
	account, ok := s.accountFromPath(w, r)
	if !ok {
		return
	}
	var req struct {
		ChannelID string `json:"channelId"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.ChannelID == "" {
		s.writeError(w, http.StatusBadRequest, "channelId required")
		return
	}

	if err := s.store.AddFeed(r.Context(), account.ID, req.ChannelID); err != nil {
		s.internalError(w, "add feed", err)
		return
	}

	// Handshake runs synchronously so the caller sees the outcome; a
	// failure is persisted and retried by the renewal sweep either way.
	subscribeErr := s.subscriber.Subscribe(r.Context(), req.ChannelID)

	resp, err := s.accountResponse(r.Context(), account, time.Now().UTC())
	if err != nil {
		s.internalError(w, "assemble account", err)
		return
	}
	out := map[string]any{"account": resp, "subscribed": subscribeErr == nil}
	if subscribeErr != nil {
		out["subscribeError"] = subscribeErr.Error()
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRemoveFeed(w http.ResponseWriter, r *http.Request) {
	account, ok := s.accountFromPath(w, r)
	if !ok {
		return
	}
	var req struct {
		ChannelID string `json:"channelId"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.ChannelID == "" {
		s.writeError(w, http.StatusBadRequest, "channelId required")
		return
	}

	err := s.store.RemoveFeed(r.Context(), account.ID, req.ChannelID)
	if errors.Is(err, sql.ErrNoRows) {
		s.writeError(w, http.StatusNotFound, "feed not found for this account")
		return
	}
	if err != nil {
		s.internalError(w, "remove feed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleAddTarget(w http.ResponseWriter, r *http.Request) {
	account, ok := s.accountFromPath(w, r)
	if !ok {
		return
	}
	var req struct {
		ChatID int64 `json:"chatId"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.ChatID == 0 {
		s.writeError(w, http.StatusBadRequest, "chatId required")
		return
	}
	if err := s.store.AddTarget(r.Context(), account.ID, req.ChatID); err != nil {
		s.internalError(w, "add target", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleRemoveTarget(w http.ResponseWriter, r *http.Request) {
	account, ok := s.accountFromPath(w, r)
	if !ok {
		return
	}
	var req struct {
		ChatID int64 `json:"chatId"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}
	err := s.store.RemoveTarget(r.Context(), account.ID, req.ChatID)
	if errors.Is(err, sql.ErrNoRows) {
		s.writeError(w, http.StatusNotFound, "target not found for this account")
		return
	}
	if err != nil {
		s.internalError(w, "remove target", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.store.ListSubscriptions(r.Context())
	if err != nil {
		s.internalError(w, "list subscriptions", err)
		return
	}
	type subResponse struct {
		ChannelID       string     `json:"channelId"`
		Topic           string     `json:"topic"`
		Status          string     `json:"status"`
		ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
		LastRenewedAt   *time.Time `json:"lastRenewedAt,omitempty"`
		RenewalAttempts int        `json:"renewalAttempts"`
		ErrorMessage    string     `json:"errorMessage,omitempty"`
	}
	result := make([]subResponse, 0, len(subs))
	for _, sub := range subs {
		result = append(result, subResponse{
			ChannelID:       sub.ChannelID,
			Topic:           sub.Topic,
			Status:          string(sub.Status),
			ExpiresAt:       sub.ExpiresAt,
			LastRenewedAt:   sub.LastRenewedAt,
			RenewalAttempts: sub.RenewalAttempts,
			ErrorMessage:    sub.ErrorMessage,
		})
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleSubscribe is the manual renewal path; it runs the exact same
// handshake as the automatic sweep.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChannelID string `json:"channelId"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.ChannelID == "" {
		s.writeError(w, http.StatusBadRequest, "channelId required")
		return
	}
	if err := s.subscriber.Subscribe(r.Context(), req.ChannelID); err != nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleResolveChannel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url required")
		return
	}
	channelID, err := s.resolver.ResolveChannelID(r.Context(), req.URL)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"channelId": channelID})
}

func (s *Server) handleIgnoreChannel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChannelID string `json:"channelId"`
		Reason    string `json:"reason"`
	}
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.ChannelID == "" {
		s.writeError(w, http.StatusBadRequest, "channelId required")
		return
	}
	if err := s.store.IgnoreChannel(r.Context(), req.ChannelID, req.Reason); err != nil {
		s.internalError(w, "ignore channel", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) accountFromPath(w http.ResponseWriter, r *http.Request) (*model.Account, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid account id")
		return nil, false
	}
	account, err := s.store.GetAccount(r.Context(), id)
	if err != nil {
		s.internalError(w, "get account", err)
		return nil, false
	}
	if account == nil {
		s.writeError(w, http.StatusNotFound, "account not found")
		return nil, false
	}
	return account, true
}

func (s *Server) accountResponse(ctx context.Context, a *model.Account, now time.Time) (*accountResponse, error) {
	health, err := s.store.FeedHealth(ctx, a.ID, now)
	if err != nil {
		return nil, err
	}
	targets, err := s.store.ListTargets(ctx, a.ID)
	if err != nil {
		return nil, err
	}

	feeds := make([]feedResponse, 0, len(health))
	for _, h := range health {
		feeds = append(feeds, feedResponse{
			ChannelID:        h.ChannelID,
			Status:           string(h.Status),
			ExpiresAt:        h.ExpiresAt,
			LastRenewedAt:    h.LastRenewedAt,
			ErrorMessage:     h.ErrorMessage,
			Health:           h.Health,
			HoursUntilExpiry: h.HoursUntilExpiry,
		})
	}
	if targets == nil {
		targets = []int64{}
	}
	return &accountResponse{
		ID:      a.ID,
		Name:    a.Name,
		Feeds:   feeds,
		Targets: targets,
		Created: a.CreatedAt,
	}, nil
}

func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.log.Error(op, "error", err)
	s.writeError(w, http.StatusInternalServerError, "internal error")
}
