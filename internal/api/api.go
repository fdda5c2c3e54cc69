/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the HTTP surface: playlist CRUD, on-demand refresh,
// and run status.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/skald/internal/audit"
	"github.com/friendsincode/skald/internal/auth"
	"github.com/friendsincode/skald/internal/eventbus"
	"github.com/friendsincode/skald/internal/logbuffer"
	"github.com/friendsincode/skald/internal/models"
	"github.com/friendsincode/skald/internal/refresh"
	"github.com/friendsincode/skald/internal/version"
)

// Refresher triggers playlist evaluation. Implemented by refresh.Service.
type Refresher interface {
	RefreshPlaylist(ctx context.Context, playlistID string) (*models.RefreshRun, error)
	LatestRun(ctx context.Context, playlistID string) (*models.RefreshRun, error)
}

// Publisher emits playlist lifecycle events. Implemented by eventbus.Bus.
type Publisher interface {
	Publish(subject string, payload any) error
}

// API exposes HTTP handlers.
type API struct {
	db        *gorm.DB
	jwtSecret []byte
	refresher Refresher
	bus       Publisher
	audit     *audit.Service
	logs      *logbuffer.Buffer
	updates   *version.Checker
	logger    zerolog.Logger
}

// New creates the API router wrapper. logs and updates may be nil; their
// endpoints then serve empty results.
func New(db *gorm.DB, jwtSecret []byte, refresher Refresher, bus Publisher, auditSvc *audit.Service, logs *logbuffer.Buffer, updates *version.Checker, logger zerolog.Logger) *API {
	return &API{
		db:        db,
		jwtSecret: jwtSecret,
		refresher: refresher,
		bus:       bus,
		audit:     auditSvc,
		logs:      logs,
		updates:   updates,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts all API routes on the router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Get("/version", a.handleVersion)

		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.jwtSecret))

			pr.Get("/audit", a.handleAuditList)
			pr.Get("/logs", a.handleLogsList)

			pr.Route("/playlists", func(r chi.Router) {
				r.Get("/", a.handlePlaylistsList)
				r.Post("/", a.handlePlaylistCreate)

				r.Route("/{playlistID}", func(r chi.Router) {
					r.Get("/", a.handlePlaylistGet)
					r.Put("/", a.handlePlaylistUpdate)
					r.Delete("/", a.handlePlaylistDelete)
					r.Post("/refresh", a.handlePlaylistRefresh)
					r.Get("/runs/latest", a.handleLatestRun)
				})
			})
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleVersion(w http.ResponseWriter, r *http.Request) {
	if a.updates == nil {
		writeJSON(w, http.StatusOK, version.UpdateInfo{CurrentVersion: version.Version})
		return
	}
	writeJSON(w, http.StatusOK, a.updates.Info())
}

func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := a.audit.Recent(r.Context(), r.URL.Query().Get("target_id"), limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("list audit entries")
		writeError(w, http.StatusInternalServerError, "database_error")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) handleLogsList(w http.ResponseWriter, r *http.Request) {
	if a.logs == nil {
		writeJSON(w, http.StatusOK, []logbuffer.Entry{})
		return
	}

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = 200
	}
	params := logbuffer.QueryParams{
		Level:      q.Get("level"),
		Component:  q.Get("component"),
		PlaylistID: q.Get("playlist_id"),
		Search:     q.Get("q"),
		Limit:      limit,
		Descending: q.Get("order") != "asc",
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		params.Since = t
	}
	writeJSON(w, http.StatusOK, a.logs.Query(params))
}

// actor returns the authenticated user id for audit records.
func actor(r *http.Request) string {
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		return claims.UserID
	}
	return ""
}

func (a *API) handlePlaylistsList(w http.ResponseWriter, r *http.Request) {
	var lists []models.SmartPlaylist
	if err := a.db.WithContext(r.Context()).Order("name").Find(&lists).Error; err != nil {
		a.logger.Error().Err(err).Msg("list playlists")
		writeError(w, http.StatusInternalServerError, "database_error")
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

func (a *API) handlePlaylistGet(w http.ResponseWriter, r *http.Request) {
	list, ok := a.loadPlaylist(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// playlistRequest is the mutable subset of a playlist definition.
type playlistRequest struct {
	Name           string              `json:"name"`
	OwnerUserID    string              `json:"owner_user_id"`
	MediaKinds     []models.MediaKind  `json:"media_kinds"`
	RuleDocument   map[string]any      `json:"rule_document"`
	OrderDocument  []models.OrderEntry `json:"order_document"`
	MaxItems       int                 `json:"max_items"`
	MaxPlayMinutes int                 `json:"max_play_minutes"`
	Enabled        *bool               `json:"enabled"`
}

func (a *API) handlePlaylistCreate(w http.ResponseWriter, r *http.Request) {
	var req playlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name_required")
		return
	}

	list := models.SmartPlaylist{
		ID:             uuid.NewString(),
		Name:           req.Name,
		OwnerUserID:    req.OwnerUserID,
		MediaKinds:     req.MediaKinds,
		RuleDocument:   req.RuleDocument,
		OrderDocument:  req.OrderDocument,
		MaxItems:       req.MaxItems,
		MaxPlayMinutes: req.MaxPlayMinutes,
		Members:        []string{},
		Enabled:        true,
	}
	if req.Enabled != nil {
		list.Enabled = *req.Enabled
	}

	if err := a.db.WithContext(r.Context()).Create(&list).Error; err != nil {
		a.logger.Error().Err(err).Msg("create playlist")
		writeError(w, http.StatusInternalServerError, "database_error")
		return
	}
	a.audit.Record(r.Context(), actor(r), audit.ActionPlaylistCreate, list.ID, list.Name)
	writeJSON(w, http.StatusCreated, list)
}

func (a *API) handlePlaylistUpdate(w http.ResponseWriter, r *http.Request) {
	list, ok := a.loadPlaylist(w, r)
	if !ok {
		return
	}

	var req playlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	if req.Name != "" {
		list.Name = req.Name
	}
	list.OwnerUserID = req.OwnerUserID
	list.MediaKinds = req.MediaKinds
	list.RuleDocument = req.RuleDocument
	list.OrderDocument = req.OrderDocument
	list.MaxItems = req.MaxItems
	list.MaxPlayMinutes = req.MaxPlayMinutes
	if req.Enabled != nil {
		list.Enabled = *req.Enabled
	}

	if err := a.db.WithContext(r.Context()).Save(list).Error; err != nil {
		a.logger.Error().Err(err).Msg("update playlist")
		writeError(w, http.StatusInternalServerError, "database_error")
		return
	}
	a.audit.Record(r.Context(), actor(r), audit.ActionPlaylistUpdate, list.ID, list.Name)
	if err := a.bus.Publish(eventbus.SubjectPlaylistUpdated, eventbus.PlaylistUpdated{
		PlaylistID: list.ID,
		Name:       list.Name,
		Actor:      actor(r),
	}); err != nil {
		a.logger.Warn().Err(err).Str("playlist_id", list.ID).Msg("publish playlist updated")
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handlePlaylistDelete(w http.ResponseWriter, r *http.Request) {
	list, ok := a.loadPlaylist(w, r)
	if !ok {
		return
	}

	if err := a.db.WithContext(r.Context()).Delete(list).Error; err != nil {
		a.logger.Error().Err(err).Msg("delete playlist")
		writeError(w, http.StatusInternalServerError, "database_error")
		return
	}
	a.audit.Record(r.Context(), actor(r), audit.ActionPlaylistDelete, list.ID, list.Name)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePlaylistRefresh(w http.ResponseWriter, r *http.Request) {
	playlistID := chi.URLParam(r, "playlistID")

	run, err := a.refresher.RefreshPlaylist(r.Context(), playlistID)
	switch {
	case errors.Is(err, refresh.ErrPlaylistNotFound):
		writeError(w, http.StatusNotFound, "playlist_not_found")
		return
	case errors.Is(err, refresh.ErrRefreshInFlight):
		writeError(w, http.StatusConflict, "refresh_in_flight")
		return
	case err != nil:
		// The failed run still carries diagnostics for the caller.
		if run != nil {
			writeJSON(w, http.StatusUnprocessableEntity, run)
			return
		}
		a.logger.Error().Err(err).Str("playlist_id", playlistID).Msg("refresh playlist")
		writeError(w, http.StatusInternalServerError, "refresh_failed")
		return
	}
	a.audit.Record(r.Context(), actor(r), audit.ActionPlaylistRefresh, playlistID, run.ID)
	writeJSON(w, http.StatusOK, run)
}

func (a *API) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	playlistID := chi.URLParam(r, "playlistID")

	run, err := a.refresher.LatestRun(r.Context(), playlistID)
	if err != nil {
		a.logger.Error().Err(err).Str("playlist_id", playlistID).Msg("latest run")
		writeError(w, http.StatusInternalServerError, "database_error")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "no_runs")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (a *API) loadPlaylist(w http.ResponseWriter, r *http.Request) (*models.SmartPlaylist, bool) {
	playlistID := chi.URLParam(r, "playlistID")

	var list models.SmartPlaylist
	err := a.db.WithContext(r.Context()).First(&list, "id = ?", playlistID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "playlist_not_found")
		return nil, false
	}
	if err != nil {
		a.logger.Error().Err(err).Str("playlist_id", playlistID).Msg("load playlist")
		writeError(w, http.StatusInternalServerError, "database_error")
		return nil, false
	}
	return &list, true
}

// IssueToken mints a short-lived token, for operational tooling.
func (a *API) IssueToken(userID string, roles []string, ttl time.Duration) (string, error) {
	return auth.Issue(a.jwtSecret, auth.Claims{UserID: userID, Roles: roles}, ttl)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
