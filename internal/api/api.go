/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api is the chi REST surface over the traffic engine: log
// lifecycle, clock templates, catalog, voice tracks, and the websocket
// event feed. Handlers translate service sentinels to HTTP in one place
// and leave domain rules to the services.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn_traffic/internal/analytics"
	"github.com/friendsincode/muninn_traffic/internal/audit"
	"github.com/friendsincode/muninn_traffic/internal/auth"
	"github.com/friendsincode/muninn_traffic/internal/catalog"
	"github.com/friendsincode/muninn_traffic/internal/clock"
	"github.com/friendsincode/muninn_traffic/internal/dailylog"
	"github.com/friendsincode/muninn_traffic/internal/events"
	"github.com/friendsincode/muninn_traffic/internal/integrity"
	"github.com/friendsincode/muninn_traffic/internal/logbuffer"
	"github.com/friendsincode/muninn_traffic/internal/models"
	"github.com/friendsincode/muninn_traffic/internal/publish"
	"github.com/friendsincode/muninn_traffic/internal/voicetrack"
	ws "nhooyr.io/websocket"
)

// API exposes HTTP handlers.
type API struct {
	db         *gorm.DB
	jwtSecret  []byte
	logs       *dailylog.Service
	clocks     *clock.Service
	vt         *voicetrack.Manager
	publisher  *publish.Publisher
	stats      *analytics.Service
	auditSvc   *audit.Service
	webhookAPI *WebhookAPI
	integrity  *integrity.Service
	bus        *events.Bus
	logBuffer  *logbuffer.Buffer
	logger     zerolog.Logger
}

// New creates the API router wrapper. publisher, auditSvc, bus, and
// logBuffer may be nil; the routes they back then answer 503.
func New(db *gorm.DB, jwtSecret []byte, logs *dailylog.Service, clocks *clock.Service, vt *voicetrack.Manager, publisher *publish.Publisher, stats *analytics.Service, auditSvc *audit.Service, bus *events.Bus, logBuf *logbuffer.Buffer, logger zerolog.Logger) *API {
	return &API{
		db:        db,
		jwtSecret: jwtSecret,
		logs:      logs,
		clocks:    clocks,
		vt:        vt,
		publisher: publisher,
		stats:     stats,
		auditSvc:  auditSvc,
		bus:       bus,
		logBuffer: logBuf,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// SetWebhookAPI sets the webhook management handler.
func (a *API) SetWebhookAPI(webhookAPI *WebhookAPI) {
	a.webhookAPI = webhookAPI
}

// SetIntegrity sets the consistency scanner behind the diagnostics
// routes; without it they answer 503.
func (a *API) SetIntegrity(svc *integrity.Service) {
	a.integrity = svc
}

// Routes mounts API routes on the provided router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(pr chi.Router) {
			pr.Use(a.authMiddleware())

			pr.Route("/stations", func(r chi.Router) {
				r.Get("/", a.handleStationsList)
				r.With(auth.RequireRole(models.RoleAdmin)).Post("/", a.handleStationsCreate)
				r.Route("/{stationID}", func(r chi.Router) {
					r.Get("/", a.handleStationsGet)
					r.With(auth.RequireRole(models.RoleAdmin)).Patch("/", a.handleStationsUpdate)
					r.Route("/apikeys", func(kr chi.Router) {
						kr.Use(auth.RequireRole(models.RoleAdmin))
						kr.Get("/", a.handleAPIKeysList)
						kr.Post("/", a.handleAPIKeysCreate)
						kr.Post("/{keyID}/revoke", a.handleAPIKeyRevoke)
						kr.Delete("/{keyID}", a.handleAPIKeyDelete)
					})
				})
			})

			pr.Route("/content", func(r chi.Router) {
				r.Get("/", a.handleContentList)
				r.With(a.requireTraffic()).Post("/", a.handleContentCreate)
				r.Get("/{contentID}", a.handleContentGet)
				r.With(a.requireTraffic()).Patch("/{contentID}", a.handleContentUpdate)
				r.With(a.requireTraffic()).Delete("/{contentID}", a.handleContentDelete)
			})

			pr.Route("/campaigns", func(r chi.Router) {
				r.Get("/", a.handleCampaignsList)
				r.With(a.requireTraffic()).Post("/", a.handleCampaignsCreate)
				r.Get("/{campaignID}", a.handleCampaignsGet)
				r.With(a.requireTraffic()).Patch("/{campaignID}", a.handleCampaignsUpdate)
			})

			pr.Route("/clocks", func(r chi.Router) {
				r.Get("/", a.handleClocksList)
				r.With(a.requireTraffic()).Post("/", a.handleClocksCreate)
				r.With(a.requireTraffic()).Post("/import", a.handleClocksImport)
				r.Get("/export", a.handleClocksExport)
				r.Route("/{clockID}", func(cr chi.Router) {
					cr.Get("/", a.handleClocksGet)
					cr.With(a.requireTraffic()).Put("/", a.handleClocksUpdate)
					cr.With(a.requireTraffic()).Delete("/", a.handleClocksDelete)
				})
			})

			pr.Route("/logs", func(r chi.Router) {
				r.Get("/", a.handleLogByStationDate)
				r.With(a.requireTraffic()).Post("/generate", a.handleLogGenerate)
				r.With(a.requireTraffic()).Post("/asplayed", a.handleAsPlayed)
				r.Route("/{logID}", func(lr chi.Router) {
					lr.Get("/", a.handleLogGet)
					lr.Get("/stats", a.handleLogStats)
					lr.Get("/export", a.handleLogExport)
					lr.Get("/slots", a.handleSlotsList)
					lr.Get("/revisions", a.handleRevisionsList)
					lr.Get("/revisions/{version}", a.handleRevisionGet)
					lr.Group(func(wr chi.Router) {
						wr.Use(a.requireTraffic())
						wr.Post("/elements", a.handleElementInsert)
						wr.Delete("/hours/{hour}/elements/{index}", a.handleElementRemove)
						wr.Post("/hours/{hour}/move", a.handleElementMove)
						wr.Post("/hours/{hour}/reorder", a.handleHourReorder)
						wr.Post("/lock", a.handleLogLock)
						wr.Delete("/lock", a.handleLogUnlock)
						wr.Post("/revert", a.handleLogRevert)
						wr.Post("/publish", a.handlePublishDay)
						wr.Post("/publish/{hour}", a.handlePublishHour)
					})
				})
			})

			pr.Route("/slots", func(r chi.Router) {
				r.Get("/find-fallback", a.handleSlotFindFallback)
				r.With(a.requireTraffic()).Post("/{slotID}/assign", a.handleSlotAssign)
				// Talent link their own recordings; traffic and admin may link for them.
				r.With(auth.RequireRole(models.RoleAdmin, models.RoleTraffic, models.RoleTalent)).
					Post("/{slotID}/link", a.handleSlotLink)
			})

			pr.Route("/voicetracks", func(r chi.Router) {
				r.Get("/", a.handleVoiceTracksList)
				r.With(auth.RequireRole(models.RoleAdmin, models.RoleTraffic, models.RoleTalent)).
					Post("/", a.handleVoiceTrackCreate)
			})

			pr.With(auth.RequireRole(models.RoleAdmin)).Get("/audit", a.handleAuditList)

			pr.Route("/diagnostics", func(dr chi.Router) {
				dr.Use(auth.RequireRole(models.RoleAdmin))
				dr.Get("/logbuffer", a.handleLogBuffer)
				dr.Get("/integrity", a.handleIntegrityScan)
				dr.Post("/integrity/repair", a.handleIntegrityRepair)
			})

			if a.webhookAPI != nil {
				pr.Group(func(wr chi.Router) {
					wr.Use(auth.RequireRole(models.RoleAdmin, models.RoleTraffic))
					a.webhookAPI.RegisterRoutes(wr)
				})
			}

			pr.Get("/events/ws", a.handleEventsWS)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email_and_password_required")
		return
	}

	claims, err := auth.Authenticate(a.db.WithContext(r.Context()), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrBadCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		a.logger.Error().Err(err).Msg("login failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	ttl := 24 * time.Hour
	token, err := auth.Issue(a.jwtSecret, *claims, ttl)
	if err != nil {
		a.logger.Error().Err(err).Msg("token issue failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"user_id":    claims.UserID,
		"roles":      claims.Roles,
		"expires_at": time.Now().Add(ttl).UTC(),
	})
}

// handleEventsWS streams bus events over a websocket. Clients pick event
// types with ?types=log.generated,log.published; the default set covers the
// log lifecycle.
func (a *API) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if a.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "events_not_available")
		return
	}

	ctx := r.Context()
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	eventTypes := parseEventTypes(r.URL.Query().Get("types"))
	if len(eventTypes) == 0 {
		eventTypes = []events.EventType{
			events.EventLogGenerated,
			events.EventLogEdited,
			events.EventLogPublished,
		}
	}

	subscribers := make([]events.Subscriber, 0, len(eventTypes))
	for _, eventType := range eventTypes {
		subscribers = append(subscribers, a.bus.Subscribe(eventType))
	}
	defer func() {
		for i, eventType := range eventTypes {
			a.bus.Unsubscribe(eventType, subscribers[i])
		}
	}()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "context cancelled")
			return
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				conn.Close(ws.StatusInternalError, "write failed")
				return
			}
		default:
			sent := false
			for i, sub := range subscribers {
				select {
				case payload := <-sub:
					if err := a.writeEvent(ctx, conn, eventTypes[i], payload); err != nil {
						a.logger.Error().Err(err).Msg("websocket write failed")
						conn.Close(ws.StatusInternalError, "write failed")
						return
					}
					sent = true
				default:
				}
			}
			if !sent {
				time.Sleep(100 * time.Millisecond)
			}
		}
	}
}

func (a *API) writeEvent(ctx context.Context, conn *ws.Conn, eventType events.EventType, payload events.Payload) error {
	data := map[string]any{
		"type":    eventType,
		"payload": payload,
	}
	bytes, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.Write(ctx, ws.MessageText, bytes)
}

func parseEventTypes(raw string) []events.EventType {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]events.EventType, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, events.EventType(part))
	}
	return out
}

func (a *API) authMiddleware() func(http.Handler) http.Handler {
	return auth.MiddlewareWithJWT(a.db, a.jwtSecret)
}

func (a *API) requireTraffic() func(http.Handler) http.Handler {
	return auth.RequireRole(models.RoleAdmin, models.RoleTraffic)
}

// actorID returns the authenticated principal's id, or "" when absent.
func (a *API) actorID(r *http.Request) string {
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok && claims != nil {
		return claims.UserID
	}
	return ""
}

// publishEvent publishes a bus event stamped with the acting principal, for
// operations whose service layer does not publish on its own.
func (a *API) publishEvent(r *http.Request, eventType events.EventType, data events.Payload) {
	if a.bus == nil {
		return
	}
	payload := events.Payload{}
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok && claims != nil {
		payload["actor"] = claims.UserID
		var user models.User
		if err := a.db.Select("email").First(&user, "id = ?", claims.UserID).Error; err == nil {
			payload["actor_email"] = user.Email
		}
	}
	for k, v := range data {
		payload[k] = v
	}
	a.bus.Publish(eventType, payload)
}

// recordAudit writes an audit row for operations whose service layer does not
// emit a bus event the audit subscriber would pick up.
func (a *API) recordAudit(r *http.Request, action models.AuditAction, resourceType, resourceID, stationID string, details map[string]any) {
	if a.auditSvc == nil {
		return
	}
	entry := models.AuditLog{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
	}
	if stationID != "" {
		entry.StationID = &stationID
	}
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok && claims != nil && claims.UserID != "" {
		uid := claims.UserID
		entry.UserID = &uid
		var user models.User
		if err := a.db.Select("email").First(&user, "id = ?", uid).Error; err == nil {
			entry.UserEmail = user.Email
		}
	}
	if err := a.auditSvc.Log(r.Context(), &entry); err != nil {
		a.logger.Warn().Err(err).Str("action", string(action)).Msg("audit write failed")
	}
}

// serviceError translates service sentinels to HTTP status codes. Anything
// unrecognized is logged and reported as a 500.
func (a *API) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, dailylog.ErrLogNotFound),
		errors.Is(err, dailylog.ErrRevisionNotFound),
		errors.Is(err, dailylog.ErrStationNotFound),
		errors.Is(err, clock.ErrTemplateNotFound),
		errors.Is(err, voicetrack.ErrSlotNotFound),
		errors.Is(err, voicetrack.ErrRecordingNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, auth.ErrAPIKeyNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, dailylog.ErrLogLocked):
		writeError(w, http.StatusLocked, "log_locked")
	case errors.Is(err, dailylog.ErrConcurrency):
		writeError(w, http.StatusConflict, "revision_conflict")
	case errors.Is(err, dailylog.ErrElementIndex):
		writeError(w, http.StatusBadRequest, "element_index_out_of_range")
	case errors.Is(err, dailylog.ErrValidation), errors.Is(err, voicetrack.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed")
	case errors.Is(err, dailylog.ErrNotPublishable), errors.Is(err, clock.ErrInvalidTemplate):
		writeError(w, http.StatusUnprocessableEntity, "unprocessable")
	case errors.Is(err, publish.ErrDelivery):
		writeError(w, http.StatusBadGateway, "delivery_failed")
	default:
		a.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
