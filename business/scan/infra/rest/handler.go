// Package rest exposes the scan engine over HTTP: a streaming start
// endpoint and a snapshot endpoint for polling consumers. The event
// stream is transport-agnostic; it is served as SSE by default and as a
// websocket when requested.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/teuchmannluca/storefront-scanner/business/scan/app"
	"github.com/teuchmannluca/storefront-scanner/business/scan/domain"
	"github.com/teuchmannluca/storefront-scanner/internal/apperror"
	"github.com/teuchmannluca/storefront-scanner/internal/logger"
)

// ScanService is the application surface the handler drives.
type ScanService interface {
	StartScan(ctx context.Context, owner string, scope app.Scope) (string, *app.Emitter, error)
	Stream(scanID string) (<-chan app.ProgressEvent, error)
	Cancel(scanID string) error
	Status(ctx context.Context, scanID string) (*domain.SessionSnapshot, error)
	Opportunities(ctx context.Context, scanID string) ([]*domain.Opportunity, error)
}

// Handler serves the scan API.
type Handler struct {
	service  ScanService
	identity app.IdentityVerifier
	logger   logger.LoggerInterface
}

// NewHandler creates the scan API handler.
func NewHandler(service ScanService, identity app.IdentityVerifier, log logger.LoggerInterface) *Handler {
	return &Handler{service: service, identity: identity, logger: log}
}

// Routes mounts the scan API under /api/v1.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/v1/scans", func(r chi.Router) {
		r.Use(h.authenticate)
		r.Post("/", h.startScan)
		r.Get("/{scanID}", h.getScan)
		r.Get("/{scanID}/stream", h.attachStream)
		r.Post("/{scanID}/cancel", h.cancelScan)
	})
}

type contextKey string

const userIDKey contextKey = "user_id"

// authenticate verifies the bearer token on every scan request and
// stores the verified user id on the request context.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || token == r.Header.Get("Authorization") {
			h.renderError(w, r, apperror.Unauthorized("missing bearer token"))
			return
		}
		userID, err := h.identity.Verify(r.Context(), token)
		if err != nil {
			h.renderError(w, r, apperror.Unauthorized("token rejected"))
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestUser(r *http.Request) string {
	user, _ := r.Context().Value(userIDKey).(string)
	return user
}

type startScanRequest struct {
	StorefrontIDs  []string `json:"storefront_ids,omitempty"`
	ASINs          []string `json:"asins,omitempty"`
	AllStorefronts bool     `json:"all_storefronts,omitempty"`
}

func (req *startScanRequest) Bind(r *http.Request) error {
	selectors := 0
	if len(req.StorefrontIDs) > 0 {
		selectors++
	}
	if len(req.ASINs) > 0 {
		selectors++
	}
	if req.AllStorefronts {
		selectors++
	}
	if selectors == 0 {
		return errors.New("one of storefront_ids, asins, or all_storefronts is required")
	}
	if selectors > 1 {
		return errors.New("storefront_ids, asins, and all_storefronts are mutually exclusive")
	}
	return nil
}

// startScan creates a scan and streams its progress events as
// server-sent events until the terminal event. ?stream=false skips the
// stream and returns the scan ID immediately, for consumers that
// prefer to attach or poll separately. A streaming consumer disconnect
// cancels the scan.
func (h *Handler) startScan(w http.ResponseWriter, r *http.Request) {
	req := &startScanRequest{}
	if err := render.Bind(r, req); err != nil {
		h.renderError(w, r, apperror.Validation(apperror.CodeInvalidInput, err.Error()))
		return
	}
	scope := app.Scope{StorefrontIDs: req.StorefrontIDs, ASINs: req.ASINs}

	scanID, emitter, err := h.service.StartScan(r.Context(), requestUser(r), scope)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	if r.URL.Query().Get("stream") == "false" {
		render.Status(r, http.StatusAccepted)
		render.JSON(w, r, map[string]string{"scan_id": scanID, "status": "running"})
		return
	}
	h.logger.Info(r.Context(), "scan stream opened", "scan_id", scanID)
	h.streamSSE(w, r, scanID, emitter.Events(), true)
}

// attachStream joins the event stream of an already running scan.
// ?transport=ws upgrades to a websocket; the default is server-sent
// events. Detaching does not cancel the scan.
func (h *Handler) attachStream(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scanID")

	events, err := h.service.Stream(scanID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if r.URL.Query().Get("transport") == "ws" {
		h.streamWebsocket(w, r, scanID, events)
		return
	}
	h.streamSSE(w, r, scanID, events, false)
}

// streamSSE writes the event stream as server-sent events.
func (h *Handler) streamSSE(w http.ResponseWriter, r *http.Request, scanID string, events <-chan app.ProgressEvent, cancelOnDisconnect bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.renderError(w, r, apperror.Internal(apperror.CodeInternalError, "streaming unsupported", nil))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Scan-ID", scanID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			if cancelOnDisconnect {
				// The driving consumer went away; stop issuing provider calls.
				_ = h.service.Cancel(scanID)
			}
			return
		case ev, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error(ctx, "encoding progress event", "scan_id", scanID, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}

// streamWebsocket writes the event stream over a websocket and closes
// it after the terminal event.
func (h *Handler) streamWebsocket(w http.ResponseWriter, r *http.Request, scanID string, events <-chan app.ProgressEvent) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Error(r.Context(), "websocket accept failed", "scan_id", scanID, "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-events:
			if !open {
				conn.Close(websocket.StatusNormalClosure, "scan finished")
				return
			}
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				h.logger.Warn(ctx, "websocket write failed, detaching",
					"scan_id", scanID, "error", err)
				return
			}
		}
	}
}

type scanStatusResponse struct {
	Session       *domain.SessionSnapshot `json:"session"`
	Opportunities []*domain.Opportunity   `json:"opportunities"`
}

// getScan returns the session snapshot plus everything persisted so
// far. This is the poll path for consumers that cannot hold a stream
// open.
func (h *Handler) getScan(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scanID")

	snap, err := h.service.Status(r.Context(), scanID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	opps, err := h.service.Opportunities(r.Context(), scanID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if opps == nil {
		opps = []*domain.Opportunity{}
	}
	render.JSON(w, r, scanStatusResponse{Session: snap, Opportunities: opps})
}

// cancelScan requests a stop for a running scan.
func (h *Handler) cancelScan(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scanID")
	if err := h.service.Cancel(scanID); err != nil {
		h.renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{"scan_id": scanID, "status": "cancelling"})
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		appErr = apperror.Internal(apperror.CodeInternalError, "", err)
	}
	h.logger.Warn(r.Context(), "request failed",
		"path", r.URL.Path, "code", string(appErr.Code), "error", err)
	render.Status(r, appErr.StatusCode)
	render.JSON(w, r, appErr.ToResponse())
}
