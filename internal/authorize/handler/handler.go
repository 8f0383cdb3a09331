package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"

	"obconsent/internal/authorize/consenterr"
	"obconsent/internal/authorize/models"
	"obconsent/internal/authorize/steps"
	consentmodels "obconsent/internal/consent/models"
	"obconsent/internal/session"
	audit "obconsent/pkg/platform/audit"
	"obconsent/pkg/platform/httputil"
	"obconsent/pkg/platform/middleware/auth"
	"obconsent/pkg/platform/sentinel"
	"obconsent/pkg/requestcontext"
)

const maxBodyBytes = 1 << 20

// Pipelines hands out the active step pipeline.
type Pipelines interface {
	Current() *steps.Pipeline
}

// Sessions is the session data the authorize endpoints read and write.
type Sessions interface {
	Register(ctx context.Context, d *session.Data, primary, refresh []session.RequestedClaim) error
	Save(ctx context.Context, d *session.Data) error
	Get(ctx context.Context, key string) (*session.Data, error)
}

// Handler serves the consent authorize API used by the confirm flow and the
// identity server.
type Handler struct {
	pipelines Pipelines
	sessions  Sessions
	resumeURL *url.URL
	auditLog  audit.Store
	logger    *slog.Logger
}

// Option configures the Handler.
type Option func(*Handler)

// WithAuditLog records session registrations and persist failures. Writes are best effort.
func WithAuditLog(store audit.Store) Option {
	return func(h *Handler) {
		h.auditLog = store
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// New creates the handler. resumeURL is the authorize endpoint the browser
// returns to once the decision is persisted.
func New(pipelines Pipelines, sessions Sessions, resumeURL *url.URL, opts ...Option) *Handler {
	h := &Handler{
		pipelines: pipelines,
		sessions:  sessions,
		resumeURL: resumeURL,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the authorize endpoints. Callers wrap r with authentication.
func (h *Handler) Register(r chi.Router) {
	r.Post("/sessions", h.HandleRegisterSession)
	r.Get("/retrieve/{sessionDataKey}", h.HandleRetrieve)
	r.Patch("/persist/{sessionDataKey}", h.HandlePersist)
}

// HandleRetrieve runs the retrieval steps and returns what they contributed.
func (h *Handler) HandleRetrieve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "sessionDataKey")

	sess, ok := h.loadSession(w, r, key)
	if !ok {
		return
	}

	data := models.NewRetrieveData(sess.ConsentData())
	if err := h.pipelines.Current().RunRetrieve(ctx, data); err != nil {
		h.writeConsentError(w, r, err)
		return
	}

	sess.ConsentID = data.ResolveConsentID()
	if data.AuthResource != nil {
		sess.AuthorizationID = data.AuthResource.ID
	}
	if err := h.sessions.Save(ctx, sess); err != nil {
		h.logger.ErrorContext(ctx, "failed to update session after retrieval",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		h.writeConsentError(w, r, consenterr.Internal("Exception occurred while retrieving consent data", err))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, data.Response)
}

// HandlePersist runs the persist steps for the submitted decision. Success
// redirects back into the authorize flow; OAuth2 errors are returned as JSON
// carrying the client's redirect_uri so the caller can deliver them.
func (h *Handler) HandlePersist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "sessionDataKey")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		h.writeConsentError(w, r, consenterr.BadRequest("Invalid request body"))
		return
	}

	approval := gjson.GetBytes(body, "approval")
	if !approval.Exists() {
		h.writeConsentError(w, r, consenterr.BadRequest("Approval not provided"))
		return
	}
	approved := parseApproval(approval)

	sess, ok := h.loadSession(w, r, key)
	if !ok {
		return
	}

	data := &models.ConsentPersistData{
		ConsentData: sess.ConsentData(),
		Approved:    approved,
		Payload:     body,
		Cookies:     stringMap(gjson.GetBytes(body, "cookies")),
		Metadata:    stringMap(gjson.GetBytes(body, "metadata")),
	}
	if authID := data.Metadata["authorisationId"]; authID != "" && data.AuthResource == nil {
		data.AuthResource = &consentmodels.Authorization{ID: authID, ConsentID: sess.ConsentID}
	}
	if data.UserID == "" {
		data.UserID = gjson.GetBytes(body, "userId").String()
	}

	if err := h.pipelines.Current().RunPersist(ctx, data); err != nil {
		reason := ""
		if ce, ok := consenterr.As(err); ok {
			reason = ce.Payload.ErrorDescription
		}
		h.record(ctx, audit.EventConsentPersistFailed, sess, reason)
		h.writeConsentError(w, r, err)
		return
	}

	location := h.resumeLocation(key, approved)
	h.logger.InfoContext(ctx, "consent decision persisted",
		"consent_id", data.ResolveConsentID(),
		"approved", approved,
		"api_user", auth.GetPrincipal(ctx),
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.NoStore(w)
	http.Redirect(w, r, location, http.StatusFound)
}

// HandleRegisterSession stores the session data for a session data key,
// together with the claims requested by the authorize request object.
func (h *Handler) HandleRegisterSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RegisterSessionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeConsentError(w, r, consenterr.BadRequest("Invalid request body"))
		return
	}
	req.normalize()
	if err := req.Validate(); err != nil {
		h.writeConsentError(w, r, err)
		return
	}

	var primary, refresh []session.RequestedClaim
	if req.RequestObject != "" {
		var err error
		primary, refresh, err = session.ExtractRequestedClaims(req.RequestObject)
		if err != nil {
			h.logger.WarnContext(ctx, "unreadable request object",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			h.writeConsentError(w, r, consenterr.BadRequest("Invalid request object"))
			return
		}
	}

	sess := req.toSession(requestcontext.Now(ctx))
	if sess.ConsentID == "" {
		sess.ConsentID = session.IntentID(primary)
	}
	if sess.ConsentID == "" {
		sess.ConsentID = session.IntentID(refresh)
	}
	if sess.ConsentID == "" {
		h.writeConsentError(w, r, consenterr.BadRequest("Consent ID not available in request"))
		return
	}

	if err := h.sessions.Register(ctx, sess, primary, refresh); err != nil {
		h.logger.ErrorContext(ctx, "failed to register session",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		h.writeConsentError(w, r, consenterr.Internal("Exception occurred while registering session", err))
		return
	}
	h.record(ctx, audit.EventSessionRegistered, sess, "")

	httputil.WriteJSON(w, http.StatusCreated, RegisterSessionResponse{
		SessionDataKey: sess.SessionDataKey,
		ConsentID:      sess.ConsentID,
	})
}

func (h *Handler) loadSession(w http.ResponseWriter, r *http.Request, key string) (*session.Data, bool) {
	ctx := r.Context()
	if strings.TrimSpace(key) == "" {
		h.writeConsentError(w, r, consenterr.BadRequest("Session data key is required"))
		return nil, false
	}
	sess, err := h.sessions.Get(ctx, key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			h.writeConsentError(w, r, consenterr.BadRequest("Unable to get consent data"))
			return nil, false
		}
		h.logger.ErrorContext(ctx, "failed to load session",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		h.writeConsentError(w, r, consenterr.Internal("Exception occurred while reading consent data", err))
		return nil, false
	}
	return sess, true
}

func (h *Handler) resumeLocation(key string, approved bool) string {
	u := *h.resumeURL
	q := u.Query()
	q.Set("sessionDataKeyConsent", key)
	if approved {
		q.Set("consent", "approve")
	} else {
		q.Set("consent", "deny")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// writeConsentError renders a step failure. Redirect errors travel in a 200
// body so the confirm flow can read redirect_uri; everything else uses its
// own status. Causes are never rendered.
func (h *Handler) writeConsentError(w http.ResponseWriter, r *http.Request, err error) {
	ce, ok := consenterr.As(err)
	if !ok {
		ce = consenterr.Internal("Internal server error", err)
	}
	if ce.Status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "consent request failed",
			"status", ce.Status,
			"error", err,
			"request_id", requestcontext.RequestID(r.Context()),
		)
	}
	status := ce.Status
	if ce.IsRedirect() {
		status = http.StatusOK
		httputil.NoStore(w)
	}
	httputil.WriteJSON(w, status, ce.Payload)
}

func (h *Handler) record(ctx context.Context, action audit.AuditEvent, sess *session.Data, reason string) {
	if h.auditLog == nil {
		return
	}
	err := h.auditLog.Append(ctx, audit.Event{
		Category:  action.Category(),
		Timestamp: requestcontext.Now(ctx),
		UserID:    sess.UserID,
		ConsentID: sess.ConsentID,
		ClientID:  sess.ClientID,
		Subject:   sess.SessionDataKey,
		Action:    string(action),
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
	})
	if err != nil {
		h.logger.WarnContext(ctx, "failed to record audit event",
			"action", action,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

func parseApproval(v gjson.Result) bool {
	switch v.Type {
	case gjson.True:
		return true
	case gjson.String:
		return strings.EqualFold(strings.TrimSpace(v.Str), "true")
	default:
		return false
	}
}

func stringMap(v gjson.Result) map[string]string {
	if !v.IsObject() {
		return map[string]string{}
	}
	out := make(map[string]string)
	v.ForEach(func(k, val gjson.Result) bool {
		out[k.String()] = val.String()
		return true
	})
	return out
}
