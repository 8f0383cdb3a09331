// Package confirm receives the user's decision from the consent page,
// forwards it to the persistence endpoint and sends the browser on.
package confirm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"obconsent/internal/authorize/metrics"
	"obconsent/internal/session"
	"obconsent/pkg/platform/httputil"
	"obconsent/pkg/platform/sentinel"
	"obconsent/pkg/requestcontext"
)

const retryMessage = "Error while persisting consent"

// Persister forwards a submission and returns where the browser goes next.
type Persister interface {
	Persist(ctx context.Context, sessionDataKey string, submission map[string]any) (string, error)
}

// Sessions reads the registered user and invalidates sessions that failed.
type Sessions interface {
	Get(ctx context.Context, key string) (*session.Data, error)
	Delete(ctx context.Context, key string) error
}

// Handler serves the consent confirm form post.
type Handler struct {
	persister Persister
	sessions  Sessions
	extension Extension
	retryPath string
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures the Handler.
type Option func(*Handler)

// WithExtension replaces DefaultExtension.
func WithExtension(ext Extension) Option {
	return func(h *Handler) {
		h.extension = ext
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

func New(persister Persister, sessions Sessions, retryPath string, opts ...Option) *Handler {
	h := &Handler{
		persister: persister,
		sessions:  sessions,
		extension: DefaultExtension{},
		retryPath: retryPath,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the confirm endpoint.
func (h *Handler) Register(r chi.Router) {
	r.Post("/oauth2_consent.do", h.HandleConfirm)
}

// HandleConfirm assembles the submission from the form, the cookies and the
// extension, persists it and redirects.
func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if err := r.ParseForm(); err != nil {
		h.logger.WarnContext(ctx, "unreadable consent form", "error", err, "request_id", requestID)
		h.retry(w, r, "")
		return
	}
	key := r.PostForm.Get("sessionDataKeyConsent")
	if key == "" {
		h.logger.WarnContext(ctx, "consent form without session data key", "request_id", requestID)
		h.retry(w, r, "")
		return
	}

	sess, err := h.sessions.Get(ctx, key)
	if err != nil {
		h.logger.WarnContext(ctx, "consent session unavailable", "error", err, "request_id", requestID)
		h.retry(w, r, key)
		return
	}

	target, err := h.persister.Persist(ctx, key, h.submission(r, sess))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to persist consent",
			"error", err,
			"request_id", requestID,
		)
		h.retry(w, r, key)
		return
	}

	outcome := "redirect"
	if u, perr := url.Parse(target); perr == nil && (u.Query().Has("error") || fragmentHasError(u)) {
		outcome = "error_redirect"
		if sess.ConsentData().FragmentResponse() && !fragmentHasError(u) {
			target = errorInFragment(u)
		}
	}
	h.metrics.IncConfirmOutcome(outcome)
	httputil.NoStore(w)
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) submission(r *http.Request, sess *session.Data) map[string]any {
	cookies := make(map[string]string)
	for _, c := range r.Cookies() {
		cookies[c.Name] = c.Value
	}

	meta := make(map[string]string)
	if authID := r.PostForm.Get("authorisationId"); authID != "" {
		meta["authorisationId"] = authID
	}

	submission := map[string]any{
		"cookies":  cookies,
		"type":     r.PostForm.Get("type"),
		"approval": r.PostForm.Get("consent"),
		"userId":   sess.UserID,
	}
	if h.extension != nil {
		for k, v := range h.extension.ConsentMetadata(r) {
			meta[k] = v
		}
		for k, v := range h.extension.ConsentData(r) {
			submission[k] = v
		}
	}
	submission["metadata"] = meta
	return submission
}

// retry invalidates the session and sends the browser to the retry page.
func (h *Handler) retry(w http.ResponseWriter, r *http.Request, key string) {
	ctx := r.Context()
	if key != "" {
		if err := h.sessions.Delete(ctx, key); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			h.logger.WarnContext(ctx, "failed to invalidate session",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
	}
	h.metrics.IncConfirmOutcome("retry")

	q := url.Values{}
	q.Set("status", "Error")
	q.Set("statusMsg", retryMessage)
	httputil.NoStore(w)
	http.Redirect(w, r, h.retryPath+"?"+q.Encode(), http.StatusFound)
}

// errorInFragment moves the OAuth2 error parameters of a query error redirect
// into the fragment, for response types that answer in the fragment.
func errorInFragment(u *url.URL) string {
	q := u.Query()
	fragment := url.Values{}
	for _, k := range []string{"error", "error_description", "state"} {
		if q.Has(k) {
			fragment.Set(k, q.Get(k))
			q.Del(k)
		}
	}
	out := *u
	out.RawQuery = q.Encode()
	out.Fragment = ""
	out.RawFragment = ""
	return out.String() + "#" + fragment.Encode()
}

func fragmentHasError(u *url.URL) bool {
	v, err := url.ParseQuery(u.Fragment)
	return err == nil && v.Has("error")
}
