package oauth2ext

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	dErrors "obconsent/pkg/domain-errors"
	"obconsent/pkg/platform/httputil"
	"obconsent/pkg/requestcontext"
)

const maxBodyBytes = 1 << 20

// Handler exposes the hooks over HTTP for the identity server.
type Handler struct {
	scopes *ScopeInjector
	grant  *CodeGrantHandler
	logger *slog.Logger
}

func NewHandler(scopes *ScopeInjector, grant *CodeGrantHandler, logger *slog.Logger) *Handler {
	return &Handler{scopes: scopes, grant: grant, logger: logger}
}

// Register mounts the hook endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Post("/approved-scopes", h.HandleApprovedScopes)
	r.Post("/code-grant/issued", h.HandleCodeGrantIssued)
}

// ApprovedScopesResponse is the scope set the identity server should use.
type ApprovedScopesResponse struct {
	ApprovedScopes       []string `json:"approvedScopes"`
	RefreshTokenValidity int64    `json:"refreshTokenValidity"`
}

// HandleApprovedScopes runs the scope injection hook.
func (h *Handler) HandleApprovedScopes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req AuthorizeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid approved scopes request",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ApprovedScopesResponse{
		ApprovedScopes:       h.scopes.UpdateApprovedScopes(ctx, &req),
		RefreshTokenValidity: int64(h.scopes.UpdateRefreshTokenValidity(ctx, &req)),
	})
}

// CodeGrantIssuedRequest reports a token the identity server just issued.
type CodeGrantIssuedRequest struct {
	Request  TokenRequest  `json:"request"`
	Response TokenResponse `json:"response"`
}

// issued replays a token that was already issued, so the post-issue steps of
// CodeGrantHandler can run on it.
type issued struct {
	resp *TokenResponse
}

func (i issued) Issue(context.Context, *TokenRequest) (*TokenResponse, error) {
	return i.resp, nil
}

// HandleCodeGrantIssued applies the regulated-client rules to an issued token.
func (h *Handler) HandleCodeGrantIssued(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body CodeGrantIssuedRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	grant := *h.grant
	grant.issuer = issued{resp: &body.Response}
	resp, err := grant.Issue(ctx, &body.Request)
	if err != nil {
		h.logger.ErrorContext(ctx, "code grant initial step failed",
			"client_id", body.Request.ClientID,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "code grant step failed"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CodeGrantIssuedRequest{Request: body.Request, Response: *resp})
}
