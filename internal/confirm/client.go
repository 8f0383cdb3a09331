package confirm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"obconsent/internal/authorize/consenterr"
)

const maxResponseBytes = 1 << 20

// ErrNoRedirect means the persistence service answered without anything the
// browser can be sent to.
var ErrNoRedirect = errors.New("persistence response has no redirect")

// PersistenceClient calls the consent persistence endpoint.
type PersistenceClient struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	tracer   trace.Tracer
}

// NewPersistenceClient builds a client for PATCH {baseURL}/{sessionDataKey}.
// Redirects are returned to the caller, never followed.
func NewPersistenceClient(baseURL, username, password string, timeout time.Duration) *PersistenceClient {
	return &PersistenceClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		http: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		tracer: otel.Tracer("obconsent/internal/confirm"),
	}
}

// Persist sends the submission and returns the URL the browser goes to next:
// the Location of a 302, or the client's redirect URI carrying an OAuth2
// error. Anything else is an error.
func (c *PersistenceClient) Persist(ctx context.Context, sessionDataKey string, submission map[string]any) (string, error) {
	ctx, span := c.tracer.Start(ctx, "confirm.persist")
	defer span.End()

	redirect, err := c.persist(ctx, sessionDataKey, submission)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
	}
	return redirect, err
}

func (c *PersistenceClient) persist(ctx context.Context, sessionDataKey string, submission map[string]any) (string, error) {
	body, err := json.Marshal(submission)
	if err != nil {
		return "", fmt.Errorf("encode submission: %w", err)
	}
	endpoint := c.baseURL + "/" + url.PathEscape(sessionDataKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build persist request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call persistence endpoint: %w", err)
	}
	defer resp.Body.Close()
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode == http.StatusFound {
		if loc := resp.Header.Get("Location"); loc != "" {
			return loc, nil
		}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read persistence response: %w", err)
	}
	if !gjson.ValidBytes(raw) {
		return "", fmt.Errorf("persistence response status %d: invalid json", resp.StatusCode)
	}
	return errorRedirect(gjson.ParseBytes(raw))
}

func errorRedirect(doc gjson.Result) (string, error) {
	p := consenterr.Payload{
		Error:            doc.Get("error").String(),
		ErrorDescription: doc.Get("error_description").String(),
		State:            doc.Get("state").String(),
		RedirectURI:      doc.Get("redirect_uri").String(),
	}
	target, ok := consenterr.RedirectURL(p, false)
	if !ok {
		return "", ErrNoRedirect
	}
	if _, err := url.Parse(target); err != nil {
		return "", fmt.Errorf("invalid error redirect: %w", err)
	}
	return target, nil
}
