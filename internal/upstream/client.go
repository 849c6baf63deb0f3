// Package upstream is the single HTTP entry point to the analytics backend.
// It attaches the bearer token, refreshes it once on a 401 and replays the
// request, and unwraps the backend's response envelope.
package upstream

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
	"sync"
	"time"

	"github.com/pysugar/pulse-dashboard/internal/auth/token"
	"github.com/pysugar/pulse-dashboard/internal/db/models"
	"github.com/pysugar/pulse-dashboard/internal/logging"
	"github.com/pysugar/pulse-dashboard/internal/util"
	"github.com/pysugar/pulse-dashboard/internal/version"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// LoginPath is where the client sends the app after a failed refresh.
const LoginPath = "/login"

// Navigator moves the application to another view. The client uses it to
// send the user to the login view once the session is unrecoverable.
type Navigator interface {
	CurrentPath() string
	Redirect(path string)
}

// Recorder receives one entry per completed request.
type Recorder interface {
	Record(entry models.RequestLog)
}

// Client talks to the backend REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     *token.Store
	navigator  Navigator
	recorder   Recorder
	limiter    *rate.Limiter
	userAgent  string

	refreshes singleflight.Group

	hooksMu    sync.Mutex
	sessionEnd []func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithNavigator sets the view navigator used after a failed refresh.
func WithNavigator(n Navigator) Option {
	return func(c *Client) { c.navigator = n }
}

// WithRecorder sets the request history sink.
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// WithRateLimit paces outgoing requests. rps <= 0 disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient creates the API client. baseURL includes the /api prefix.
func NewClient(baseURL string, tokens *token.Store, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		tokens:     tokens,
		userAgent:  "pulse-dashboard/" + version.Version,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tokens exposes the token store the client authenticates with.
func (c *Client) Tokens() *token.Store {
	return c.tokens
}

// OnSessionEnd registers fn to run after a failed refresh has cleared the
// stored tokens.
func (c *Client) OnSessionEnd(fn func()) {
	c.hooksMu.Lock()
	c.sessionEnd = append(c.sessionEnd, fn)
	c.hooksMu.Unlock()
}

type apiRequest struct {
	method    string
	path      string
	query     url.Values
	body      interface{}
	requestID string
	retried   bool
}

// isAuthEndpoint reports whether a 401 from path is a credential problem
// rather than an expired access token.
func isAuthEndpoint(path string) bool {
	return strings.HasPrefix(path, "/auth/")
}

// do sends req and decodes a 2xx body into out. A 401 on a non-auth endpoint
// triggers one refresh and one replay.
func (c *Client) do(ctx context.Context, req *apiRequest, out interface{}) error {
	if req.requestID == "" {
		req.requestID = logging.GetRequestID(ctx)
		if req.requestID == "" {
			req.requestID = logging.GenerateRequestID()
		}
	}

	status, body, err := c.send(ctx, req)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && !isAuthEndpoint(req.path) && !req.retried {
		req.retried = true
		logging.FromContext(ctx).Info().Str("path", req.path).Msg("🔄 Access token rejected, refreshing session")

		if err := c.refreshSession(ctx); err != nil {
			return err
		}
		status, body, err = c.send(ctx, req)
		if err != nil {
			return err
		}
	}

	if status < 200 || status >= 300 {
		return newAPIError(status, body)
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", req.path, err)
	}
	return nil
}

// send performs a single HTTP round trip with the current access token.
func (c *Client) send(ctx context.Context, req *apiRequest) (int, []byte, error) {
	logger := logging.FromContext(logging.WithRequestID(ctx, req.requestID))

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	var body io.Reader
	if req.body != nil {
		jsonData, err := json.Marshal(req.body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(jsonData)
		if util.IsVerbose() {
			logger.Debug().Str("payload", util.TruncateBytes(jsonData)).Msgf("➡️ %s %s", req.method, req.path)
		}
	}

	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("X-Request-ID", req.requestID)
	if tok := c.tokens.Token(); tok != nil {
		tok.SetAuthHeader(httpReq)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.record(req, 0, start, err)
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.record(req, resp.StatusCode, start, err)
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	c.record(req, resp.StatusCode, start, nil)

	if util.IsVerbose() {
		logger.Debug().Int("status", resp.StatusCode).Str("body", util.TruncateBytes(respBody)).Msgf("⬅️ %s %s", req.method, req.path)
	}
	return resp.StatusCode, respBody, nil
}

func (c *Client) record(req *apiRequest, status int, start time.Time, err error) {
	if c.recorder == nil {
		return
	}
	entry := models.RequestLog{
		RequestID: req.requestID,
		Timestamp: start.UnixMilli(),
		Method:    req.method,
		Path:      req.path,
		Status:    status,
		Duration:  time.Since(start).Milliseconds(),
		Retried:   req.retried,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	c.recorder.Record(entry)
}

// refreshSession runs one refresh exchange on behalf of every request that
// hit a 401 concurrently. On failure the token store is cleared and the app
// is sent to the login view. The exchange outlives a cancelled caller so the
// other waiters still get its result.
func (c *Client) refreshSession(ctx context.Context) error {
	ch := c.refreshes.DoChan("refresh", func() (interface{}, error) {
		rctx := context.WithoutCancel(ctx)
		_, err := c.Refresh(rctx)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			c.endSession(rctx, err)
		}
		return nil, err
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// endSession tears down credentials after an unrecoverable refresh failure.
func (c *Client) endSession(ctx context.Context, cause error) {
	logging.FromContext(ctx).Warn().Err(cause).Msg("🔒 Token refresh failed, signing out")
	if err := c.tokens.Clear(ctx); err != nil {
		logging.FromContext(ctx).Error().Err(err).Msg("❌ Failed to clear stored tokens")
	}

	c.hooksMu.Lock()
	hooks := append([]func(){}, c.sessionEnd...)
	c.hooksMu.Unlock()
	for _, fn := range hooks {
		fn()
	}

	if c.navigator == nil {
		return
	}
	if c.navigator.CurrentPath() != LoginPath {
		c.navigator.Redirect(LoginPath)
	}
}
