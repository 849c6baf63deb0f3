package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// fetch sends req and returns the envelope payload, failing with ErrNoData
// when the payload is missing.
func fetch[T any](ctx context.Context, c *Client, req *apiRequest) (*T, error) {
	var env Envelope[T]
	if err := c.do(ctx, req, &env); err != nil {
		return nil, err
	}
	if env.Data == nil {
		if env.Error != "" {
			return nil, &APIError{Status: http.StatusOK, Message: env.Error}
		}
		return nil, ErrNoData
	}
	return env.Data, nil
}

// ack sends req and only checks that it succeeded. A 2xx envelope that
// reports failure is still an error.
func (c *Client) ack(ctx context.Context, req *apiRequest) error {
	var env Envelope[struct{}]
	if err := c.do(ctx, req, &env); err != nil {
		return err
	}
	if !env.Success && (env.Error != "" || env.Message != "") {
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		return &APIError{Status: http.StatusOK, Message: msg}
	}
	return nil
}

// ===== Auth =====

// Login exchanges credentials for a session and stores the token pair.
func (c *Client) Login(ctx context.Context, creds LoginRequest) (*AuthResponse, error) {
	return c.authenticate(ctx, "/auth/login", creds)
}

// Register creates an account and stores the returned token pair.
func (c *Client) Register(ctx context.Context, profile RegisterRequest) (*AuthResponse, error) {
	return c.authenticate(ctx, "/auth/register", profile)
}

func (c *Client) authenticate(ctx context.Context, path string, body interface{}) (*AuthResponse, error) {
	auth, err := fetch[AuthResponse](ctx, c, &apiRequest{method: http.MethodPost, path: path, body: body})
	if err != nil {
		return nil, err
	}
	if err := c.tokens.Save(ctx, auth.AccessToken, auth.RefreshToken); err != nil {
		return nil, err
	}
	return auth, nil
}

// Refresh trades the stored refresh token for a new pair. It never retries:
// any failure is reported as ErrAuthentication.
func (c *Client) Refresh(ctx context.Context) (*AuthResponse, error) {
	refreshToken := c.tokens.RefreshToken()
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, errNoRefreshToken)
	}

	auth, err := fetch[AuthResponse](ctx, c, &apiRequest{
		method: http.MethodPost,
		path:   "/auth/refresh",
		body:   map[string]string{"refreshToken": refreshToken},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	if err := c.tokens.Save(ctx, auth.AccessToken, auth.RefreshToken); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	return auth, nil
}

// ===== Profile =====

func (c *Client) GetProfile(ctx context.Context) (*User, error) {
	data, err := fetch[struct {
		User *User `json:"user"`
	}](ctx, c, &apiRequest{method: http.MethodGet, path: "/user/profile"})
	if err != nil {
		return nil, err
	}
	if data.User == nil {
		return nil, ErrNoData
	}
	return data.User, nil
}

func (c *Client) UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*User, error) {
	data, err := fetch[struct {
		User *User `json:"user"`
	}](ctx, c, &apiRequest{method: http.MethodPut, path: "/user/profile", body: req})
	if err != nil {
		return nil, err
	}
	if data.User == nil {
		return nil, ErrNoData
	}
	return data.User, nil
}

// ===== Social accounts =====

func (c *Client) ListSocialAccounts(ctx context.Context) ([]SocialAccount, error) {
	data, err := fetch[struct {
		Accounts []SocialAccount `json:"accounts"`
	}](ctx, c, &apiRequest{method: http.MethodGet, path: "/social-accounts"})
	if err != nil {
		return nil, err
	}
	return data.Accounts, nil
}

func (c *Client) CreateSocialAccount(ctx context.Context, req CreateSocialAccountRequest) (*SocialAccount, error) {
	return fetch[SocialAccount](ctx, c, &apiRequest{method: http.MethodPost, path: "/social-accounts", body: req})
}

func (c *Client) GetSocialAccount(ctx context.Context, id string) (*SocialAccount, error) {
	return fetch[SocialAccount](ctx, c, &apiRequest{method: http.MethodGet, path: "/social-accounts/" + url.PathEscape(id)})
}

func (c *Client) UpdateSocialAccount(ctx context.Context, id string, req UpdateSocialAccountRequest) (*SocialAccount, error) {
	return fetch[SocialAccount](ctx, c, &apiRequest{method: http.MethodPut, path: "/social-accounts/" + url.PathEscape(id), body: req})
}

func (c *Client) DeleteSocialAccount(ctx context.Context, id string) error {
	return c.ack(ctx, &apiRequest{method: http.MethodDelete, path: "/social-accounts/" + url.PathEscape(id)})
}

// GetUsage returns the tier's account limits.
func (c *Client) GetUsage(ctx context.Context) (*Usage, error) {
	return fetch[Usage](ctx, c, &apiRequest{method: http.MethodGet, path: "/social-accounts/usage"})
}

// ===== Analytics =====

// GetAccountMetrics returns stored metrics and runs insight generation in the
// same request. It can be slow.
func (c *Client) GetAccountMetrics(ctx context.Context, accountID string) (*AccountAnalytics, error) {
	return fetch[AccountAnalytics](ctx, c, &apiRequest{
		method: http.MethodGet,
		path:   "/analytics/accounts/" + url.PathEscape(accountID) + "/metrics",
	})
}

// SyncAccountData asks the backend to pull fresh data from the platform.
func (c *Client) SyncAccountData(ctx context.Context, accountID string) error {
	return c.ack(ctx, &apiRequest{
		method: http.MethodPost,
		path:   "/analytics/accounts/" + url.PathEscape(accountID) + "/sync",
	})
}

// GetInsights lists insights. forceRefresh asks for a new generation pass.
func (c *Client) GetInsights(ctx context.Context, accountID string, forceRefresh bool) ([]AIInsight, error) {
	data, err := fetch[[]AIInsight](ctx, c, &apiRequest{
		method: http.MethodGet,
		path:   "/analytics/accounts/" + url.PathEscape(accountID) + "/insights",
		query:  url.Values{"forceRefresh": {strconv.FormatBool(forceRefresh)}},
	})
	if err != nil {
		return nil, err
	}
	return *data, nil
}

// RateInsight sets or clears (nil) the user's rating.
func (c *Client) RateInsight(ctx context.Context, insightID string, rating *bool) error {
	return c.ack(ctx, &apiRequest{
		method: http.MethodPut,
		path:   "/analytics/insights/" + url.PathEscape(insightID) + "/rating",
		body:   map[string]*bool{"rating": rating},
	})
}

func (c *Client) GetDashboard(ctx context.Context) (*Dashboard, error) {
	return fetch[Dashboard](ctx, c, &apiRequest{method: http.MethodGet, path: "/analytics/dashboard"})
}
