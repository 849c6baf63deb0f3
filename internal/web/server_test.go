package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/pysugar/pulse-dashboard/internal/auth/token"
	"github.com/pysugar/pulse-dashboard/internal/monitor"
	"github.com/pysugar/pulse-dashboard/internal/session"
	"github.com/pysugar/pulse-dashboard/internal/upstream"
	"github.com/pysugar/pulse-dashboard/internal/upstream/upstreamtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const password = "Secret123!"

type harness struct {
	backend *upstreamtest.Backend
	handler http.Handler
	monitor *monitor.RequestMonitor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend := upstreamtest.New()
	t.Cleanup(backend.Close)
	backend.AddUser("bob@example.com", password, "Bob")
	backend.Lock()
	backend.Accounts = []upstream.SocialAccount{{ID: "a1", Platform: "instagram", Username: "bob"}}
	backend.Usage = upstream.Usage{CurrentAccounts: 1, MaxAccounts: 1, Tier: upstream.TierFree, CanAddMore: false}
	backend.Unlock()

	loc := NewLocation()
	mon := monitor.NewRequestMonitor(nil)
	store := token.NewStore(token.NewMemoryBackend())
	client := upstream.NewClient(backend.URL(), store, upstream.WithNavigator(loc), upstream.WithRecorder(mon))
	ctrl := session.NewController(client)
	ctrl.Init(context.Background())

	return &harness{backend: backend, handler: NewServer(client, ctrl, mon, loc).Routes(), monitor: mon}
}

func (h *harness) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/login", map[string]string{"email": "bob@example.com", "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestProtectedRoutesRedirectToLogin(t *testing.T) {
	h := newHarness(t)

	for _, path := range []string{"/dashboard", "/accounts", "/analytics", "/settings"} {
		rec := h.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusFound, rec.Code, path)
		assert.Equal(t, "/login?redirect="+url.QueryEscape(path), rec.Header().Get("Location"))
	}
}

func TestLoginRedirectKeepsQuery(t *testing.T) {
	h := newHarness(t)
	target := "/analytics?account=a1"

	rec := h.do(t, http.MethodGet, target, nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login?redirect="+url.QueryEscape(target), rec.Header().Get("Location"))

	rec = h.do(t, http.MethodPost, "/login?redirect="+url.QueryEscape(target), map[string]string{"email": "bob@example.com", "password": password})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, target, decodeBody(t, rec)["redirect"])
}

func TestUnknownPathRedirectsHome(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/no-such-page", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestPublicRoutes(t *testing.T) {
	h := newHarness(t)

	for _, path := range []string{"/", "/login", "/register", "/version"} {
		rec := h.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestLoginHonoursRedirect(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/login?redirect=%2Fanalytics", map[string]string{"email": "bob@example.com", "password": password})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/analytics", decodeBody(t, rec)["redirect"])

	rec = h.do(t, http.MethodGet, "/login", nil)
	assert.Equal(t, http.StatusFound, rec.Code, "signed-in users skip the login page")
}

func TestLoginForm(t *testing.T) {
	h := newHarness(t)

	form := url.Values{"email": {"bob@example.com"}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/login?redirect=//evil.example.com", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/dashboard", decodeBody(t, rec)["redirect"])
}

func TestLoginFailure(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/login", map[string]string{"email": "bob@example.com", "password": "Wrong123!"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid email or password", decodeBody(t, rec)["error"])
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/register", map[string]string{"email": "new@example.com", "password": "abc", "name": "New"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "at least 8 characters")

	rec = h.do(t, http.MethodPost, "/register", map[string]string{"email": "new@example.com", "password": "Abcdefg1!", "name": "New"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestDashboardWithoutMetrics(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	rec := h.do(t, http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	overview := decodeBody(t, rec)["overview"].(map[string]interface{})
	assert.Equal(t, "No metrics data available", overview["advisory"])
	assert.Empty(t, overview["kpiCards"])
	assert.Equal(t, true, overview["insightsPanel"].(map[string]interface{})["empty"])
	assert.Len(t, overview["accounts"], 1)
}

func TestRefreshFailureRedirectsToLogin(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.backend.Lock()
	h.backend.RefreshFails = true
	h.backend.Unlock()
	h.backend.ExpireAccessToken()

	rec := h.do(t, http.MethodGet, "/accounts", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = h.do(t, http.MethodGet, "/dashboard", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "/login?redirect=")
}

func TestAnalyticsLoadAndRate(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.backend.Lock()
	h.backend.Insights["a1"] = []upstream.AIInsight{{ID: "i1", Title: "Post more reels"}, {ID: "i2", Title: "Reply to comments"}}
	h.backend.Unlock()

	rec := h.do(t, http.MethodPost, "/analytics/a1/load", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	state := decodeBody(t, rec)
	assert.Len(t, state["insights"], 2)
	assert.Equal(t, "No metrics data available. Sync your account to fetch the latest data.", state["advisory"])

	rec = h.do(t, http.MethodPut, "/analytics/insights/i2/rating", map[string]interface{}{"accountId": "a1", "rating": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list := decodeBody(t, rec)["insights"].([]interface{})
	assert.Nil(t, list[0].(map[string]interface{})["userRating"])
	assert.Equal(t, true, list[1].(map[string]interface{})["userRating"])

	rec = h.do(t, http.MethodGet, "/analytics?account=a1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, decodeBody(t, rec)["view"])
}

func TestRefreshInsightsFailureKeepsList(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.backend.Lock()
	h.backend.Insights["a1"] = []upstream.AIInsight{{ID: "i1"}}
	h.backend.Unlock()
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/analytics/a1/load", nil).Code)

	h.backend.Fail(http.MethodGet, "/analytics/accounts/a1/insights", http.StatusServiceUnavailable, "AI service unavailable", 1)
	rec := h.do(t, http.MethodPost, "/analytics/a1/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	state := decodeBody(t, rec)
	assert.Equal(t, "AI service unavailable", state["error"])
	assert.Len(t, state["insights"], 1)
}

func TestCreateAccountValidation(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	rec := h.do(t, http.MethodPost, "/accounts", map[string]string{"platform": "myspace", "username": "bob"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = h.do(t, http.MethodPost, "/accounts", map[string]string{"platform": "tiktok", "username": "bob"})
	assert.Equal(t, http.StatusForbidden, rec.Code, "free tier allows one account")
	assert.Equal(t, "Account limit reached for your tier", decodeBody(t, rec)["error"])

	rec = h.do(t, http.MethodDelete, "/accounts/a1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPost, "/accounts", map[string]string{"platform": "tiktok", "username": "bob"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestRequestHistory(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.do(t, http.MethodGet, "/dashboard", nil)

	rec := h.do(t, http.MethodGet, "/settings/requests?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 2, body["count"])

	rec = h.do(t, http.MethodDelete, "/settings/requests", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, h.monitor.Recent(10))
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/settings", nil).Code)

	rec := h.do(t, http.MethodPost, "/logout", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/login", decodeBody(t, rec)["redirect"])

	rec = h.do(t, http.MethodGet, "/settings", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
}
