package upstream_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/pulse-dashboard/internal/auth/token"
	"github.com/pysugar/pulse-dashboard/internal/db/models"
	"github.com/pysugar/pulse-dashboard/internal/upstream"
	"github.com/pysugar/pulse-dashboard/internal/upstream/upstreamtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNavigator struct {
	mu        sync.Mutex
	path      string
	redirects []string
}

func (n *fakeNavigator) CurrentPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

func (n *fakeNavigator) Redirect(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.path = path
	n.redirects = append(n.redirects, path)
}

func (n *fakeNavigator) Redirects() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.redirects...)
}

type captureRecorder struct {
	mu      sync.Mutex
	entries []models.RequestLog
}

func (r *captureRecorder) Record(entry models.RequestLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

func setup(t *testing.T, opts ...upstream.Option) (*upstreamtest.Backend, *upstream.Client, *fakeNavigator) {
	t.Helper()
	backend := upstreamtest.New()
	t.Cleanup(backend.Close)

	nav := &fakeNavigator{path: "/dashboard"}
	store := token.NewStore(token.NewMemoryBackend())
	opts = append([]upstream.Option{upstream.WithNavigator(nav)}, opts...)
	return backend, upstream.NewClient(backend.URL(), store, opts...), nav
}

func signIn(t *testing.T, backend *upstreamtest.Backend, client *upstream.Client) {
	t.Helper()
	access, refresh := backend.IssueTokens()
	require.NoError(t, client.Tokens().Save(context.Background(), access, refresh))
}

func TestClient_AttachesBearerToken(t *testing.T) {
	backend, client, _ := setup(t)
	backend.AddUser("ada@example.com", "Secret123!", "Ada")

	_, err := client.GetProfile(context.Background())
	require.Error(t, err, "no token: the backend rejects the call")

	signIn(t, backend, client)
	user, err := client.GetProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ada", user.Name)
}

func TestClient_LoginStoresTokenPair(t *testing.T) {
	backend, client, _ := setup(t)
	backend.AddUser("ada@example.com", "Secret123!", "Ada")

	auth, err := client.Login(context.Background(), upstream.LoginRequest{Email: "ada@example.com", Password: "Secret123!"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", auth.User.Email)
	assert.True(t, client.Tokens().IsAuthenticated())
	assert.Equal(t, auth.AccessToken, client.Tokens().AccessToken())
	assert.Equal(t, auth.RefreshToken, client.Tokens().RefreshToken())
}

func TestClient_RegisterStoresTokenPair(t *testing.T) {
	_, client, _ := setup(t)

	auth, err := client.Register(context.Background(), upstream.RegisterRequest{Email: "new@example.com", Password: "Secret123!", Name: "New"})
	require.NoError(t, err)
	assert.Equal(t, "New", auth.User.Name)
	assert.True(t, client.Tokens().IsAuthenticated())
}

func TestClient_ExpiredTokenRefreshesAndReplaysOnce(t *testing.T) {
	backend, client, nav := setup(t)
	backend.AddUser("ada@example.com", "Secret123!", "Ada")
	backend.Lock()
	backend.Accounts = []upstream.SocialAccount{{ID: "acc-1", Platform: "instagram", Username: "ada"}}
	backend.Unlock()
	signIn(t, backend, client)
	oldAccess := client.Tokens().AccessToken()

	backend.ExpireAccessToken()
	accounts, err := client.ListSocialAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)

	assert.Equal(t, 1, backend.CountCalls("POST /auth/refresh"))
	assert.Equal(t, 2, backend.CountCalls("GET /social-accounts"))
	assert.NotEqual(t, oldAccess, client.Tokens().AccessToken())
	assert.Empty(t, nav.Redirects())
}

func TestClient_SecondUnauthorizedIsNotReplayed(t *testing.T) {
	backend, client, _ := setup(t)
	signIn(t, backend, client)
	backend.Fail(http.MethodGet, "/social-accounts", http.StatusUnauthorized, "still unauthorized", 0)

	_, err := client.ListSocialAccounts(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, upstream.StatusOf(err))
	assert.Equal(t, "still unauthorized", err.Error())
	assert.Equal(t, 1, backend.CountCalls("POST /auth/refresh"))
	assert.Equal(t, 2, backend.CountCalls("GET /social-accounts"))
}

func TestClient_RefreshFailureClearsSessionAndRedirects(t *testing.T) {
	backend, client, nav := setup(t)
	signIn(t, backend, client)
	backend.Lock()
	backend.RefreshFails = true
	backend.Unlock()
	backend.ExpireAccessToken()

	_, err := client.GetUsage(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, upstream.ErrAuthentication))
	assert.False(t, client.Tokens().IsAuthenticated())
	assert.Empty(t, client.Tokens().RefreshToken())
	assert.Equal(t, []string{"/login"}, nav.Redirects())
	assert.Equal(t, 1, backend.CountCalls("GET /social-accounts/usage"), "no replay after a failed refresh")
}

func TestClient_RefreshFailureRunsSessionEndHooks(t *testing.T) {
	backend, client, _ := setup(t)
	signIn(t, backend, client)
	backend.Lock()
	backend.RefreshFails = true
	backend.Unlock()
	backend.ExpireAccessToken()

	var ended int
	client.OnSessionEnd(func() {
		assert.False(t, client.Tokens().IsAuthenticated(), "tokens are cleared before hooks run")
		ended++
	})

	_, err := client.GetDashboard(context.Background())
	require.ErrorIs(t, err, upstream.ErrAuthentication)
	assert.Equal(t, 1, ended)
}

func TestClient_CancelledCallerKeepsSessionDuringRefresh(t *testing.T) {
	backend, client, nav := setup(t)
	backend.AddUser("ada@example.com", "Secret123!", "Ada")
	signIn(t, backend, client)
	oldRefresh := client.Tokens().RefreshToken()
	backend.ExpireAccessToken()
	release := backend.Gate(http.MethodPost, "/auth/refresh")

	var ended int
	client.OnSessionEnd(func() { ended++ })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := client.GetDashboard(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool {
		return backend.CountCalls("POST /auth/refresh") == 1
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return")
	}
	assert.True(t, client.Tokens().IsAuthenticated(), "a cancelled caller must not wipe the session")

	release()
	require.Eventually(t, func() bool {
		rt := client.Tokens().RefreshToken()
		return rt != "" && rt != oldRefresh
	}, 2*time.Second, 5*time.Millisecond, "the shared refresh finishes and stores the new pair")

	assert.Empty(t, nav.Redirects())
	assert.Zero(t, ended)

	_, err := client.GetProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, backend.CountCalls("POST /auth/refresh"))
}

func TestClient_RefreshFailureOnLoginViewDoesNotRedirect(t *testing.T) {
	backend, client, nav := setup(t)
	nav.path = upstream.LoginPath
	signIn(t, backend, client)
	backend.Lock()
	backend.RefreshFails = true
	backend.Unlock()
	backend.ExpireAccessToken()

	_, err := client.GetDashboard(context.Background())
	require.ErrorIs(t, err, upstream.ErrAuthentication)
	assert.Empty(t, nav.Redirects())
	assert.False(t, client.Tokens().IsAuthenticated())
}

func TestClient_AuthEndpointUnauthorizedSkipsRefresh(t *testing.T) {
	backend, client, nav := setup(t)
	backend.AddUser("ada@example.com", "Secret123!", "Ada")
	signIn(t, backend, client)

	_, err := client.Login(context.Background(), upstream.LoginRequest{Email: "ada@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.ErrorIs(t, err, upstream.ErrAuthentication)
	assert.Equal(t, "Invalid email or password", upstream.Message(err, "Login failed"))
	assert.Zero(t, backend.CountCalls("POST /auth/refresh"))
	assert.Empty(t, nav.Redirects())
}

func TestClient_RefreshWithoutTokenMakesNoCall(t *testing.T) {
	backend, client, _ := setup(t)

	_, err := client.Refresh(context.Background())
	require.ErrorIs(t, err, upstream.ErrAuthentication)
	assert.Empty(t, backend.Calls())
}

func TestClient_ConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	backend, client, _ := setup(t)
	backend.AddUser("ada@example.com", "Secret123!", "Ada")
	signIn(t, backend, client)
	backend.ExpireAccessToken()
	release := backend.Gate(http.MethodPost, "/auth/refresh")

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.GetProfile(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool {
		return backend.CountCalls("GET /user/profile") == n && backend.CountCalls("POST /auth/refresh") == 1
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	release()
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, backend.CountCalls("POST /auth/refresh"))
	assert.Equal(t, 2*n, backend.CountCalls("GET /user/profile"))
}

func TestClient_RecordsRequestHistory(t *testing.T) {
	rec := &captureRecorder{}
	backend, client, _ := setup(t, upstream.WithRecorder(rec))
	backend.AddUser("ada@example.com", "Secret123!", "Ada")
	signIn(t, backend, client)
	backend.ExpireAccessToken()

	_, err := client.GetProfile(context.Background())
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.entries, 3)
	assert.Equal(t, http.StatusUnauthorized, rec.entries[0].Status)
	assert.Equal(t, "/auth/refresh", rec.entries[1].Path)
	last := rec.entries[2]
	assert.Equal(t, "/user/profile", last.Path)
	assert.Equal(t, http.StatusOK, last.Status)
	assert.True(t, last.Retried)
	assert.Equal(t, rec.entries[0].RequestID, last.RequestID)
}

func TestClient_RateInsightSendsNullToClear(t *testing.T) {
	backend, client, _ := setup(t)
	signIn(t, backend, client)

	up := true
	require.NoError(t, client.RateInsight(context.Background(), "ins-1", &up))
	backend.Lock()
	require.NotNil(t, backend.Ratings["ins-1"])
	assert.True(t, *backend.Ratings["ins-1"])
	backend.Unlock()

	require.NoError(t, client.RateInsight(context.Background(), "ins-1", nil))
	backend.Lock()
	rating, ok := backend.Ratings["ins-1"]
	backend.Unlock()
	assert.True(t, ok)
	assert.Nil(t, rating)
}

func TestClient_GetInsightsForceRefresh(t *testing.T) {
	backend, client, _ := setup(t)
	signIn(t, backend, client)
	backend.Lock()
	backend.Insights["acc-1"] = []upstream.AIInsight{{ID: "old"}}
	backend.Generated["acc-1"] = []upstream.AIInsight{{ID: "fresh"}}
	backend.Unlock()

	stored, err := client.GetInsights(context.Background(), "acc-1", false)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "old", stored[0].ID)

	fresh, err := client.GetInsights(context.Background(), "acc-1", true)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "fresh", fresh[0].ID)
}

func TestClient_EnvelopeEdgeCases(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/user/profile", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"message":"ok"}`))
	})
	r.Get("/api/social-accounts/usage", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	r.Get("/api/analytics/dashboard", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"error":"Bad dashboard query"}`))
	})
	r.Put("/api/analytics/insights/{id}/rating", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"Insight not found"}`))
	})
	r.Post("/api/analytics/accounts/{id}/sync", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"message":"Sync already running"}`))
	})
	r.Delete("/api/social-accounts/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	client := upstream.NewClient(srv.URL+"/api", token.NewStore(token.NewMemoryBackend()))
	ctx := context.Background()

	_, err := client.GetProfile(ctx)
	assert.ErrorIs(t, err, upstream.ErrNoData)

	_, err = client.GetUsage(ctx)
	require.Error(t, err)
	assert.Equal(t, "Request failed with status 500", err.Error())
	assert.Equal(t, http.StatusInternalServerError, upstream.StatusOf(err))

	_, err = client.GetDashboard(ctx)
	require.Error(t, err)
	assert.Equal(t, "Bad dashboard query", err.Error())

	up := true
	err = client.RateInsight(ctx, "ins-1", &up)
	require.Error(t, err)
	assert.Equal(t, "Insight not found", err.Error())
	assert.Equal(t, http.StatusOK, upstream.StatusOf(err))

	err = client.SyncAccountData(ctx, "acc-1")
	require.Error(t, err)
	assert.Equal(t, "Sync already running", err.Error())

	assert.NoError(t, client.DeleteSocialAccount(ctx, "acc-1"), "an empty 2xx body is a success")
}

func TestClient_RequestHeaders(t *testing.T) {
	var got http.Header
	r := chi.NewRouter()
	r.Get("/api/social-accounts/usage", func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte(`{"success":true,"data":{"currentAccounts":0,"maxAccounts":1,"tier":"free","canAddMore":true}}`))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	store := token.NewStore(token.NewMemoryBackend())
	require.NoError(t, store.Save(context.Background(), "opaque-access", "opaque-refresh"))
	client := upstream.NewClient(srv.URL+"/api", store, upstream.WithUserAgent("pulse-test"))

	usage, err := client.GetUsage(context.Background())
	require.NoError(t, err)
	assert.True(t, usage.CanAddMore)
	assert.Equal(t, "Bearer opaque-access", got.Get("Authorization"))
	assert.Equal(t, "pulse-test", got.Get("User-Agent"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.NotEmpty(t, got.Get("X-Request-ID"))
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	backend, client, _ := setup(t, upstream.WithRateLimit(0.001, 1))
	signIn(t, backend, client)

	_, err := client.GetUsage(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.GetUsage(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
	assert.Equal(t, 1, backend.CountCalls("GET /social-accounts/usage"))
}
