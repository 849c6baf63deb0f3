// Package upstreamtest provides an in-process fake of the analytics backend
// for tests that drive the real API client.
package upstreamtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/pulse-dashboard/internal/upstream"
)

// Backend is a scripted backend. Mutate its fields under Lock/Unlock or via
// the helper methods while a test runs.
type Backend struct {
	Server *httptest.Server

	mu           sync.Mutex
	seq          int
	accessToken  string
	refreshToken string
	current      string // email of the signed-in user

	Users        map[string]*Account // by email
	RefreshFails bool
	Accounts     []upstream.SocialAccount
	Metrics      map[string][]upstream.AccountMetrics
	Insights     map[string][]upstream.AIInsight // stored insights, per account
	Generated    map[string][]upstream.AIInsight // returned by generation passes
	Ratings      map[string]*bool
	Usage        upstream.Usage

	failures map[string]failure
	calls    []string
	gates    map[string]chan struct{}
}

// Account is a registered user of the fake backend.
type Account struct {
	Password string
	User     upstream.User
}

type failure struct {
	status  int
	message string
	times   int // <= 0 means always
}

// New starts a fake backend. Close it with t.Cleanup(b.Close).
func New() *Backend {
	b := &Backend{
		Users:     make(map[string]*Account),
		Metrics:   make(map[string][]upstream.AccountMetrics),
		Insights:  make(map[string][]upstream.AIInsight),
		Generated: make(map[string][]upstream.AIInsight),
		Ratings:   make(map[string]*bool),
		Usage:     upstream.Usage{CurrentAccounts: 0, MaxAccounts: 1, Tier: upstream.TierFree, CanAddMore: true},
		failures:  make(map[string]failure),
		gates:     make(map[string]chan struct{}),
	}
	b.Server = httptest.NewServer(b.routes())
	return b
}

// URL is the API base URL (including /api).
func (b *Backend) URL() string {
	return b.Server.URL + "/api"
}

func (b *Backend) Close() {
	b.Server.Close()
}

func (b *Backend) Lock()   { b.mu.Lock() }
func (b *Backend) Unlock() { b.mu.Unlock() }

// AddUser registers a user that can log in.
func (b *Backend) AddUser(email, password, name string) upstream.User {
	b.mu.Lock()
	defer b.mu.Unlock()
	user := upstream.User{
		ID:        fmt.Sprintf("user-%d", len(b.Users)+1),
		Email:     email,
		Name:      name,
		Tier:      upstream.TierFree,
		IsActive:  true,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	b.Users[email] = &Account{Password: password, User: user}
	return user
}

// IssueTokens creates a valid pair without a login call.
func (b *Backend) IssueTokens() (access, refresh string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rotateLocked()
}

// ExpireAccessToken invalidates the current access token; the refresh token
// stays valid.
func (b *Backend) ExpireAccessToken() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	b.accessToken = fmt.Sprintf("access-expired-%d", b.seq)
}

// Fail makes "METHOD /path" (path without /api) respond with status. times
// <= 0 fails every call.
func (b *Backend) Fail(method, path string, status int, message string, times int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[method+" "+path] = failure{status: status, message: message, times: times}
}

// Gate blocks "METHOD /path" until the returned release func is called.
func (b *Backend) Gate(method, path string) (release func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan struct{})
	b.gates[method+" "+path] = ch
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Calls returns "METHOD /path" for every request received, in order.
func (b *Backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

// CountCalls counts received requests matching "METHOD /path".
func (b *Backend) CountCalls(call string) int {
	n := 0
	for _, c := range b.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (b *Backend) rotateLocked() (string, string) {
	b.seq++
	b.accessToken = fmt.Sprintf("access-%d", b.seq)
	b.refreshToken = fmt.Sprintf("refresh-%d", b.seq)
	return b.accessToken, b.refreshToken
}

func (b *Backend) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(b.track)
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", b.handleLogin)
		r.Post("/auth/register", b.handleRegister)
		r.Post("/auth/refresh", b.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(b.requireBearer)
			r.Get("/user/profile", b.handleProfile)
			r.Put("/user/profile", b.handleUpdateProfile)
			r.Get("/social-accounts", b.handleListAccounts)
			r.Post("/social-accounts", b.handleCreateAccount)
			r.Get("/social-accounts/usage", b.handleUsage)
			r.Get("/social-accounts/{id}", b.handleGetAccount)
			r.Put("/social-accounts/{id}", b.handleGetAccount)
			r.Delete("/social-accounts/{id}", b.handleDeleteAccount)
			r.Get("/analytics/accounts/{id}/metrics", b.handleMetrics)
			r.Post("/analytics/accounts/{id}/sync", b.handleAck)
			r.Get("/analytics/accounts/{id}/insights", b.handleInsights)
			r.Put("/analytics/insights/{id}/rating", b.handleRating)
			r.Get("/analytics/dashboard", b.handleDashboard)
		})
	})
	return r
}

// track logs the call, applies scripted failures and gates.
func (b *Backend) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + strings.TrimPrefix(r.URL.Path, "/api")

		b.mu.Lock()
		b.calls = append(b.calls, key)
		gate := b.gates[key]
		f, failing := b.failures[key]
		if failing && f.times > 0 {
			f.times--
			if f.times == 0 {
				delete(b.failures, key)
			} else {
				b.failures[key] = f
			}
		}
		b.mu.Unlock()

		if gate != nil {
			<-gate
		}
		if failing {
			writeJSON(w, f.status, map[string]interface{}{"success": false, "message": f.message})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		valid := b.accessToken != "" && r.Header.Get("Authorization") == "Bearer "+b.accessToken
		b.mu.Unlock()
		if !valid {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"success": false, "error": "Token expired"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req upstream.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "Invalid JSON"})
		return
	}
	b.mu.Lock()
	acc, ok := b.Users[req.Email]
	if !ok || acc.Password != req.Password {
		b.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"success": false, "message": "Invalid email or password"})
		return
	}
	access, refresh := b.rotateLocked()
	b.current = req.Email
	user := acc.User
	b.mu.Unlock()
	b.writeAuth(w, &user, access, refresh)
}

func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req upstream.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "Invalid JSON"})
		return
	}
	b.mu.Lock()
	if _, exists := b.Users[req.Email]; exists {
		b.mu.Unlock()
		writeJSON(w, http.StatusConflict, map[string]interface{}{"success": false, "message": "Email already registered"})
		return
	}
	b.mu.Unlock()
	user := b.AddUser(req.Email, req.Password, req.Name)

	b.mu.Lock()
	access, refresh := b.rotateLocked()
	b.current = req.Email
	b.mu.Unlock()
	writeJSON(w, http.StatusCreated, upstream.Envelope[upstream.AuthResponse]{
		Success: true,
		Data:    &upstream.AuthResponse{User: &user, AccessToken: access, RefreshToken: refresh, ExpiresIn: 900},
	})
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	if b.RefreshFails || req.RefreshToken == "" || req.RefreshToken != b.refreshToken {
		b.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"success": false, "error": "Invalid refresh token"})
		return
	}
	access, refresh := b.rotateLocked()
	var user *upstream.User
	if acc := b.currentUserLocked(); acc != nil {
		u := acc.User
		user = &u
	}
	b.mu.Unlock()
	b.writeAuth(w, user, access, refresh)
}

func (b *Backend) writeAuth(w http.ResponseWriter, user *upstream.User, access, refresh string) {
	writeJSON(w, http.StatusOK, upstream.Envelope[upstream.AuthResponse]{
		Success: true,
		Data:    &upstream.AuthResponse{User: user, AccessToken: access, RefreshToken: refresh, ExpiresIn: 900},
	})
}

// currentUserLocked returns the last user to sign in, or any registered user
// when tokens were issued directly.
func (b *Backend) currentUserLocked() *Account {
	if acc, ok := b.Users[b.current]; ok {
		return acc
	}
	for _, acc := range b.Users {
		return acc
	}
	return nil
}

func (b *Backend) handleProfile(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	acc := b.currentUserLocked()
	b.mu.Unlock()
	if acc == nil {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"success": false, "message": "User not found"})
		return
	}
	user := acc.User
	writeData(w, map[string]interface{}{"user": user})
}

func (b *Backend) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req upstream.UpdateProfileRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	acc := b.currentUserLocked()
	if acc == nil {
		b.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"success": false, "message": "User not found"})
		return
	}
	if req.Name != nil {
		acc.User.Name = *req.Name
	}
	if req.Email != nil {
		acc.User.Email = *req.Email
	}
	user := acc.User
	b.mu.Unlock()
	writeData(w, map[string]interface{}{"user": user})
}

func (b *Backend) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	accounts := append([]upstream.SocialAccount{}, b.Accounts...)
	b.mu.Unlock()
	writeData(w, map[string]interface{}{"accounts": accounts})
}

func (b *Backend) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req upstream.CreateSocialAccountRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	if !b.Usage.CanAddMore {
		b.mu.Unlock()
		writeJSON(w, http.StatusForbidden, map[string]interface{}{"success": false, "message": "Account limit reached for your tier"})
		return
	}
	acc := upstream.SocialAccount{
		ID:          fmt.Sprintf("acc-%d", len(b.Accounts)+1),
		Platform:    req.Platform,
		Username:    req.Username,
		DisplayName: req.DisplayName,
		IsActive:    true,
	}
	b.Accounts = append(b.Accounts, acc)
	b.Usage.CurrentAccounts = len(b.Accounts)
	b.Usage.CanAddMore = b.Usage.CurrentAccounts < b.Usage.MaxAccounts
	b.mu.Unlock()
	writeJSON(w, http.StatusCreated, upstream.Envelope[upstream.SocialAccount]{Success: true, Data: &acc})
}

func (b *Backend) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, acc := range b.Accounts {
		if acc.ID == id {
			writeJSON(w, http.StatusOK, upstream.Envelope[upstream.SocialAccount]{Success: true, Data: &acc})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]interface{}{"success": false, "message": "Social account not found"})
}

func (b *Backend) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	kept := b.Accounts[:0]
	for _, acc := range b.Accounts {
		if acc.ID != id {
			kept = append(kept, acc)
		}
	}
	b.Accounts = kept
	b.Usage.CurrentAccounts = len(b.Accounts)
	b.Usage.CanAddMore = b.Usage.CurrentAccounts < b.Usage.MaxAccounts
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Social account deleted"})
}

func (b *Backend) handleUsage(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	usage := b.Usage
	b.mu.Unlock()
	writeData(w, usage)
}

func (b *Backend) handleMetrics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	metrics := append([]upstream.AccountMetrics{}, b.Metrics[id]...)
	insights := b.Generated[id]
	if insights == nil {
		insights = b.Insights[id]
	}
	insights = append([]upstream.AIInsight{}, insights...)
	b.mu.Unlock()

	summary := map[string]interface{}{"totalMetrics": len(metrics)}
	writeData(w, upstream.AccountAnalytics{Metrics: metrics, Insights: insights, Summary: summary})
}

func (b *Backend) handleInsights(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	force := r.URL.Query().Get("forceRefresh") == "true"

	b.mu.Lock()
	insights := b.Insights[id]
	if force && b.Generated[id] != nil {
		insights = b.Generated[id]
	}
	insights = append([]upstream.AIInsight{}, insights...)
	b.mu.Unlock()
	writeData(w, insights)
}

func (b *Backend) handleRating(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Rating *bool `json:"rating"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	b.Ratings[id] = req.Rating
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Rating saved"})
}

func (b *Backend) handleAck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "ok"})
}

func (b *Backend) handleDashboard(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	dash := upstream.Dashboard{
		Accounts: append([]upstream.SocialAccount{}, b.Accounts...),
		Usage:    &upstream.Usage{CurrentAccounts: b.Usage.CurrentAccounts, MaxAccounts: b.Usage.MaxAccounts, Tier: b.Usage.Tier, CanAddMore: b.Usage.CanAddMore},
	}
	for _, acc := range b.Accounts {
		dash.RecentMetrics = append(dash.RecentMetrics, b.Metrics[acc.ID]...)
		dash.Insights = append(dash.Insights, b.Insights[acc.ID]...)
	}
	b.mu.Unlock()
	writeData(w, dash)
}

func writeData(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": data})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
