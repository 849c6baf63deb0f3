package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/pulse-dashboard/internal/dashboard"
	"github.com/pysugar/pulse-dashboard/internal/insights"
	"github.com/pysugar/pulse-dashboard/internal/logging"
	"github.com/pysugar/pulse-dashboard/internal/upstream"
	"github.com/pysugar/pulse-dashboard/internal/validate"
	"github.com/pysugar/pulse-dashboard/internal/version"
)

// ===== Public pages =====

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"page":          "home",
		"authenticated": s.session.IsAuthenticated(),
		"user":          s.session.User(),
	})
}

// handleVersion returns version information as JSON
func handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.Commit,
		"build_time": version.BuildTime,
	})
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if s.session.IsAuthenticated() {
		http.Redirect(w, r, safeRedirect(r.URL.Query().Get("redirect")), http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"page":     "login",
		"redirect": r.URL.Query().Get("redirect"),
		"loading":  s.session.Loading(),
	})
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	if s.session.IsAuthenticated() {
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"page": "register"})
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// handleLogin signs in and reports where to go next: the redirect
// parameter when present, the dashboard otherwise.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decode(r, &req, "email", "password"); err != nil {
		s.writeError(w, r, errInvalidBody, "Invalid request body")
		return
	}

	user, err := s.session.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err, "Login failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":     user,
		"redirect": safeRedirect(r.URL.Query().Get("redirect")),
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decode(r, &req, "email", "password", "name"); err != nil {
		s.writeError(w, r, errInvalidBody, "Invalid request body")
		return
	}

	user, err := s.session.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		s.writeError(w, r, err, "Registration failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"user": user, "redirect": "/dashboard"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.session.Logout(r.Context())
	s.resetViews()
	writeJSON(w, http.StatusOK, map[string]string{"redirect": upstream.LoginPath})
}

// ===== Dashboard =====

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	overview := dashboard.Load(r.Context(), s.client)
	if redirect := s.location.TakeRedirect(); redirect != "" {
		http.Redirect(w, r, redirect, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":     s.session.User(),
		"overview": overview,
	})
}

// ===== Accounts =====

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	accounts, err := s.client.ListSocialAccounts(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("⚠️ Failed to load social accounts")
		accounts = []upstream.SocialAccount{}
	}
	usage, err := s.client.GetUsage(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("⚠️ Failed to load usage")
		usage = nil
	}
	if redirect := s.location.TakeRedirect(); redirect != "" {
		http.Redirect(w, r, redirect, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts":  accounts,
		"usage":     usage,
		"platforms": validate.Platforms,
	})
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req upstream.CreateSocialAccountRequest
	if err := decode(r, &req, "platform", "username", "displayName", "profileUrl"); err != nil {
		s.writeError(w, r, errInvalidBody, "Invalid request body")
		return
	}
	if err := validate.SocialAccount(req.Platform, req.Username); err != nil {
		s.writeError(w, r, err, "Invalid account")
		return
	}

	account, err := s.client.CreateSocialAccount(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err, "Failed to connect account")
		return
	}
	logging.FromContext(r.Context()).Info().Str("platform", account.Platform).Str("username", account.Username).Msg("✅ Social account connected")
	writeJSON(w, http.StatusCreated, account)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.client.DeleteSocialAccount(r.Context(), id); err != nil {
		s.writeError(w, r, err, "Failed to delete account")
		return
	}
	s.viewsMu.Lock()
	delete(s.views, id)
	s.viewsMu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSyncAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.client.SyncAccountData(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err, "Failed to sync account")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ===== Analytics =====

// handleAnalytics lists accounts to pick from. With ?account=<id> the
// current view state for that account is included.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.client.ListSocialAccounts(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Warn().Err(err).Msg("⚠️ Failed to load social accounts")
		accounts = []upstream.SocialAccount{}
	}
	if redirect := s.location.TakeRedirect(); redirect != "" {
		http.Redirect(w, r, redirect, http.StatusFound)
		return
	}

	resp := map[string]interface{}{"accounts": accounts}
	if id := r.URL.Query().Get("account"); id != "" {
		resp["view"] = s.view(id).Snapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnalyticsState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.view(chi.URLParam(r, "id")).Snapshot())
}

// handleLoadAnalytics runs both load phases. Poll GET /analytics/{id} to see
// the stored insights while generation is running.
func (s *Server) handleLoadAnalytics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view := s.view(id)

	err := view.LoadAccountData(context.WithoutCancel(r.Context()), id)
	s.writeViewResult(w, r, view, err)
}

func (s *Server) handleRefreshInsights(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view := s.view(id)

	err := view.GenerateFreshInsights(context.WithoutCancel(r.Context()), id)
	s.writeViewResult(w, r, view, err)
}

// writeViewResult returns the view state. A failed generation still
// answers 200 with the preserved insights and the error text in the state;
// only dropped calls and lost sessions are reported as errors.
func (s *Server) writeViewResult(w http.ResponseWriter, r *http.Request, view *insights.View, err error) {
	if err != nil && (errors.Is(err, insights.ErrBusy) || errors.Is(err, upstream.ErrAuthentication)) {
		s.writeError(w, r, err, "Failed to load analytics")
		return
	}
	writeJSON(w, http.StatusOK, view.Snapshot())
}

func (s *Server) handleRateInsight(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID string `json:"accountId"`
		Rating    *bool  `json:"rating"`
	}
	if err := decode(r, &req); err != nil || req.AccountID == "" {
		s.writeError(w, r, errInvalidBody, "Invalid request body")
		return
	}

	view := s.view(req.AccountID)
	if err := view.RateInsight(r.Context(), chi.URLParam(r, "id"), req.Rating); err != nil {
		s.writeError(w, r, err, "Failed to rate insight")
		return
	}
	writeJSON(w, http.StatusOK, view.Snapshot())
}

// ===== Settings =====

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":    s.session.User(),
		"version": version.Version,
		"stats":   s.monitor.Stats(),
	})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req upstream.UpdateProfileRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, errInvalidBody, "Invalid request body")
		return
	}
	user, err := s.session.UpdateProfile(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err, "Profile update failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

// handleRequestLogs returns recent backend calls, newest first.
func (s *Server) handleRequestLogs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	logs := s.monitor.Recent(limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"count": len(logs),
		"stats": s.monitor.Stats(),
	})
}

func (s *Server) handleClearRequestLogs(w http.ResponseWriter, r *http.Request) {
	if err := s.monitor.Clear(); err != nil {
		s.writeError(w, r, err, "Failed to clear logs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
