// Package web serves the dashboard routes. Public pages are open, the rest
// require a session; JSON actions drive the session, accounts and insights.
package web

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/pysugar/pulse-dashboard/internal/insights"
	"github.com/pysugar/pulse-dashboard/internal/monitor"
	"github.com/pysugar/pulse-dashboard/internal/session"
	"github.com/pysugar/pulse-dashboard/internal/upstream"
)

// Server wires the session, the API client and the per-account insight
// views to HTTP routes.
type Server struct {
	client   *upstream.Client
	session  *session.Controller
	monitor  *monitor.RequestMonitor
	location *Location

	viewsMu sync.Mutex
	views   map[string]*insights.View
}

// NewServer creates the route handler. location must be the Navigator the
// client was built with.
func NewServer(client *upstream.Client, ctrl *session.Controller, mon *monitor.RequestMonitor, location *Location) *Server {
	return &Server{
		client:   client,
		session:  ctrl,
		monitor:  mon,
		location: location,
		views:    make(map[string]*insights.View),
	}
}

// view returns the insight view for accountID, creating it on first use.
func (s *Server) view(accountID string) *insights.View {
	s.viewsMu.Lock()
	defer s.viewsMu.Unlock()
	v, ok := s.views[accountID]
	if !ok {
		v = insights.NewView(s.client)
		s.views[accountID] = v
	}
	return v
}

// resetViews drops cached insight state, e.g. after logout.
func (s *Server) resetViews() {
	s.viewsMu.Lock()
	s.views = make(map[string]*insights.View)
	s.viewsMu.Unlock()
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestContext)
	r.Use(accessLog)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.trackLocation)

	// ============================================
	// Public Routes
	// ============================================
	r.Get("/", s.handleHome)
	r.Get("/version", handleVersion)
	r.Get("/login", s.handleLoginPage)
	r.Post("/login", s.handleLogin)
	r.Get("/register", s.handleRegisterPage)
	r.Post("/register", s.handleRegister)
	r.Post("/logout", s.handleLogout)

	// ============================================
	// Protected Routes
	// ============================================
	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)

		r.Get("/dashboard", s.handleDashboard)

		r.Get("/accounts", s.handleAccounts)
		r.Post("/accounts", s.handleCreateAccount)
		r.Delete("/accounts/{id}", s.handleDeleteAccount)
		r.Post("/accounts/{id}/sync", s.handleSyncAccount)

		r.Get("/analytics", s.handleAnalytics)
		r.Get("/analytics/{id}", s.handleAnalyticsState)
		r.Post("/analytics/{id}/load", s.handleLoadAnalytics)
		r.Post("/analytics/{id}/refresh", s.handleRefreshInsights)
		r.Put("/analytics/insights/{id}/rating", s.handleRateInsight)

		r.Get("/settings", s.handleSettings)
		r.Put("/settings/profile", s.handleUpdateProfile)
		r.Get("/settings/requests", s.handleRequestLogs)
		r.Delete("/settings/requests", s.handleClearRequestLogs)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusFound)
	})
	return r
}
