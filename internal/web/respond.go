package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/pysugar/pulse-dashboard/internal/insights"
	"github.com/pysugar/pulse-dashboard/internal/logging"
	"github.com/pysugar/pulse-dashboard/internal/upstream"
	"github.com/pysugar/pulse-dashboard/internal/validate"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps err to a status and a user-facing message. A redirect
// requested by the API client (failed token refresh) is passed along.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	body := map[string]interface{}{"error": upstream.Message(err, fallback)}
	status := http.StatusBadGateway

	switch {
	case validate.As(err) != nil:
		status = http.StatusUnprocessableEntity
		body["details"] = validate.As(err).Details
	case errors.Is(err, insights.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, upstream.ErrAuthentication):
		status = http.StatusUnauthorized
	case upstream.StatusOf(err) >= 400 && upstream.StatusOf(err) < 500:
		status = upstream.StatusOf(err)
	}

	if redirect := s.location.TakeRedirect(); redirect != "" {
		body["redirect"] = redirect
	}
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error().Err(err).Msg("❌ Request failed")
	}
	writeJSON(w, status, body)
}

// decode reads a JSON body, or form values when the request is a form post.
func decode(r *http.Request, dst interface{}, formFields ...string) error {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseForm(); err != nil {
			return err
		}
		values := make(map[string]string, len(formFields))
		for _, f := range formFields {
			values[f] = r.PostFormValue(f)
		}
		raw, err := json.Marshal(values)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, dst)
	}
	return json.NewDecoder(r.Body).Decode(dst)
}

// safeRedirect keeps post-login redirects on this site.
func safeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") ||
		strings.HasPrefix(target, upstream.LoginPath) {
		return "/dashboard"
	}
	return target
}

var errInvalidBody = validate.As((&validate.Validator{}).Custom("body", true, "Invalid request body").Err())
