package web

import "sync"

// Location tracks the view the user is on. It is the API client's
// Navigator: a redirect requested by the client is held until the next
// response picks it up.
type Location struct {
	mu       sync.Mutex
	path     string
	redirect string
}

func NewLocation() *Location {
	return &Location{path: "/"}
}

func (l *Location) CurrentPath() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// Redirect records a pending navigation to path.
func (l *Location) Redirect(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.redirect = path
	l.path = path
}

// Visit records that path is being shown.
func (l *Location) Visit(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.path = path
}

// TakeRedirect returns and clears the pending redirect.
func (l *Location) TakeRedirect() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := l.redirect
	l.redirect = ""
	return r
}
