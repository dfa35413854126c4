package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"shelfmark/internal/entitlement"
	"shelfmark/internal/errors"
)

// StateReader exposes the current verification state to the gate.
type StateReader interface {
	Current() entitlement.State
}

// Gate blocks feature routes until verification has reached Licensed. The
// license endpoints themselves, the state stream and operational routes
// stay reachable so the UI can show progress and let the user retry.
type Gate struct {
	verifier        StateReader
	logger          *slog.Logger
	excludePaths    map[string]struct{}
	excludePrefixes []string
}

// NewGate creates the entitlement gate middleware.
func NewGate(verifier StateReader, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		verifier: verifier,
		logger:   logger.With(slog.String("component", "entitlement_gate")),
		excludePaths: map[string]struct{}{
			"/":            {},
			"/api/health":  {},
			"/api/version": {},
			"/metrics":     {},
			"/ws":          {},
		},
		excludePrefixes: []string{
			"/api/license",
			"/static/",
		},
	}
}

// Handler is the chi middleware function.
func (g *Gate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.excluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		state := g.verifier.Current()
		if state.Kind == entitlement.KindLicensed {
			next.ServeHTTP(w, r)
			return
		}

		g.logger.DebugContext(r.Context(), "request blocked by gate",
			slog.String("path", r.URL.Path),
			slog.String("state", state.String()))
		render.Render(w, r, errors.EntitlementRequiredError(state))
	})
}

func (g *Gate) excluded(path string) bool {
	if _, ok := g.excludePaths[path]; ok {
		return true
	}
	for _, prefix := range g.excludePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
