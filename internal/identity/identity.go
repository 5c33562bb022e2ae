// Package identity resolves the authenticated user of a request.
package identity

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/cowrite/internal/domain"
)

// DefaultHeader carries the user id set by the upstream auth proxy.
const DefaultHeader = "X-User-ID"

// Provider resolves the current user. It never returns an empty or
// placeholder id without an error.
type Provider interface {
	CurrentUser(r *http.Request) (string, error)
}

// placeholders are ids upstream systems use when nobody is logged in.
var placeholders = map[string]struct{}{
	"anonymous": {},
	"default":   {},
	"guest":     {},
}

// Valid reports whether id names a real user.
func Valid(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	_, placeholder := placeholders[strings.ToLower(id)]
	return !placeholder
}

// HeaderProvider trusts a header injected by a reverse proxy.
type HeaderProvider struct {
	Header string
}

func NewHeaderProvider(header string) HeaderProvider {
	if strings.TrimSpace(header) == "" {
		header = DefaultHeader
	}
	return HeaderProvider{Header: header}
}

func (p HeaderProvider) CurrentUser(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(p.Header))
	if !Valid(id) {
		return "", domain.ErrMissingIdentity
	}
	return id, nil
}

type ctxKey struct{}

// WithUser returns a copy of ctx carrying userID.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// FromContext returns the user stored by WithUser.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && Valid(id)
}
