// Package route translates between watershed selections and application routes.
package route

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Pattern is the application route carrying a watershed identifier.
const Pattern = "/watershed/{id}"

// Bridge is stateless apart from its matcher: the same path always yields the same id.
type Bridge struct {
	mux      *chi.Mux
	navigate func(path string)
}

// NewBridge returns a bridge sending click navigations to navigate.
func NewBridge(navigate func(path string)) *Bridge {
	mux := chi.NewRouter()
	mux.Get(Pattern, func(http.ResponseWriter, *http.Request) {})
	return &Bridge{mux: mux, navigate: navigate}
}

// PathFor returns the route of a watershed.
func (b *Bridge) PathFor(id string) string {
	return "/watershed/" + url.PathEscape(id)
}

// Selected extracts the watershed id from a route. Absent or malformed ids yield "".
func (b *Bridge) Selected(path string) string {
	if path == "" {
		return ""
	}
	u, err := url.Parse(path)
	if err != nil {
		return ""
	}
	p := u.EscapedPath()
	if p == "" {
		return ""
	}
	rctx := chi.NewRouteContext()
	if !b.mux.Match(rctx, http.MethodGet, p) {
		return ""
	}
	id, err := url.PathUnescape(rctx.URLParam("id"))
	if err != nil {
		return ""
	}
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, "/\x00") {
		return ""
	}
	return id
}

// Click emits a navigation to the watershed's route without waiting for it.
func (b *Bridge) Click(id string) {
	if id == "" || b.navigate == nil {
		return
	}
	b.navigate(b.PathFor(id))
}
