// Package route builds the immutable route table and resolves request paths
// against it.
//
// Resolution is first-match-wins in a fixed priority order: the API prefix,
// then the dynamic routes in declaration order, then the fallback. Matching
// is a plain string prefix test, so a route "/api" also matches "/apix".
package route

import (
	"strings"

	"dispatch-proxy-go/internal/model"
)

// APIPrefix is the fixed prefix bound to the API target.
const APIPrefix = "/api"

// Resolution names used for the fixed routes.
const (
	NameAPI     = "api"
	NameDefault = "default"
)

// Entry is one raw route definition as read from configuration.
type Entry struct {
	Path   string
	Target string
	Mode   string
}

// Target is a statically configured upstream with its dispatch mode.
type Target struct {
	URL  string
	Mode model.Mode
}

// Route maps a path prefix to an upstream target.
type Route struct {
	MatchPath string
	Target    string
	Mode      model.Mode
}

// Table is the ordered, read-only route table shared by all requests.
type Table struct {
	routes   []Route
	api      Target
	fallback Target
}

// Build constructs a Table from entries. Entries are consumed in order and the
// scan stops at the first entry missing a path or a target; later entries are
// ignored even if complete.
func Build(entries []Entry, api, fallback Target) *Table {
	routes := make([]Route, 0, len(entries))
	for _, e := range entries {
		if e.Path == "" || e.Target == "" {
			break
		}
		p := e.Path
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		routes = append(routes, Route{
			MatchPath: p,
			Target:    e.Target,
			Mode:      model.ParseMode(e.Mode),
		})
	}
	return &Table{
		routes:   routes,
		api:      withDefaultMode(api),
		fallback: withDefaultMode(fallback),
	}
}

func withDefaultMode(t Target) Target {
	t.Mode = model.ParseMode(string(t.Mode))
	return t
}

// Routes returns a copy of the dynamic routes in declaration order.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// API returns the target bound to APIPrefix.
func (t *Table) API() Target { return t.api }

// Fallback returns the target used when nothing else matches.
func (t *Table) Fallback() Target { return t.fallback }
