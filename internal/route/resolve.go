package route

import (
	"strings"

	"dispatch-proxy-go/internal/model"
)

// Resolution is the outcome of matching one request path.
type Resolution struct {
	Name        string // "api", "default", or the matched route's path
	Target      string // empty when the selected route has no upstream configured
	StripPrefix int
	Mode        model.Mode
}

// Resolve selects the upstream for path. It never fails; a resolution with an
// empty Target is the caller's configuration error to report.
func (t *Table) Resolve(path string) Resolution {
	if strings.HasPrefix(path, APIPrefix) {
		return Resolution{
			Name:        NameAPI,
			Target:      t.api.URL,
			StripPrefix: len(APIPrefix),
			Mode:        t.api.Mode,
		}
	}

	for _, r := range t.routes {
		if strings.HasPrefix(path, r.MatchPath) {
			return Resolution{
				Name:        r.MatchPath,
				Target:      r.Target,
				StripPrefix: len(r.MatchPath),
				Mode:        r.Mode,
			}
		}
	}

	return Resolution{
		Name:   NameDefault,
		Target: t.fallback.URL,
		Mode:   t.fallback.Mode,
	}
}

// TargetURL joins the resolved target with the unmatched remainder of path and
// the encoded query.
func (r Resolution) TargetURL(path string, query model.Query) string {
	rest := "/"
	if r.StripPrefix < len(path) {
		rest = path[r.StripPrefix:]
	}
	if qs := query.Encode(); qs != "" {
		return r.Target + rest + "?" + qs
	}
	return r.Target + rest
}

// NormalizePath maps "" to "/" and drops a single trailing slash from any
// longer path.
func NormalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		return p[:len(p)-1]
	}
	return p
}
