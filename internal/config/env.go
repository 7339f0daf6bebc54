package config

import "strconv"

// Environment keys for numbered routes, suffixed with _1, _2, ...
const (
	envRoutePath   = "PROXY_PATH_"
	envRouteTarget = "TARGET_URL_"
	envRouteMode   = "PROXY_MODE_"
)

// RoutesFromEnv enumerates PROXY_PATH_n / TARGET_URL_n / PROXY_MODE_n starting
// at n=1. The scan stops at the first n where the path or target is unset or
// empty, so a gap hides every later index.
func RoutesFromEnv(lookup func(string) (string, bool)) []RouteConfig {
	var routes []RouteConfig
	for i := 1; ; i++ {
		n := strconv.Itoa(i)
		path, _ := lookup(envRoutePath + n)
		target, _ := lookup(envRouteTarget + n)
		if path == "" || target == "" {
			return routes
		}
		mode, _ := lookup(envRouteMode + n)
		routes = append(routes, RouteConfig{Path: path, TargetURL: target, Mode: mode})
	}
}
