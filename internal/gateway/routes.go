package gateway

import (
	"sort"
	"strings"

	"github.com/vyrodovalexey/marketgw/internal/config"
)

// route is a configured prefix route.
type route struct {
	config.RouteConfig
}

// target returns the backend path for an inbound path matched by r.
func (r route) target(path string) string {
	strip := r.StripPrefix
	if strip == "" {
		return path
	}
	trimmed := strings.TrimPrefix(path, strip)
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	return trimmed
}

// routeTable matches inbound paths by longest prefix on a segment boundary.
type routeTable struct {
	routes []route
}

func newRouteTable(routes []config.RouteConfig) *routeTable {
	t := &routeTable{routes: make([]route, 0, len(routes))}
	for _, rc := range routes {
		rc.Prefix = strings.TrimRight(rc.Prefix, "/")
		if rc.Prefix == "" {
			rc.Prefix = "/"
		}
		t.routes = append(t.routes, route{RouteConfig: rc})
	}
	sort.SliceStable(t.routes, func(i, j int) bool {
		return len(t.routes[i].Prefix) > len(t.routes[j].Prefix)
	})
	return t
}

func (t *routeTable) match(path string) (route, bool) {
	for _, r := range t.routes {
		if matchesPrefix(path, r.Prefix) {
			return r, true
		}
	}
	return route{}, false
}

func matchesPrefix(path, prefix string) bool {
	if prefix == "/" {
		return strings.HasPrefix(path, "/")
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}
