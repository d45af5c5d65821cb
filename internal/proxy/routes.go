package proxy

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/vyrodovalexey/marketgw/internal/config"
)

// Backend is a named upstream service.
type Backend struct {
	Name    string
	URL     string
	Timeout time.Duration
}

// RouteTable maps backend names to their routes. It is immutable once built.
type RouteTable struct {
	backends map[string]Backend
}

// NewRouteTable builds a table from configured backends.
func NewRouteTable(backends map[string]config.BackendConfig) (*RouteTable, error) {
	t := &RouteTable{backends: make(map[string]Backend, len(backends))}
	for name, b := range backends {
		u, err := url.Parse(b.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("backend %q has invalid url %q", name, b.URL)
		}
		t.backends[name] = Backend{
			Name:    name,
			URL:     strings.TrimRight(b.URL, "/"),
			Timeout: b.Timeout.OrDefault(config.DefaultBackendTimeout),
		}
	}
	return t, nil
}

// Lookup returns the backend named name.
func (t *RouteTable) Lookup(name string) (Backend, bool) {
	b, ok := t.backends[name]
	return b, ok
}

// Names returns the configured backend names in order.
func (t *RouteTable) Names() []string {
	names := make([]string, 0, len(t.backends))
	for name := range t.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BreakerKey returns the circuit key guarding calls to backend.
func BreakerKey(backend string) string {
	return "proxy-" + backend
}
