package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/marketgw/internal/cache"
	"github.com/vyrodovalexey/marketgw/internal/config"
)

func newTestCache(t *testing.T) cache.Cache {
	t.Helper()
	store, err := cache.New(&config.CacheConfig{Enabled: true, Type: config.CacheTypeMemory, MaxEntries: 100}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRouteTable_Match(t *testing.T) {
	table := newRouteTable([]config.RouteConfig{
		{Prefix: "/api/", Backend: "general"},
		{Prefix: "/api/orders", Backend: "orders"},
	})

	tests := []struct {
		path    string
		backend string
		found   bool
	}{
		{"/api/orders", "orders", true},
		{"/api/orders/1", "orders", true},
		{"/api/ordersx", "general", true},
		{"/api", "general", true},
		{"/apix", "", false},
		{"/", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			r, ok := table.match(tt.path)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.backend, r.Backend)
		})
	}
}

func TestRoute_Target(t *testing.T) {
	r := route{config.RouteConfig{Prefix: "/api/catalog", StripPrefix: "/api/catalog"}}
	assert.Equal(t, "/products/1", r.target("/api/catalog/products/1"))
	assert.Equal(t, "/", r.target("/api/catalog"))

	r = route{config.RouteConfig{Prefix: "/products"}}
	assert.Equal(t, "/products/1", r.target("/products/1"))
}
