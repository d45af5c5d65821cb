package proxy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/marketgw/internal/config"
)

func TestNewRouteTable(t *testing.T) {
	table, err := NewRouteTable(map[string]config.BackendConfig{
		"orders":  {URL: "http://orders:3002/"},
		"catalog": {URL: "http://catalog:3001", Timeout: config.Duration(2 * time.Second)},
	})
	require.NoError(t, err)

	orders, ok := table.Lookup("orders")
	require.True(t, ok)
	assert.Equal(t, "http://orders:3002", orders.URL)
	assert.Equal(t, config.DefaultBackendTimeout, orders.Timeout)

	catalog, ok := table.Lookup("catalog")
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, catalog.Timeout)

	assert.Equal(t, []string{"catalog", "orders"}, table.Names())

	_, ok = table.Lookup("ghost")
	assert.False(t, ok)
}

func TestNewRouteTable_RejectsInvalidURL(t *testing.T) {
	_, err := NewRouteTable(map[string]config.BackendConfig{"bad": {URL: "not a url"}})
	assert.Error(t, err)
}

func TestBreakerKey(t *testing.T) {
	assert.Equal(t, "proxy-orders", BreakerKey("orders"))
}
