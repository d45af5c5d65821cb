package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDuration_YAML(t *testing.T) {
	t.Parallel()

	var v struct {
		Timeout Duration `yaml:"timeout"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("timeout: 1m30s"), &v))
	assert.Equal(t, 90*time.Second, v.Timeout.Duration())

	err := yaml.Unmarshal([]byte("timeout: soon"), &v)
	assert.Error(t, err)
}

func TestDuration_JSON(t *testing.T) {
	t.Parallel()

	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"250ms"`), &d))
	assert.Equal(t, 250*time.Millisecond, d.Duration())

	require.NoError(t, json.Unmarshal([]byte(`null`), &d))
	assert.Zero(t, d.Duration())
}

func TestDuration_OrDefault(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Second, Duration(0).OrDefault(time.Second))
	assert.Equal(t, 2*time.Second, Duration(2*time.Second).OrDefault(time.Second))
}
