package plugins

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/geodispatch/core/factory"
)

func TestBuiltinTransportsRegistered(t *testing.T) {
	assert.ElementsMatch(t, []string{"kafka", "mqtt", "redis", "websocket"}, Transports())
}

func TestNewTransportWebsocket(t *testing.T) {
	s, err := NewTransport(factory.ModuleConfig{Type: "websocket", Conf: map[string]any{"buffer": "8"}})
	require.NoError(t, err)
	_, ok := s.(http.Handler)
	assert.True(t, ok)
	assert.NoError(t, s.Close())
}

func TestNewTransportRedisLazyConnect(t *testing.T) {
	s, err := NewTransport(factory.ModuleConfig{Type: "redis", Conf: map[string]any{"url": "redis://localhost:6379/1"}})
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestNewTransportErrors(t *testing.T) {
	_, err := NewTransport(factory.ModuleConfig{Type: "carrier-pigeon"})
	assert.Error(t, err)
	_, err = NewTransport(factory.ModuleConfig{Type: "kafka", Conf: map[string]any{}})
	assert.Error(t, err)
	_, err = NewTransport(factory.ModuleConfig{Type: "mqtt", Conf: map[string]any{}})
	assert.Error(t, err)
	_, err = NewTransport(factory.ModuleConfig{Type: "redis", Conf: map[string]any{"url": "::bad"}})
	assert.Error(t, err)
}
