package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitinkhare/patterncore/internal/broker"
	"github.com/nitinkhare/patterncore/internal/config"
)

func TestNewBroker_SimulateRequiresNoCredentials(t *testing.T) {
	b, err := newBroker(config.BrokerConfig{Name: "simulate"})
	require.NoError(t, err)
	require.NotNil(t, b)
}

func TestNewBroker_UnknownNameFails(t *testing.T) {
	_, err := newBroker(config.BrokerConfig{Name: "does-not-exist"})
	assert.Error(t, err)
}

func TestNewBroker_KiteCarriesCredentialsThrough(t *testing.T) {
	b, err := newBroker(config.BrokerConfig{
		Name:        "kite",
		APIKey:      "key",
		APISecret:   "secret",
		AccessToken: "token",
		BaseURL:     "https://api.kite.trade",
	})
	require.NoError(t, err)
	_, ok := b.(*broker.KiteBroker)
	assert.True(t, ok)
}
