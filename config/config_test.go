package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, env := range []string{EnvDIDMethod, EnvRegistryURL, EnvListenAddr, EnvLogLevel, EnvRegistryRetries} {
		t.Setenv(env, "")
	}

	cfg := Load()
	assert.Equal(t, DefaultDIDMethod, cfg.DIDMethod)
	assert.Equal(t, DefaultRegistryURL, cfg.RegistryURL)
	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, uint64(DefaultRegistryRetries), cfg.RegistryRetries)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv(EnvDIDMethod, "did:example")
	t.Setenv(EnvRegistryURL, "http://registry.local")
	t.Setenv(EnvListenAddr, "127.0.0.1:9000")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvRegistryRetries, "5")

	cfg := Load()
	assert.Equal(t, "did:example", cfg.DIDMethod)
	assert.Equal(t, "http://registry.local", cfg.RegistryURL)
	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, uint64(5), cfg.RegistryRetries)
}

func TestRegistryRetriesIgnoresGarbage(t *testing.T) {
	t.Setenv(EnvRegistryRetries, "many")
	assert.Equal(t, uint64(DefaultRegistryRetries), RegistryRetries())
}
