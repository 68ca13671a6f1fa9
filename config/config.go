package config

import (
	"os"
	"strconv"
)

// Default values
const (
	DefaultDIDMethod       = "did:trackback"
	DefaultRegistryURL     = ""
	DefaultListenAddr      = ":8080"
	DefaultLogLevel        = "info"
	DefaultRegistryRetries = 2
)

// Environment variable names
const (
	EnvDIDMethod       = "TRACKBACK_DID_METHOD"
	EnvRegistryURL     = "TRACKBACK_REGISTRY_URL"
	EnvListenAddr      = "TRACKBACK_LISTEN_ADDR"
	EnvLogLevel        = "TRACKBACK_LOG_LEVEL"
	EnvRegistryRetries = "TRACKBACK_REGISTRY_RETRIES"
)

// Config is the resolved runtime configuration of an agent process.
type Config struct {
	DIDMethod       string
	RegistryURL     string
	ListenAddr      string
	LogLevel        string
	RegistryRetries uint64
}

// Load reads every setting from the environment, falling back to defaults.
func Load() Config {
	return Config{
		DIDMethod:       DIDMethod(),
		RegistryURL:     RegistryURL(),
		ListenAddr:      ListenAddr(),
		LogLevel:        LogLevel(),
		RegistryRetries: RegistryRetries(),
	}
}

// DIDMethod returns the DID method prefix from environment variable or default value
func DIDMethod() string {
	if method := os.Getenv(EnvDIDMethod); method != "" {
		return method
	}
	return DefaultDIDMethod
}

// RegistryURL returns the remote registry base URL. Empty means in-memory.
func RegistryURL() string {
	if url := os.Getenv(EnvRegistryURL); url != "" {
		return url
	}
	return DefaultRegistryURL
}

// ListenAddr returns the registry server listen address from environment variable or default value
func ListenAddr() string {
	if addr := os.Getenv(EnvListenAddr); addr != "" {
		return addr
	}
	return DefaultListenAddr
}

// LogLevel returns the log level from environment variable or default value
func LogLevel() string {
	if level := os.Getenv(EnvLogLevel); level != "" {
		return level
	}
	return DefaultLogLevel
}

// RegistryRetries returns how many times the HTTP backend retries a transient failure.
func RegistryRetries() uint64 {
	if s := os.Getenv(EnvRegistryRetries); s != "" {
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			return n
		}
	}
	return DefaultRegistryRetries
}
