// Package config reads the service configuration from the environment.
package config

import (
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPort            = 3000
	DefaultDataFile        = "./data.json"
	DefaultShutdownTimeout = 5 * time.Second
)

// Config is the process configuration.
type Config struct {
	Host            string
	Port            int
	DataFile        string
	Backend         string
	IDStrategy      string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Load builds a Config from getenv, usually os.Getenv. Unset or unusable
// values fall back to their defaults.
func Load(getenv func(string) string) Config {
	env := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	var origins []string
	for _, o := range strings.Split(env("ALLOWED_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	shutdown, err := time.ParseDuration(env("SHUTDOWN_TIMEOUT", ""))
	if err != nil || shutdown <= 0 {
		shutdown = DefaultShutdownTimeout
	}

	return Config{
		Host:            env("HOST", ""),
		Port:            ParsePort(getenv("PORT")),
		DataFile:        env("DATA_FILE", DefaultDataFile),
		Backend:         env("STORE_BACKEND", "json"),
		IDStrategy:      env("ID_STRATEGY", "uuid"),
		AllowedOrigins:  origins,
		ShutdownTimeout: shutdown,
	}
}

// ParsePort returns s as a TCP port, or DefaultPort when s is empty or not
// in 1..65535.
func ParsePort(s string) int {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || p < 1 || p > 65535 {
		return DefaultPort
	}
	return p
}
