package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all configuration for a ringcache process
type Config struct {
	// Placement
	VirtualNodes int // virtual nodes per server on the hash ring

	// Seed servers created at startup
	SeedServers []string

	// HTTP monitoring API
	HTTPPort      int
	StatsInterval time.Duration // how often live stats are pushed to websocket clients

	// Logging (compatible with the pkg logger)
	LogLevel  string // trace, debug, info, warn, error
	LogFormat string // json, console
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		VirtualNodes:  150,
		HTTPPort:      8080,
		StatsInterval: 2 * time.Second,
		LogLevel:      "info",
		LogFormat:     "console",
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.VirtualNodes <= 0 {
		return fmt.Errorf("virtual nodes must be positive, got %d", c.VirtualNodes)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.StatsInterval <= 0 {
		return fmt.Errorf("stats interval must be positive, got %s", c.StatsInterval)
	}

	seen := make(map[string]bool, len(c.SeedServers))
	for _, id := range c.SeedServers {
		id = strings.TrimSpace(id)
		if id == "" {
			return fmt.Errorf("seed server id cannot be blank")
		}
		if seen[id] {
			return fmt.Errorf("duplicate seed server id: %s", id)
		}
		seen[id] = true
	}

	return nil
}

// ParseSeedServers parses a comma-separated list of server ids, trimming
// whitespace and dropping empty entries.
func ParseSeedServers(s string) []string {
	if s == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}
