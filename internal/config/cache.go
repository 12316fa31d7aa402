package config

import (
	"strings"
	"time"
)

// CacheConfig defines settings for the lobby status response cache.
// When Enabled is false or no Redis client is configured, responses are
// not stored, but the Cache-Control header is still sent.  TTL is how
// long a status response may be served from Redis and is advertised as
// max-age; StaleWhileRevalidate is the extra window clients may reuse a
// response while refreshing it in the background.
type CacheConfig struct {
	Enabled              bool
	Methods              map[string]bool
	TTL                  time.Duration
	StaleWhileRevalidate time.Duration
	Prefix               string
	MaxBodyBytes         int
}

// LoadCacheConfig reads environment variables to build a CacheConfig.  Defaults
// keep status at most a few seconds stale.  All methods are upper-cased.
func LoadCacheConfig() CacheConfig {
	cfg := CacheConfig{
		Enabled:              envBool("CACHE_ENABLED", true),
		Methods:              parseMethods(envStr("CACHE_METHODS", "GET")),
		TTL:                  envDur("CACHE_TTL", 3*time.Second),
		StaleWhileRevalidate: envDur("CACHE_STALE_WHILE_REVALIDATE", 10*time.Second),
		Prefix:               envStr("CACHE_PREFIX", "cache"),
		MaxBodyBytes:         envInt("CACHE_MAX_BODY_BYTES", 1048576),
	}
	if cfg.TTL < time.Second {
		cfg.TTL = time.Second
	}
	if cfg.StaleWhileRevalidate < 0 {
		cfg.StaleWhileRevalidate = 0
	}
	return cfg
}

func parseMethods(s string) map[string]bool {
	m := map[string]bool{}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			m[p] = true
		}
	}
	return m
}
