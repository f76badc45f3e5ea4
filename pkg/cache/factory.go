package cache

import (
	"fmt"
	"net/url"
	"strings"
)

// Open builds a tier from a DSN:
//
//	postgres://...  durable shared tier (Postgres)
//	memory://       in-process tier
//	file:///path    local BoltDB tier
//	/path/cache.db  local BoltDB tier (bare path)
func Open(dsn string) (Cache, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("empty cache dsn")
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid cache dsn: %w", err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return NewPostgresCache(dsn)
	case "memory", "mem":
		return NewMemoryCache(), nil
	case "", "file":
		path := parsed.Path
		if path == "" {
			path = parsed.Opaque
		}
		if path == "" {
			path = dsn
		}
		return NewBoltCache(path)
	default:
		return nil, fmt.Errorf("unsupported cache dsn scheme: %s", parsed.Scheme)
	}
}
