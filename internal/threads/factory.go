package threads

import (
	"context"
	"fmt"
	"strings"
)

// OpenBackend selects a storage backend by name: json, bolt or postgres.
func OpenBackend(ctx context.Context, kind, path, databaseURL string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "json":
		return NewJSONBackend(path), nil
	case "bolt":
		return OpenBoltBackend(path)
	case "postgres":
		if strings.TrimSpace(databaseURL) == "" {
			return nil, fmt.Errorf("threads: postgres backend requires DATABASE_URL")
		}
		return NewPostgresBackend(ctx, databaseURL)
	default:
		return nil, fmt.Errorf("threads: unknown backend %q", kind)
	}
}
