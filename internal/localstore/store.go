// Package localstore is the client's durable key/value storage. It plays the
// role the browser's localStorage plays for the web storefront: three keys
// (token, user, cart) persisted across restarts, removed together on logout.
package localstore

import (
	"context"
	"errors"
	"strings"
)

const (
	KeyToken = "token"
	KeyUser  = "user"
	KeyCart  = "cart"
)

// ErrNoValue is returned by Get when the key holds nothing. Callers treat it
// as "logged out" / "empty cart", never as a failure.
var ErrNoValue = errors.New("no value")

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	// Reset removes every key the store holds. Used by logout so no cart can
	// outlive its session.
	Reset(ctx context.Context) error

	Close() error
}

// Open picks a backend from the DSN: redis:// and postgres:// are explicit,
// anything else is treated as a sqlite path (":memory:" included).
func Open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case strings.HasPrefix(dsn, "redis://"), strings.HasPrefix(dsn, "rediss://"):
		return openRedis(ctx, dsn)
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return openPostgres(ctx, dsn)
	default:
		if dsn == "" {
			dsn = "shopfront.db"
		}
		return openSQLite(ctx, dsn)
	}
}
