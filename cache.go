package relq

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/relq/dialect/sql"
)

// Cache is the interface for caching query results.
// The cache package provides in-memory and Redis implementations.
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with an optional TTL.
	// If ttl is 0, the value should not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes all values with the given prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Clear removes all values from the cache.
	Clear(ctx context.Context) error
}

// CacheKey identifies a cached query result. Results of one table share
// the "table:" prefix, which Client.Flush removes. Related carries the
// generation tokens of the other tables the query reads.
type CacheKey struct {
	Table     string
	Operation string
	SQL       string
	Args      []any
	Related   []string
}

// String returns the string representation of the cache key: the table,
// the operation and a digest of the statement and its arguments.
func (k CacheKey) String() string {
	h := sha256.New()
	b, err := msgpack.Marshal(k.Args)
	if err != nil {
		b = []byte(fmt.Sprint(k.Args...))
	}
	h.Write([]byte(k.SQL))
	h.Write([]byte{0})
	h.Write(b)
	for _, r := range k.Related {
		h.Write([]byte{0})
		h.Write([]byte(r))
	}
	return k.Table + ":" + k.Operation + ":" + hex.EncodeToString(h.Sum(nil)[:16])
}

// encodeRows serializes rows for the cache.
func encodeRows(rows []sql.Row) ([]byte, error) {
	return msgpack.Marshal(rows)
}

// decodeRows restores rows written by encodeRows. Integers are decoded as
// int64 or uint64 and floats as float64.
func decodeRows(b []byte) ([]sql.Row, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.UseLooseInterfaceDecoding(true)
	var rows []sql.Row
	if err := dec.Decode(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}
