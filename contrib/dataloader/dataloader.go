// Package dataloader provides the batching helpers used to reassemble the
// results of an eager load: key normalization, grouping of related rows by
// their matching key and reordering of batches by requested keys.
//
// # Basic Usage
//
// Load every related row of a batch with one query, then regroup them by
// the foreign key:
//
//	keys := dataloader.UniqueKeys(userIDs)
//	posts, _ := drv.Table("posts").WhereIn("author_id", keys).Get(ctx)
//	grouped := dataloader.GroupByKey(posts, func(p sql.Row) any {
//	    return dataloader.Normalize(p["author_id"])
//	})
//	// grouped[dataloader.Normalize(userID)] contains the posts of that user
//
// Drivers do not agree on the Go type of a key: SQLite returns int64,
// MySQL may return a numeric string and a caller may pass an int. Normalize
// maps all of them to one comparable value.
package dataloader

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// ErrNotFound is returned when a value is not found in a batch result.
var ErrNotFound = errors.New("dataloader: value not found")

// KeyFunc extracts a key from a value.
type KeyFunc[K comparable, V any] func(V) K

// Normalize maps a key value to a canonical comparable form. Integers of
// any width, whole floats and integer strings become int64, byte slices
// become strings and other non-comparable values are formatted with
// fmt.Sprint. nil stays nil.
func Normalize(key any) any {
	switch v := key.(type) {
	case nil:
		return nil
	case int64:
		return v
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint:
		if uint64(v) <= math.MaxInt64 {
			return int64(v)
		}
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v)
		}
		return strconv.FormatUint(v, 10)
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return int64(v)
		}
		return v
	case float32:
		return Normalize(float64(v))
	case []byte:
		return Normalize(string(v))
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && strconv.FormatInt(n, 10) == v {
			return n
		}
		return v
	}
	if t := reflect.TypeOf(key); !t.Comparable() {
		return fmt.Sprint(key)
	}
	return key
}

// UniqueKeys normalizes keys, dropping nil values and duplicates. The
// first occurrence order is kept.
func UniqueKeys(keys []any) []any {
	seen := make(map[any]struct{}, len(keys))
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		k = Normalize(k)
		if k == nil {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// OrderByKeys reorders values to match the order of requested keys.
// Missing values are represented as zero values with corresponding errors.
//
// The result slices have the same length as keys and follow their order.
func OrderByKeys[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) ([]V, []error) {
	lookup := make(map[K]V, len(values))
	for _, v := range values {
		lookup[keyFn(v)] = v
	}
	result := make([]V, len(keys))
	errs := make([]error, len(keys))
	for i, key := range keys {
		if v, ok := lookup[key]; ok {
			result[i] = v
		} else {
			errs[i] = ErrNotFound
		}
	}
	return result, errs
}

// OrderByKeysNoError reorders values to match the order of requested keys.
// Returns zero values for missing keys without errors.
// Use this when missing values are acceptable (e.g., optional relations).
func OrderByKeysNoError[K comparable, V any](keys []K, values []V, keyFn KeyFunc[K, V]) []V {
	result, _ := OrderByKeys(keys, values, keyFn)
	return result
}

// GroupByKey groups values by a key function, keeping their order within
// each group. Useful for one-to-many relations where many rows share the
// same foreign key.
func GroupByKey[K comparable, V any](values []V, keyFn KeyFunc[K, V]) map[K][]V {
	result := make(map[K][]V)
	for _, v := range values {
		key := keyFn(v)
		result[key] = append(result[key], v)
	}
	return result
}

// OrderGroupsByKeys reorders grouped values to match the order of requested keys.
// Returns a slice of slices where each inner slice contains the values for that key.
func OrderGroupsByKeys[K comparable, V any](keys []K, groups map[K][]V) [][]V {
	result := make([][]V, len(keys))
	for i, key := range keys {
		result[i] = groups[key]
	}
	return result
}
