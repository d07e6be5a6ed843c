package storage

import (
	"context"
	"errors"
	"path"
	"strings"
)

var (
	ErrNotFound = errors.New("storage: object not found")
)

// Backend is a key/blob store. Keys are slash separated and relative to the
// backend root. Write replaces the whole object atomically: readers observe
// either the previous bytes or the new bytes, never a partial object.
type Backend interface {
	Exists(ctx context.Context, key string) (bool, error)
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	// List returns every key under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Join builds a clean slash separated key.
func Join(parts ...string) string {
	return strings.TrimPrefix(path.Join(parts...), "/")
}

// Segments splits a key into its path segments.
func Segments(key string) []string {
	return strings.Split(strings.Trim(key, "/"), "/")
}

func withPrefix(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return Join(prefix, key)
}

func withoutPrefix(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return strings.TrimPrefix(strings.TrimPrefix(key, strings.TrimSuffix(prefix, "/")), "/")
}
