package cache

import "fmt"

// GenerateKey creates a cache key from a prefix and parts.
func GenerateKey(prefix string, parts ...any) string {
	key := prefix
	for _, p := range parts {
		key = fmt.Sprintf("%s:%v", key, p)
	}
	return key
}
