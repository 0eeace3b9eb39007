package cache

import (
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
)

// New picks a backend by name ("file", "redis" or "none"). namespace becomes
// the sub directory of dir for file caches and the key prefix for redis.
func New[T any](backend, dir string, client *redis.Client, namespace string, ttl time.Duration) Service[T] {
	switch backend {
	case "redis":
		if client != nil {
			return NewRedisCache[T](client, namespace, ttl)
		}
	case "none":
		return Noop[T]{}
	}
	return NewFileCache[T](filepath.Join(dir, namespace), ttl)
}
