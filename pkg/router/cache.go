package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cache"
)

// HttpCacheStatic caches the rendered static pages only. Pairing endpoints and
// the status stream must never be served from cache.
func HttpCacheStatic(ttl int, paths ...string) fiber.Handler {
	if ttl <= 0 {
		ttl = 60
	}
	static := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		static[p] = struct{}{}
	}
	return cache.New(cache.Config{
		Next: func(c *fiber.Ctx) bool {
			if c.Method() != fiber.MethodGet {
				return true
			}
			_, ok := static[c.Path()]
			return !ok
		},
		Expiration: time.Duration(ttl) * time.Second,
	})
}
