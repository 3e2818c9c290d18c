package auth

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// LoginThrottle counts failed logins per username in a fixed window that
// starts at the first failure. Unknown usernames are counted too.
type LoginThrottle struct {
	cache       *gocache.Cache
	maxFailures int
	window      time.Duration
}

// NewLoginThrottle returns a throttle. maxFailures <= 0 disables it.
func NewLoginThrottle(maxFailures int, window time.Duration) *LoginThrottle {
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &LoginThrottle{
		cache:       gocache.New(window, 2*window),
		maxFailures: maxFailures,
		window:      window,
	}
}

// Allowed reports whether another attempt may be made for key.
func (t *LoginThrottle) Allowed(key string) bool {
	if t.maxFailures <= 0 {
		return true
	}
	v, found := t.cache.Get(key)
	if !found {
		return true
	}
	n, _ := v.(int)
	return n < t.maxFailures
}

// Failure records a failed attempt and returns the count in the window.
func (t *LoginThrottle) Failure(key string) int {
	if t.maxFailures <= 0 {
		return 0
	}
	if err := t.cache.Add(key, 1, t.window); err == nil {
		return 1
	}
	n, err := t.cache.IncrementInt(key, 1)
	if err != nil {
		// Expired between Add and IncrementInt.
		t.cache.Set(key, 1, t.window)
		return 1
	}
	return n
}

// Reset clears the counter after a successful login.
func (t *LoginThrottle) Reset(key string) {
	t.cache.Delete(key)
}
