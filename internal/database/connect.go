package database

import (
	"context"
	"fmt"
	"time"
)

const defaultConnectTimeout = 10 * time.Second

// Verify pings a freshly opened backend within timeout and releases it when the
// ping fails, so callers never hold a half-open client.
func Verify(ctx context.Context, backend string, timeout time.Duration, ping func(context.Context) error, release func()) error {
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := ping(ctx); err != nil {
		release()
		return fmt.Errorf("%s ping: %w", backend, err)
	}
	return nil
}
