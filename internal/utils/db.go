package utils

import (
	"context"
	"fmt"
	"time"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// WaitForDB pings db every interval until it answers or timeout passes.
func WaitForDB(ctx context.Context, db Pinger, timeout, interval time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if err := db.Ping(ctx); err == nil {
			return nil
		} else if time.Now().After(deadline) {
			return fmt.Errorf("database not ready after %s: %w", timeout, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
