// Package cache holds short-lived alert claims. A claim marks that one record
// already alerted for a fingerprint, suppressing repeats until it expires or
// is released.
package cache

import (
	"context"
	"time"
)

// Claims is the alert suppression store.
type Claims interface {
	// Claim takes key for holder unless an unexpired claim exists. It
	// reports whether the claim was taken.
	Claim(ctx context.Context, key, holder string, ttl time.Duration) (bool, error)
	// Holder returns the current holder of key.
	Holder(ctx context.Context, key string) (string, bool, error)
	// Release drops the claim on key. Releasing a free key is not an error.
	Release(ctx context.Context, key string) error
	Close() error
}

// AlertKey is the claim key for alerts on a fingerprint.
func AlertKey(fingerprint string) string {
	return "alert:" + fingerprint
}

// NoopClaims never suppresses: every claim succeeds and nothing is held.
type NoopClaims struct{}

func (NoopClaims) Claim(context.Context, string, string, time.Duration) (bool, error) {
	return true, nil
}

func (NoopClaims) Holder(context.Context, string) (string, bool, error) { return "", false, nil }

func (NoopClaims) Release(context.Context, string) error { return nil }

func (NoopClaims) Close() error { return nil }
