//go:generate mockgen -source=contracts.go -destination=push_mocks_test.go -package=push_test

package push

import (
	"context"
	"errors"
	"time"
)

// ErrUndeliverable is returned by a Sender when the recipient has no reachable channel.
// Retrying such a send cannot succeed.
var ErrUndeliverable = errors.New("recipient undeliverable")

// Sender delivers one out-of-band message (SMS or push) to a recipient.
type Sender interface {
	Send(ctx context.Context, to Recipient, message string) error
}

// Ledger remembers handed-off deliveries across redelivered stream messages.
type Ledger interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
