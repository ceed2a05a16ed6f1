// Package sender delivers one-time codes. DevSender is the only transport:
// it logs a masked delivery notice and keeps codes in an outbox that tests
// and local tooling can read.
package sender

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"custody/pkg/email"
)

type Delivery struct {
	Identity  string
	Code      string
	ExpiresAt time.Time
}

type DevSender struct {
	mu     sync.Mutex
	outbox map[string]Delivery
	logger *slog.Logger
}

func NewDevSender(logger *slog.Logger) *DevSender {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DevSender{outbox: make(map[string]Delivery), logger: logger}
}

// SendCode never logs the code itself.
func (d *DevSender) SendCode(ctx context.Context, identity, code string, expiresAt time.Time) error {
	d.mu.Lock()
	d.outbox[identity] = Delivery{Identity: identity, Code: code, ExpiresAt: expiresAt}
	d.mu.Unlock()
	d.logger.InfoContext(ctx, "one-time code delivered",
		"recipient", email.Mask(identity),
		"expires_at", expiresAt,
	)
	return nil
}

// Last returns the most recent code sent to identity.
func (d *DevSender) Last(identity string) (Delivery, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delivery, ok := d.outbox[identity]
	return delivery, ok
}
