// Package emailgw is the email-delivery contract of spec §6c:
// send(recipient, subject, template, ctx) -> bool. Out of scope beyond its
// contract boundary; this package exists so components that trigger
// notifications (e.g. TTL expiry, device-replacement) compile against a real
// interface instead of an inline callback.
package emailgw

import "context"

// Gateway is the narrow contract every component depends on.
type Gateway interface {
	Send(ctx context.Context, recipient, subject, template string, data map[string]any) (bool, error)
}

// Noop discards every message; used where no email backend is configured.
type Noop struct{}

func (Noop) Send(ctx context.Context, recipient, subject, template string, data map[string]any) (bool, error) {
	return true, nil
}
