package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	// ErrConnectTimeout means the handshake did not complete inside the
	// configured bounded wait.
	ErrConnectTimeout = errors.New("notification channel: connect timed out")

	// ErrUnauthorized means the broker rejected the handshake for an
	// authorization reason. Callers should force re-authentication instead of
	// retrying blindly.
	ErrUnauthorized = errors.New("notification channel: broker rejected credentials")

	// ErrChannelClosed means Disconnect was already called on this instance.
	ErrChannelClosed = errors.New("notification channel: already torn down")
)

// classifyDialError maps a raw dial failure onto the typed errors above.
// Scanning the message for ACCESS_REFUSED is an acknowledged fragile
// heuristic: the broker reports authorization rejections only as text.
func classifyDialError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "ACCESS_REFUSED") {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrConnectTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrConnectTimeout, err)
	}
	return fmt.Errorf("notification channel: dial: %w", err)
}
