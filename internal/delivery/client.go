// internal/delivery/client.go
package delivery

import (
	"context"
	"fmt"

	"github.com/overlaypush/broadcast-backend/internal/model"
)

// Client sends one notification to one recipient. Implementations have no
// side effect beyond that single send.
type Client interface {
	Send(ctx context.Context, token string, cfg model.NotificationConfig, credential string) error
}

// Error is a failed delivery attempt. Any non-2xx transport response is
// treated as retryable up to the dispatcher's per-recipient budget.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("delivery failed with status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("delivery failed with status %d", e.StatusCode)
}
