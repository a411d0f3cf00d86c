package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// Watch subscribes to the document store's change feed over websocket and
// delivers events on the returned channel until ctx is cancelled or the
// connection drops. The channel is closed on exit.
//
// The feed is best effort. A consumer that loses it falls back to periodic
// reconciliation; nothing in the engine depends on it.
func (c *Client) Watch(ctx context.Context, logger *zap.Logger) (<-chan ChangeEvent, error) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/changes"

	var opts websocket.DialOptions
	if c.apiKey != "" {
		opts.HTTPHeader = map[string][]string{"X-API-Key": {c.apiKey}}
	}
	conn, _, err := websocket.Dial(ctx, wsURL, &opts)
	if err != nil {
		return nil, fmt.Errorf("%w: change feed dial failed: %v", ErrUnavailable, err)
	}

	events := make(chan ChangeEvent, 16)
	go func() {
		defer close(events)
		defer conn.Close(websocket.StatusNormalClosure, "watch stopped")

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Debug("change feed closed", zap.Error(err))
				}
				return
			}

			var ev ChangeEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				logger.Warn("dropping malformed change event", zap.Error(err))
				continue
			}

			select {
			case events <- ev:
			case <-ctx.Done():
				return
			default:
				// A full buffer means a sync-down is already overdue;
				// dropping the event loses nothing.
			}
		}
	}()
	return events, nil
}
