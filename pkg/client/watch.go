package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gridsync/gridsync/pkg/events"
	"github.com/gridsync/gridsync/pkg/types"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Watch connects to the server's event stream and delivers events on
// the returned channel until the context is cancelled or the
// connection drops. The channel is closed on exit.
func (c *Client) Watch(ctx context.Context) (<-chan *events.Event, error) {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1) + "/v1/events"

	opts := &websocket.DialOptions{}
	if c.token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + c.token}}
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, opts)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: event stream rejected", types.ErrUnauthorized)
		}
		return nil, fmt.Errorf("%w: %v", types.ErrTransient, err)
	}

	ch := make(chan *events.Event, 16)
	go func() {
		defer close(ch)
		defer conn.Close(websocket.StatusNormalClosure, "")
		for {
			var ev events.Event
			if err := wsjson.Read(ctx, conn, &ev); err != nil {
				return
			}
			select {
			case ch <- &ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
