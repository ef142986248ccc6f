package remote

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
)

// Socket implements Stream over the authority's WebSocket changefeed.
type Socket struct {
	baseURL string
	apiKey  string
}

// NewSocket creates a Stream for the authority at baseURL. The http(s)
// scheme is rewritten to ws(s) when dialing.
func NewSocket(baseURL, apiKey string) *Socket {
	return &Socket{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

// Subscribe dials the changefeed endpoint for one entity and pumps its
// frames into the returned channel until the stop function is called or the
// connection drops.
func (s *Socket) Subscribe(ctx context.Context, entity Entity) (<-chan Notification, func(), error) {
	url := wsURL(s.baseURL) + "/api/ws?entity=" + string(entity)

	var opts *websocket.DialOptions
	if s.apiKey != "" {
		opts = &websocket.DialOptions{
			HTTPHeader: http.Header{"X-API-Key": []string{s.apiKey}},
		}
	}

	conn, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		return nil, nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	ch := make(chan Notification, 64)

	go func() {
		defer close(ch)
		defer conn.Close(websocket.StatusNormalClosure, "")
		for {
			_, data, err := conn.Read(streamCtx)
			if err != nil {
				if streamCtx.Err() == nil {
					slog.Warn("changefeed connection lost", "entity", entity, "error", err)
				}
				return
			}
			var n Notification
			if err := json.Unmarshal(data, &n); err != nil {
				slog.Warn("malformed changefeed frame", "entity", entity, "error", err)
				continue
			}
			select {
			case ch <- n:
			case <-streamCtx.Done():
				return
			}
		}
	}()

	return ch, cancel, nil
}

func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
