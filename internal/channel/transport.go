package channel

import (
	"context"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Transport is one established connection. The channel owns exactly one
// live transport at a time and replaces it across reconnects.
type Transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, v interface{}) error
	Close() error
}

// DialFunc establishes a transport to the endpoint. Tests inject a fake.
type DialFunc func(ctx context.Context, url string) (Transport, error)

type wsTransport struct {
	c *websocket.Conn
}

func (w *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, b, err := w.c.Read(ctx)
	return b, err
}

func (w *wsTransport) Write(ctx context.Context, v interface{}) error {
	return wsjson.Write(ctx, w.c, v)
}

func (w *wsTransport) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "client closing")
}

func DialWebsocket(ctx context.Context, url string) (Transport, error) {
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		return nil, err
	}
	c.SetReadLimit(1 << 20)
	return &wsTransport{c: c}, nil
}
