package wyoming

import (
	"bufio"
	"context"
	"net"
	"time"
)

// Client is a minimal Wyoming protocol client: dial a server, send and
// receive framed messages. internal/voice uses it to drive the STT and
// TTS servers this package also implements, the way a Home Assistant
// satellite would.
type Client struct {
	conn net.Conn
	r    *bufio.Reader
}

// Dial connects to a Wyoming server at addr ("host:port").
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, r: bufio.NewReader(conn)}, nil
}

// Send writes a message frame.
func (c *Client) Send(m Message) error {
	return WriteMessage(c.conn, m)
}

// Receive reads the next message frame, blocking until one arrives or
// the deadline (if any) elapses.
func (c *Client) Receive(deadline time.Time) (Message, error) {
	if !deadline.IsZero() {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return Message{}, err
		}
	}
	return ReadMessage(c.r)
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
