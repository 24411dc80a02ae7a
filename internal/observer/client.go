package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"
)

const clientBuffer = 64

// Client receives messages from a hub. Frames are read in the background so
// pings are answered even while the caller is not in Next.
type Client struct {
	conn *websocket.Conn
	msgs chan []byte
	done chan struct{}
	err  error
}

// Dial connects to a hub. addr may be host:port or a ws:// URL.
func Dial(ctx context.Context, addr string) (*Client, error) {
	target := addr
	if u, err := url.Parse(addr); err != nil || u.Scheme == "" || u.Host == "" {
		target = "ws://" + addr + "/ws"
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	c := &Client{
		conn: conn,
		msgs: make(chan []byte, clientBuffer),
		done: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// readLoop is the only sender on msgs. When the buffer is full the oldest
// frame is dropped.
func (c *Client) readLoop() {
	for {
		_, b, err := c.conn.ReadMessage()
		if err != nil {
			c.err = err
			close(c.done)
			return
		}
		select {
		case c.msgs <- b:
		default:
			select {
			case <-c.msgs:
			default:
			}
			c.msgs <- b
		}
	}
}

// Next blocks until the next message arrives. Buffered messages are
// delivered before a connection error.
func (c *Client) Next() (Message, error) {
	select {
	case b := <-c.msgs:
		return decodeMessage(b)
	default:
	}
	select {
	case b := <-c.msgs:
		return decodeMessage(b)
	case <-c.done:
		select {
		case b := <-c.msgs:
			return decodeMessage(b)
		default:
		}
		return Message{}, c.err
	}
}

func decodeMessage(b []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(b, &msg); err != nil {
		return msg, fmt.Errorf("decoding message: %w", err)
	}
	if msg.ProtocolVersion != ProtocolVersion {
		return msg, fmt.Errorf("unsupported protocol version %q", msg.ProtocolVersion)
	}
	return msg, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
