// Package wsclient is the concrete engine.ClusterWsClient: a single
// duplex Solana logsSubscribe connection built on
// github.com/clevergo/websocket, the websocket library already present
// in the corpus go.mod.
package wsclient

import (
	"context"
	"sync"
	"time"

	"github.com/clevergo/websocket"

	"github.com/solbot/core/log"
)

// Client wraps one websocket.Conn. Send is the only method callable
// concurrently with the read loop; Open/Close are expected to be
// called from a single owner goroutine (ClusterRuntime enforces this).
type Client struct {
	url string

	mu   sync.Mutex
	conn *websocket.Conn

	onMessage func(raw []byte)
	onOpen    func()
	onClose   func()
	onError   func(err error)

	logger log.Logger
}

func New(url string) *Client {
	return &Client{url: url, logger: log.NewModuleLogger(log.WSClient)}
}

func (c *Client) OnMessage(h func(raw []byte)) { c.onMessage = h }
func (c *Client) OnOpen(h func())              { c.onOpen = h }
func (c *Client) OnClose(h func())             { c.onClose = h }
func (c *Client) OnError(h func(err error))    { c.onError = h }

// Open dials the endpoint and starts the read loop in a background
// goroutine; it returns as soon as the handshake completes, not when
// the connection closes.
func (c *Client) Open(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	if c.onOpen != nil {
		c.onOpen()
	}

	go c.readLoop(conn)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if c.onError != nil {
				c.onError(err)
			}
			if c.onClose != nil {
				c.onClose()
			}
			return
		}
		if c.onMessage != nil {
			c.onMessage(raw)
		}
	}
}

// Send writes one text frame. clevergo/websocket.Conn does not permit
// concurrent writers, so this is serialized behind c.mu; the engine's
// own single-writer-per-cluster design means contention here should be
// rare, not absent.
func (c *Client) Send(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errNotOpen
	}
	if dl, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(dl)
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

var errNotOpen = wsNotOpenError{}

type wsNotOpenError struct{}

func (wsNotOpenError) Error() string { return "websocket connection not open" }
