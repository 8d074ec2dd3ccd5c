package http

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nextdooroldwang/sprite-house/internal/domain"
	"github.com/nextdooroldwang/sprite-house/internal/relay"
	"github.com/nextdooroldwang/sprite-house/lib/logger/sl"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Enough for SDP payloads.
	maxMessageSize = 64 * 1024

	sendBufferSize = 32
)

// wsClient owns one signaling socket: a read pump dispatching decoded
// messages to the relay and a write pump draining the send queue. It is the
// relay.Sender for its connection id.
type wsClient struct {
	id    string
	conn  *websocket.Conn
	relay *relay.Relay
	log   *slog.Logger
	send  chan domain.Envelope
	done  chan struct{}
}

var _ relay.Sender = (*wsClient)(nil)

func newWSClient(id string, conn *websocket.Conn, rel *relay.Relay, log *slog.Logger) *wsClient {
	return &wsClient{
		id:    id,
		conn:  conn,
		relay: rel,
		log:   log.With(slog.String("conn_id", id)),
		send:  make(chan domain.Envelope, sendBufferSize),
		done:  make(chan struct{}),
	}
}

// Send enqueues an outbound event. It never blocks; a full queue drops the
// event so one slow consumer cannot stall the relay. The queue is never
// closed — a forward racing the disconnect must stay a silent no-op, so
// events enqueued after teardown are simply never drained.
func (c *wsClient) Send(env domain.Envelope) {
	select {
	case c.send <- env:
	default:
		c.log.Debug("dropping outbound event", slog.String("type", string(env.Type)))
	}
}

// readPump reads frames until the connection dies, handing each decoded
// message to the relay. There is at most one reader per connection.
func (c *wsClient) readPump() {
	defer func() {
		c.relay.Disconnect(c.id)
		close(c.done)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Info("connection closed", sl.Err(err))
			}
			return
		}

		msg, err := domain.ParseInbound(raw)
		if err != nil {
			if errors.Is(err, domain.ErrUnknownMessage) {
				c.log.Debug("unknown message kind", sl.Err(err))
			} else {
				c.log.Warn("malformed message", sl.Err(err))
			}
			continue
		}

		c.relay.Handle(c.id, msg)
	}
}

// writePump drains the send queue to the socket and keeps the connection
// alive with pings. There is at most one writer per connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case env := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
