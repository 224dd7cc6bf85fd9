package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"cryptobot/internal/model"
	"cryptobot/internal/session"

	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	readLimit    = 1 << 20 // replay uploads can be large
)

// client is a single WebSocket peer subscribed to the session.
type client struct {
	gw    *Gateway
	conn  *websocket.Conn
	obsID int

	send chan []byte
	done chan struct{}

	closeOnce sync.Once
}

func newClient(g *Gateway, conn *websocket.Conn, obsID int) *client {
	return &client{
		gw:    g,
		conn:  conn,
		obsID: obsID,
		send:  make(chan []byte, 256),
		done:  make(chan struct{}),
	}
}

// enqueue queues a message, dropping it when the client is too slow to
// keep the tick loop unblocked.
func (c *client) enqueue(msg []byte) {
	select {
	case c.send <- msg:
	default:
	}
}

// forward turns session snapshots into state envelopes until the
// subscription channel closes or the client tears down.
func (c *client) forward(snapCh <-chan *model.Snapshot) {
	for {
		select {
		case <-c.done:
			return
		case snap, ok := <-snapCh:
			if !ok {
				return
			}
			c.enqueue(stateEnvelope(snap))
		}
	}
}

func (c *client) teardown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
		c.gw.clientClosed(c)
	})
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.teardown()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			// Coalesce queued messages into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump() {
	defer c.teardown()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.handleMessage(raw)
	}
}

// handleMessage dispatches one control message. Responses go through the
// send queue, never directly to the connection.
func (c *client) handleMessage(raw []byte) {
	var msg controlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.enqueue(errorEnvelope("invalid message: " + err.Error()))
		return
	}

	if msg.Ping > 0 && msg.Type == "" {
		c.enqueue(marshalEnvelope(outbound{Type: "pong", Ping: msg.Ping, ServerTS: time.Now().UnixMilli()}))
		return
	}

	switch msg.Type {
	case "start":
		if !c.authorized(msg) {
			return
		}
		c.handleStart(msg)

	case "stop":
		if !c.authorized(msg) {
			return
		}
		c.gw.session.Stop()
		c.enqueue(ackEnvelope("stop"))

	case "updateSettings":
		if !c.authorized(msg) {
			return
		}
		var patch model.SettingsPatch
		if msg.Settings == nil {
			c.enqueue(errorEnvelope("updateSettings: settings payload required"))
			return
		}
		if err := json.Unmarshal(msg.Settings, &patch); err != nil {
			c.enqueue(errorEnvelope("updateSettings: " + err.Error()))
			return
		}
		c.gw.session.UpdateSettings(patch)
		c.enqueue(ackEnvelope("updateSettings"))

	case "getState":
		snap := c.gw.session.GetSnapshot(context.Background())
		c.enqueue(stateEnvelope(snap))

	default:
		c.enqueue(errorEnvelope("unknown message type: " + msg.Type))
	}
}

func (c *client) handleStart(msg controlMessage) {
	settings := model.DefaultSettings()
	if msg.Settings != nil {
		if err := json.Unmarshal(msg.Settings, &settings); err != nil {
			c.enqueue(errorEnvelope("start: " + err.Error()))
			return
		}
	}
	req := session.StartRequest{
		Settings:   settings,
		ReplayData: msg.ReplayData,
		IsLive:     msg.IsLive,
	}
	if err := c.gw.session.Start(context.Background(), req); err != nil {
		c.enqueue(errorEnvelope("start: " + err.Error()))
		return
	}
	c.enqueue(ackEnvelope("start"))
}

// authorized enforces the optional TOTP guard on mutating messages.
func (c *client) authorized(msg controlMessage) bool {
	if c.gw.totpSecret == "" {
		return true
	}
	if totp.Validate(msg.TOTP, c.gw.totpSecret) {
		return true
	}
	log.Printf("[gateway] rejected %s: bad or missing TOTP", msg.Type)
	c.enqueue(errorEnvelope(msg.Type + ": invalid TOTP code"))
	return false
}
