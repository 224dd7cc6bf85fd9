// Package gateway exposes the trading session over WebSocket: observers
// receive every state snapshot and drive the session with control
// messages (start, stop, settings updates).
package gateway

import (
	"errors"
	"log"
	"net/http"

	"cryptobot/internal/metrics"
	"cryptobot/internal/model"
	"cryptobot/internal/session"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The gateway sits behind the operator's own reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Gateway upgrades HTTP connections and bridges them to the session.
type Gateway struct {
	session *session.Session
	metrics *metrics.Metrics

	// When set, mutating control messages must carry a valid TOTP code.
	totpSecret string
}

// New creates a gateway for one session. totpSecret may be empty.
func New(s *session.Session, m *metrics.Metrics, totpSecret string) *Gateway {
	return &Gateway{session: s, metrics: m, totpSecret: totpSecret}
}

// HandleWS upgrades the connection, registers the client as a session
// observer and starts its pumps. Connections beyond the observer cap are
// told why before the close.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] upgrade failed: %v", err)
		return
	}

	obsID, snapCh, err := g.session.Subscribe()
	if errors.Is(err, session.ErrTooManyObservers) {
		conn.WriteMessage(websocket.TextMessage, errorEnvelope("observer limit reached"))
		conn.Close()
		return
	}
	if err != nil {
		conn.Close()
		return
	}

	client := newClient(g, conn, obsID)
	if g.metrics != nil {
		g.metrics.WSClients.Inc()
	}
	log.Printf("[gateway] ws client connected (%d observers)", g.session.ObserverCount())

	// Current state first, then the live stream.
	client.enqueue(stateEnvelope(g.session.GetSnapshot(r.Context())))

	go client.forward(snapCh)
	go client.writePump()
	go client.readPump()
}

func (g *Gateway) clientClosed(c *client) {
	g.session.Unsubscribe(c.obsID)
	if g.metrics != nil {
		g.metrics.WSClients.Dec()
	}
	log.Printf("[gateway] ws client disconnected (%d observers)", g.session.ObserverCount())
}

func stateEnvelope(snap *model.Snapshot) []byte {
	return marshalEnvelope(outbound{Type: "state", Data: snap})
}

func errorEnvelope(msg string) []byte {
	return marshalEnvelope(outbound{Type: "error", Message: msg})
}

func ackEnvelope(action string) []byte {
	return marshalEnvelope(outbound{Type: "ack", Action: action})
}
