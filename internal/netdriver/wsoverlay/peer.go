package wsoverlay

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 65536

	// publishRate bounds how many publish frames per second a single
	// directly-connected peer may send us before we start dropping their
	// traffic, standing in for the gossip overlay's own flood-control.
	publishRate  = 50
	publishBurst = 100
)

// peerConn is one directly-connected gossip link, either accepted inbound or
// dialed outbound. It owns the websocket connection and has no knowledge of
// rooms or encryption — only frames.
type peerConn struct {
	conn     *websocket.Conn
	send     chan []byte
	overlay  *Overlay
	logger   *slog.Logger
	limiter  *rate.Limiter
	remoteID string

	mu     sync.Mutex
	closed bool
}

func newPeerConn(overlay *Overlay, conn *websocket.Conn) *peerConn {
	return &peerConn{
		conn:    conn,
		send:    make(chan []byte, 256),
		overlay: overlay,
		logger:  overlay.logger,
		limiter: rate.NewLimiter(rate.Limit(publishRate), publishBurst),
	}
}

// sendFrame enqueues f for delivery, dropping it if the outbound buffer is
// full rather than blocking the overlay's single dispatch path.
func (p *peerConn) sendFrame(f frame) {
	data, err := json.Marshal(f)
	if err != nil {
		p.logger.Error("marshal frame", "err", err)
		return
	}
	select {
	case p.send <- data:
	default:
		p.logger.Warn("peer send buffer full, dropping frame", "remote_id", p.remoteID, "kind", f.Kind)
	}
}

func (p *peerConn) readPump() {
	defer p.overlay.removePeer(p)

	p.conn.SetReadLimit(maxMessageSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		p.remoteID = f.PeerID

		if f.Kind == framePublish && !p.limiter.Allow() {
			continue
		}

		p.overlay.handleFrame(p, f)
	}
}

func (p *peerConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = p.conn.Close()
	}()

	for {
		select {
		case data, ok := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (p *peerConn) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.send)
}
