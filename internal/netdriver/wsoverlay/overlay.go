// Package wsoverlay is a real gossip overlay over WebSocket connections: a
// listener other peers dial into (addresses embedded in room codes), flood
// publication with content-hash deduplication, and a heartbeat ping/pong on
// every link.
package wsoverlay

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/TechieQuokka/chatapp-go/internal/chatproto"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Peer-to-peer gossip connections have no browser origin to check.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Overlay implements netdriver.Driver over real WebSocket connections.
type Overlay struct {
	selfPeerID   string
	bindAddr     string
	externalAddr string
	logger       *slog.Logger

	mu        sync.Mutex
	peers     map[*peerConn]bool
	topicSubs map[string]bool
	seen      map[[32]byte]bool

	events chan<- chatproto.NetworkEvent

	listener net.Listener
	server   *http.Server
}

// New builds an Overlay. bindAddr is a "host:port" TCP address to listen on
// (":0" for an ephemeral port); selfPeerID is included in every frame so
// peers can attribute subscribe/disconnect events.
func New(selfPeerID, bindAddr string, logger *slog.Logger) *Overlay {
	return &Overlay{
		selfPeerID: selfPeerID,
		bindAddr:   bindAddr,
		logger:     logger,
		peers:      make(map[*peerConn]bool),
		topicSubs:  make(map[string]bool),
		seen:       make(map[[32]byte]bool),
	}
}

// Run implements netdriver.Driver.
func (o *Overlay) Run(ctx context.Context, cmds <-chan chatproto.NetworkCommand, events chan<- chatproto.NetworkEvent) error {
	o.events = events

	listener, err := net.Listen("tcp", o.bindAddr)
	if err != nil {
		return fmt.Errorf("wsoverlay: listen on %s: %w", o.bindAddr, err)
	}
	o.listener = listener
	o.externalAddr = "ws://" + listener.Addr().String() + "/gossip"

	mux := http.NewServeMux()
	mux.HandleFunc("/gossip", o.handleUpgrade)
	handler := chainMiddleware(mux, connectionIDMiddleware, loggingMiddleware(o.logger), recoverMiddleware(o.logger))
	o.server = &http.Server{Handler: handler}

	serveErrCh := make(chan error, 1)
	go func() {
		if err := o.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			serveErrCh <- err
		}
	}()

	events <- chatproto.ListeningOnEvt(o.externalAddr)

	for {
		select {
		case <-ctx.Done():
			_ = o.server.Close()
			o.closeAllPeers()
			return nil

		case err := <-serveErrCh:
			o.closeAllPeers()
			return fmt.Errorf("wsoverlay: serve: %w", err)

		case cmd, ok := <-cmds:
			if !ok {
				_ = o.server.Close()
				o.closeAllPeers()
				return nil
			}
			o.handleCommand(cmd)
		}
	}
}

func (o *Overlay) handleCommand(cmd chatproto.NetworkCommand) {
	switch cmd.Kind {
	case chatproto.CmdSubscribe:
		o.mu.Lock()
		o.topicSubs[cmd.Topic] = true
		o.mu.Unlock()
		o.broadcast(frame{Kind: frameSubscribe, Topic: cmd.Topic, PeerID: o.selfPeerID})

	case chatproto.CmdUnsubscribe:
		o.mu.Lock()
		delete(o.topicSubs, cmd.Topic)
		o.mu.Unlock()
		o.broadcast(frame{Kind: frameUnsubscribe, Topic: cmd.Topic, PeerID: o.selfPeerID})

	case chatproto.CmdPublish:
		f := frame{Kind: framePublish, Topic: cmd.Topic, Data: cmd.Data, PeerID: o.selfPeerID}
		o.markSeen(cmd.Data)
		o.broadcast(f)

	case chatproto.CmdDial:
		go o.dial(cmd.Addr)

	case chatproto.CmdQueryListenAddrs:
		o.events <- chatproto.ListeningOnEvt(o.externalAddr)
	}
}

func (o *Overlay) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		o.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	o.addPeer(conn)
}

func (o *Overlay) dial(addr string) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		o.logger.Warn("dial peer failed", "addr", addr, "err", err)
		return
	}
	o.addPeer(conn)
}

func (o *Overlay) addPeer(conn *websocket.Conn) {
	p := newPeerConn(o, conn)
	o.mu.Lock()
	o.peers[p] = true
	o.mu.Unlock()

	go p.writePump()
	go p.readPump()

	o.events <- chatproto.PeerConnectedEvt()
}

func (o *Overlay) removePeer(p *peerConn) {
	o.mu.Lock()
	_, existed := o.peers[p]
	delete(o.peers, p)
	o.mu.Unlock()

	if !existed {
		return
	}
	p.close()
	if p.remoteID != "" {
		o.events <- chatproto.PeerDisconnectedEvt(p.remoteID)
	}
}

func (o *Overlay) closeAllPeers() {
	o.mu.Lock()
	peers := make([]*peerConn, 0, len(o.peers))
	for p := range o.peers {
		peers = append(peers, p)
	}
	o.peers = make(map[*peerConn]bool)
	o.mu.Unlock()

	for _, p := range peers {
		p.close()
	}
}

func (o *Overlay) broadcast(f frame) {
	o.mu.Lock()
	peers := make([]*peerConn, 0, len(o.peers))
	for p := range o.peers {
		peers = append(peers, p)
	}
	o.mu.Unlock()

	for _, p := range peers {
		p.sendFrame(f)
	}
}

func (o *Overlay) broadcastExcept(skip *peerConn, f frame) {
	o.mu.Lock()
	peers := make([]*peerConn, 0, len(o.peers))
	for p := range o.peers {
		if p != skip {
			peers = append(peers, p)
		}
	}
	o.mu.Unlock()

	for _, p := range peers {
		p.sendFrame(f)
	}
}

func (o *Overlay) markSeen(data []byte) bool {
	hash := sha256.Sum256(data)
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.seen[hash] {
		return false
	}
	o.seen[hash] = true
	return true
}

// handleFrame processes a frame received from a directly-connected peer,
// relaying it further through the gossip mesh when appropriate.
func (o *Overlay) handleFrame(from *peerConn, f frame) {
	switch f.Kind {
	case frameSubscribe:
		o.events <- chatproto.PeerSubscribedEvt(f.Topic, f.PeerID)

	case frameUnsubscribe:
		// No corresponding NetworkEvent exists in the controller contract,
		// and the overlay keeps no per-peer subscription state: ignored.

	case framePublish:
		if !o.markSeen(f.Data) {
			return // already seen this content: stop the flood here
		}

		o.mu.Lock()
		subscribed := o.topicSubs[f.Topic]
		o.mu.Unlock()
		if subscribed {
			o.events <- chatproto.MessageReceivedEvt(f.Topic, f.Data)
		}

		o.broadcastExcept(from, f)
	}
}
