// Package controller implements the Application Controller actor: the sole
// owner of room state, reachable only through the CLI-command and
// network-event channels it is constructed with.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/TechieQuokka/chatapp-go/internal/chatproto"
	"github.com/TechieQuokka/chatapp-go/internal/config"
	"github.com/TechieQuokka/chatapp-go/internal/identity"
	"github.com/TechieQuokka/chatapp-go/internal/roomcode"
	"github.com/TechieQuokka/chatapp-go/internal/roomcrypto"
	"github.com/TechieQuokka/chatapp-go/internal/roomlog"
	"github.com/TechieQuokka/chatapp-go/internal/wire"
)

// mode is the Controller's tagged union: exactly one of menu, joining, or
// inRoom is active at any time, never a combination of optional fields.
type mode int

const (
	modeMenu mode = iota
	modeJoining
	modeInRoom
)

// VerifyTimeout and TickInterval are package-level vars rather than
// constants so tests can shrink them instead of waiting out real wall-clock
// delays.
var (
	VerifyTimeout = 5 * time.Second
	TickInterval  = 500 * time.Millisecond
)

type roomState struct {
	name      string
	topic     string
	peerCount int
}

type pendingVerify struct {
	roomName string
	roomKey  roomcrypto.RoomKey
	deadline time.Time
}

// Controller is the Application Controller actor. It must only be driven by
// its own Run goroutine; all interaction happens over the channels passed to
// New.
type Controller struct {
	identity *identity.Identity
	cfg      *config.Config
	log      *slog.Logger

	mode          mode
	room          *roomState
	roomKey       roomcrypto.RoomKey
	pending       *pendingVerify
	roomLogger    *roomlog.Logger
	peers         map[string]string // "nick#disc" -> display name
	listenAddrs   []string

	cliCmds   <-chan chatproto.CliCommand
	netEvents <-chan chatproto.NetworkEvent
	netCmds   chan<- chatproto.NetworkCommand
	uiEvents  chan<- chatproto.UiEvent
}

// New builds a Controller wired to the given channels. cliCmds and
// netEvents are read-only from the Controller's perspective; netCmds and
// uiEvents are write-only.
func New(
	id *identity.Identity,
	cfg *config.Config,
	cliCmds <-chan chatproto.CliCommand,
	netEvents <-chan chatproto.NetworkEvent,
	netCmds chan<- chatproto.NetworkCommand,
	uiEvents chan<- chatproto.UiEvent,
	log *slog.Logger,
) *Controller {
	return &Controller{
		identity:  id,
		cfg:       cfg,
		log:       log,
		mode:      modeMenu,
		peers:     make(map[string]string),
		cliCmds:   cliCmds,
		netEvents: netEvents,
		netCmds:   netCmds,
		uiEvents:  uiEvents,
	}
}

// Run is the Controller's main loop: a single goroutine selecting over CLI
// commands, network events, and a verification-timeout tick. It returns
// when ctx is cancelled or a CliQuit command is received.
func (c *Controller) Run(ctx context.Context) error {
	c.netCmds <- chatproto.QueryListenAddrsCmd()

	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case cmd, ok := <-c.cliCmds:
			if !ok {
				return nil
			}
			quit, err := c.handleCliCommand(cmd)
			if err != nil {
				c.uiEvents <- chatproto.UiEvent{Kind: chatproto.UiError, Err: err.Error()}
			}
			if quit {
				return nil
			}

		case evt, ok := <-c.netEvents:
			if !ok {
				continue
			}
			if err := c.handleNetworkEvent(evt); err != nil {
				c.log.Warn("network event error", "err", err)
			}

		case <-ticker.C:
			c.checkVerifyTimeout()
		}
	}
}

// Close releases any open resources (the room log file). Safe to call
// whether or not a room is currently open.
func (c *Controller) Close() error {
	if c.roomLogger != nil {
		err := c.roomLogger.Close()
		c.roomLogger = nil
		return err
	}
	return nil
}

// ── CLI commands ─────────────────────────────────────────────────────────

// handleCliCommand returns (true, nil) to signal the run loop should quit.
func (c *Controller) handleCliCommand(cmd chatproto.CliCommand) (bool, error) {
	switch cmd.Kind {
	case chatproto.CliQuit:
		return true, nil

	case chatproto.CliSendMessage:
		c.sendMessage(cmd.Text)

	case chatproto.CliCreateRoom:
		if err := c.createRoom(cmd.Name, cmd.Password); err != nil {
			return false, err
		}

	case chatproto.CliJoinRoom:
		if err := c.joinRoom(cmd.Code, cmd.Password); err != nil {
			return false, err
		}

	case chatproto.CliLeaveRoom:
		c.leaveRoom()

	case chatproto.CliListPeers:
		list := "No peers connected."
		if len(c.peers) > 0 {
			names := make([]string, 0, len(c.peers))
			for _, name := range c.peers {
				names = append(names, name)
			}
			list = strings.Join(names, ", ")
		}
		c.uiEvents <- chatproto.UiEvent{
			Kind:    chatproto.UiNewMessage,
			Message: chatproto.SystemMessage("Peers: " + list),
		}

	case chatproto.CliHelp:
		for _, line := range []string{
			"/quit   — leave room / exit",
			"/peers  — list connected peers",
			"/help   — show this message",
		} {
			c.uiEvents <- chatproto.UiEvent{Kind: chatproto.UiNewMessage, Message: chatproto.SystemMessage(line)}
		}
	}
	return false, nil
}

// ── Room operations ──────────────────────────────────────────────────────

func (c *Controller) createRoom(name, password string) error {
	c.leaveRoom()

	roomKey := roomcrypto.Derive([]byte(password), name)
	topic := roomcode.TopicForRoom(name)

	c.netCmds <- chatproto.SubscribeCmd(topic)

	if err := c.cfg.EnsureLogDir(); err != nil {
		return fmt.Errorf("controller: create room: %w", err)
	}
	logger, err := roomlog.Open(c.cfg.LogDir, name)
	if err != nil {
		return fmt.Errorf("controller: open room log: %w", err)
	}

	var addr string
	if len(c.listenAddrs) > 0 {
		addr = c.listenAddrs[0]
	}
	code := roomcode.Encode(roomcode.Data{RoomName: name, PeerID: c.identity.PeerID, Addr: addr})

	c.mode = modeInRoom
	c.room = &roomState{name: name, topic: topic, peerCount: 1}
	c.roomKey = roomKey
	c.roomLogger = logger

	c.uiEvents <- chatproto.UiEvent{Kind: chatproto.UiRoomCreated, Room: name, Code: code}
	c.emitStatus()
	return nil
}

func (c *Controller) joinRoom(code, password string) error {
	c.leaveRoom()

	data, err := roomcode.Decode(code)
	if err != nil {
		return ErrInvalidRoomCode
	}
	roomKey := roomcrypto.Derive([]byte(password), data.RoomName)
	topic := roomcode.TopicForRoom(data.RoomName)

	if data.Addr != "" {
		c.netCmds <- chatproto.DialCmd(data.Addr)
	}
	c.netCmds <- chatproto.SubscribeCmd(topic)

	if err := c.cfg.EnsureLogDir(); err != nil {
		return fmt.Errorf("controller: join room: %w", err)
	}
	logger, err := roomlog.Open(c.cfg.LogDir, data.RoomName)
	if err != nil {
		return fmt.Errorf("controller: open room log: %w", err)
	}

	c.mode = modeJoining
	c.pending = &pendingVerify{
		roomName: data.RoomName,
		roomKey:  roomKey,
		deadline: time.Now().Add(VerifyTimeout),
	}
	c.roomLogger = logger

	c.uiEvents <- chatproto.UiEvent{
		Kind:    chatproto.UiNewMessage,
		Message: chatproto.SystemMessage(fmt.Sprintf("Connecting to room '%s' — waiting for verification…", data.RoomName)),
	}
	return nil
}

func (c *Controller) leaveRoom() {
	if c.mode == modeInRoom && c.room != nil {
		c.netCmds <- chatproto.UnsubscribeCmd(c.room.topic)
		if c.roomLogger != nil {
			_ = c.roomLogger.LogEvent("session ended")
		}
		c.log.Info("left room", "room", c.room.name)
	}

	if c.roomLogger != nil {
		_ = c.roomLogger.Close()
		c.roomLogger = nil
	}

	c.mode = modeMenu
	c.room = nil
	c.roomKey = roomcrypto.RoomKey{}
	c.pending = nil
	c.peers = make(map[string]string)

	c.uiEvents <- chatproto.UiEvent{Kind: chatproto.UiShowMainMenu}
	c.emitStatus()
}

// ── Message sending ──────────────────────────────────────────────────────

func (c *Controller) sendMessage(text string) {
	if c.mode != modeInRoom || c.room == nil {
		c.uiEvents <- chatproto.UiEvent{Kind: chatproto.UiError, Err: ErrNotInRoom.Error()}
		return
	}

	msg := wire.Chat(c.identity.Nickname, c.identity.Discriminator, text)
	sealed, err := wire.Seal(c.roomKey, msg)
	if err != nil {
		c.uiEvents <- chatproto.UiEvent{Kind: chatproto.UiError, Err: err.Error()}
		return
	}
	c.netCmds <- chatproto.PublishCmd(c.room.topic, sealed)

	display := chatproto.ChatMessage(c.identity.DisplayName(), text)
	if c.roomLogger != nil {
		_ = c.roomLogger.LogMessage(display)
	}
	c.uiEvents <- chatproto.UiEvent{Kind: chatproto.UiNewMessage, Message: display}
}

// ── Network events ───────────────────────────────────────────────────────

func (c *Controller) handleNetworkEvent(evt chatproto.NetworkEvent) error {
	switch evt.Kind {
	case chatproto.EvtMessageReceived:
		return c.handleMessage(evt.Topic, evt.Payload)

	case chatproto.EvtPeerSubscribed:
		if c.mode == modeInRoom && c.room != nil && evt.Topic == c.room.topic {
			if token, err := c.roomKey.MakeVerificationToken(c.room.name); err == nil {
				msg := wire.VerificationToken(c.identity.Nickname, c.identity.Discriminator, token)
				if sealed, err := wire.Seal(c.roomKey, msg); err == nil {
					c.netCmds <- chatproto.PublishCmd(evt.Topic, sealed)
				}
			}
			c.room.peerCount++
			c.emitStatus()
		}

	case chatproto.EvtPeerDisconnected:
		if name, ok := c.peers[evt.PeerID]; ok {
			delete(c.peers, evt.PeerID)
			msg := chatproto.SystemMessage(name + " disconnected")
			if c.roomLogger != nil {
				_ = c.roomLogger.LogMessage(msg)
			}
			c.uiEvents <- chatproto.UiEvent{Kind: chatproto.UiNewMessage, Message: msg}
			if c.room != nil && c.room.peerCount > 0 {
				c.room.peerCount--
			}
			c.emitStatus()
		}

	case chatproto.EvtListeningOn:
		c.recordListenAddr(evt.Addr, false)

	case chatproto.EvtNewExternalAddr:
		c.recordListenAddr(evt.Addr, true)

	case chatproto.EvtPeerConnected:
		// No controller-visible effect; connections matter once the peer
		// subscribes to a topic we care about.
	}
	return nil
}

func (c *Controller) recordListenAddr(addr string, front bool) {
	for _, existing := range c.listenAddrs {
		if existing == addr {
			return
		}
	}
	if front {
		c.listenAddrs = append([]string{addr}, c.listenAddrs...)
		return
	}
	c.listenAddrs = append(c.listenAddrs, addr)
}

func (c *Controller) handleMessage(topic string, payload []byte) error {
	if c.mode == modeJoining && c.pending != nil {
		msg, err := wire.Open(c.pending.roomKey, payload)
		if err == nil && msg.MsgType == wire.MsgVerificationToken {
			token, derr := wire.DecodeVerificationToken(msg)
			if derr == nil && c.pending.roomKey.VerifyToken(token, c.pending.roomName) {
				c.confirmJoin(c.pending.roomName)
			} else {
				c.denyJoin()
			}
			return nil
		}
	}

	if c.mode != modeInRoom || c.room == nil {
		return nil
	}
	if !strings.HasSuffix(topic, c.room.name) {
		return nil
	}

	msg, err := wire.Open(c.roomKey, payload)
	if err != nil {
		return nil // wrong key or noise: silently discard, never logged
	}
	if msg.MsgType == wire.MsgVerificationToken {
		return nil // tokens only matter while joining; in a room they are dropped
	}

	if msg.SenderNick == c.identity.Nickname && msg.SenderDisc == c.identity.Discriminator {
		return nil // suppress echo of our own message
	}

	sender := msg.SenderNick + "#" + msg.SenderDisc
	if _, known := c.peers[sender]; !known {
		c.peers[sender] = sender
		joined := chatproto.SystemMessage(sender + " joined the room")
		if c.roomLogger != nil {
			_ = c.roomLogger.LogMessage(joined)
		}
		c.uiEvents <- chatproto.UiEvent{Kind: chatproto.UiNewMessage, Message: joined}
	}

	display := chatproto.ChatMessage(sender, msg.Text)
	if c.roomLogger != nil {
		_ = c.roomLogger.LogMessage(display)
	}
	c.uiEvents <- chatproto.UiEvent{Kind: chatproto.UiNewMessage, Message: display}
	return nil
}

// ── Verification flow ────────────────────────────────────────────────────

func (c *Controller) confirmJoin(roomName string) {
	if c.pending != nil {
		c.roomKey = c.pending.roomKey
		c.pending = nil
	}
	c.mode = modeInRoom
	c.room = &roomState{name: roomName, topic: roomcode.TopicForRoom(roomName), peerCount: 0}

	c.uiEvents <- chatproto.UiEvent{Kind: chatproto.UiRoomJoined, Room: roomName}
	c.emitStatus()
}

func (c *Controller) denyJoin() {
	c.pending = nil
	if c.mode == modeInRoom && c.room != nil {
		c.netCmds <- chatproto.UnsubscribeCmd(c.room.topic)
		c.room = nil
	}
	if c.roomLogger != nil {
		_ = c.roomLogger.Close()
		c.roomLogger = nil
	}
	c.mode = modeMenu

	c.uiEvents <- chatproto.UiEvent{Kind: chatproto.UiAccessDenied}
	c.uiEvents <- chatproto.UiEvent{Kind: chatproto.UiShowMainMenu}
}

func (c *Controller) checkVerifyTimeout() {
	if c.mode != modeJoining || c.pending == nil {
		return
	}
	if time.Now().Before(c.pending.deadline) {
		return
	}

	// No verification token arrived in time: assume an empty room (the
	// creator may be offline) and let the caller in with the key they
	// supplied — see the design note on this asymmetry.
	roomName := c.pending.roomName
	c.roomKey = c.pending.roomKey
	c.pending = nil
	c.mode = modeInRoom
	c.room = &roomState{name: roomName, topic: roomcode.TopicForRoom(roomName), peerCount: 0}

	c.uiEvents <- chatproto.UiEvent{Kind: chatproto.UiRoomJoined, Room: roomName}
	c.emitStatus()
}

func (c *Controller) emitStatus() {
	var roomName string
	var peers int
	if c.mode == modeInRoom && c.room != nil {
		roomName = c.room.name
		peers = c.room.peerCount
	}
	c.uiEvents <- chatproto.UiEvent{Kind: chatproto.UiStatusUpdate, Room: roomName, Peers: peers}
}
