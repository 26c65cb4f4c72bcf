// Package chatproto defines the typed messages that flow between the three
// long-lived actors (network driver, controller, interface). Every channel
// crossing an actor boundary carries one of these types — no other shared
// state exists between actors.
package chatproto

import "time"

// NetworkCommand flows from the Controller to the Network Driver.
type NetworkCommand struct {
	Kind NetworkCommandKind

	Topic string // Subscribe, Unsubscribe, Publish
	Data  []byte // Publish
	Addr  string // Dial
}

type NetworkCommandKind int

const (
	CmdSubscribe NetworkCommandKind = iota
	CmdUnsubscribe
	CmdPublish
	CmdDial
	CmdQueryListenAddrs
)

func SubscribeCmd(topic string) NetworkCommand   { return NetworkCommand{Kind: CmdSubscribe, Topic: topic} }
func UnsubscribeCmd(topic string) NetworkCommand { return NetworkCommand{Kind: CmdUnsubscribe, Topic: topic} }
func PublishCmd(topic string, data []byte) NetworkCommand {
	return NetworkCommand{Kind: CmdPublish, Topic: topic, Data: data}
}
func DialCmd(addr string) NetworkCommand       { return NetworkCommand{Kind: CmdDial, Addr: addr} }
func QueryListenAddrsCmd() NetworkCommand      { return NetworkCommand{Kind: CmdQueryListenAddrs} }

// NetworkEvent flows from the Network Driver to the Controller.
type NetworkEvent struct {
	Kind NetworkEventKind

	Topic   string // MessageReceived, PeerSubscribed
	Payload []byte // MessageReceived
	PeerID  string // PeerSubscribed, PeerDisconnected
	Addr    string // ListeningOn, NewExternalAddr
}

type NetworkEventKind int

const (
	EvtMessageReceived NetworkEventKind = iota
	EvtPeerConnected
	EvtPeerDisconnected
	EvtPeerSubscribed
	EvtListeningOn
	EvtNewExternalAddr
)

func MessageReceivedEvt(topic string, payload []byte) NetworkEvent {
	return NetworkEvent{Kind: EvtMessageReceived, Topic: topic, Payload: payload}
}
func PeerConnectedEvt() NetworkEvent { return NetworkEvent{Kind: EvtPeerConnected} }
func PeerDisconnectedEvt(peerID string) NetworkEvent {
	return NetworkEvent{Kind: EvtPeerDisconnected, PeerID: peerID}
}
func PeerSubscribedEvt(topic, peerID string) NetworkEvent {
	return NetworkEvent{Kind: EvtPeerSubscribed, Topic: topic, PeerID: peerID}
}
func ListeningOnEvt(addr string) NetworkEvent     { return NetworkEvent{Kind: EvtListeningOn, Addr: addr} }
func NewExternalAddrEvt(addr string) NetworkEvent { return NetworkEvent{Kind: EvtNewExternalAddr, Addr: addr} }

// CliCommand flows from the Interface to the Controller.
type CliCommand struct {
	Kind CliCommandKind

	Text     string // SendMessage
	Name     string // CreateRoom (for JoinRoom the room name is embedded in Code)
	Password string // CreateRoom, JoinRoom
	Code     string // JoinRoom
}

type CliCommandKind int

const (
	CliSendMessage CliCommandKind = iota
	CliCreateRoom
	CliJoinRoom
	CliLeaveRoom
	CliListPeers
	CliHelp
	CliQuit
)

// UiEvent flows from the Controller to the Interface.
type UiEvent struct {
	Kind UiEventKind

	Message DisplayMessage // NewMessage
	Room    string         // StatusUpdate, RoomJoined, RoomCreated (room name)
	Peers   int            // StatusUpdate
	Code    string         // RoomCreated (shareable room code)
	Err     string         // Error
}

type UiEventKind int

const (
	UiNewMessage UiEventKind = iota
	UiStatusUpdate
	UiShowMainMenu
	UiRoomCreated
	UiRoomJoined
	UiAccessDenied
	UiError
)

// DisplayMessage is a message ready to render in the terminal.
type DisplayMessage struct {
	Timestamp time.Time
	Sender    string // "nick#disc" for chat, empty for system
	Text      string
	IsSystem  bool
}

func ChatMessage(sender, text string) DisplayMessage {
	return DisplayMessage{Timestamp: time.Now(), Sender: sender, Text: text, IsSystem: false}
}

func SystemMessage(text string) DisplayMessage {
	return DisplayMessage{Timestamp: time.Now(), Text: text, IsSystem: true}
}

// Render formats the message for terminal display, truncating to width runes.
func (m DisplayMessage) Render(width int) string {
	ts := m.Timestamp.Format("15:04")
	var line string
	if m.IsSystem {
		line = "[" + ts + "] *** " + m.Text
	} else {
		line = "[" + ts + "] " + m.Sender + ": " + m.Text
	}
	return truncate(line, width)
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if width <= 0 || len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}
