package wsoverlay

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TechieQuokka/chatapp-go/internal/chatproto"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	cmds   chan chatproto.NetworkCommand
	events chan chatproto.NetworkEvent
	cancel context.CancelFunc
}

func startOverlay(t *testing.T, peerID string) *harness {
	t.Helper()

	ov := New(peerID, "127.0.0.1:0", discardLogger())
	cmds := make(chan chatproto.NetworkCommand, 16)
	events := make(chan chatproto.NetworkEvent, 16)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- ov.Run(ctx, cmds, events) }()

	h := &harness{cmds: cmds, events: events, cancel: cancel}
	t.Cleanup(func() {
		cancel()
		select {
		case <-runErr:
		case <-time.After(2 * time.Second):
			t.Fatal("overlay did not shut down")
		}
	})
	return h
}

func awaitEvent(t *testing.T, events <-chan chatproto.NetworkEvent, kind chatproto.NetworkEventKind) chatproto.NetworkEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt := <-events:
			if evt.Kind == kind {
				return evt
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event kind %v", kind)
		}
	}
}

func TestOverlayListensOnStart(t *testing.T) {
	h := startOverlay(t, "peer-a")
	evt := awaitEvent(t, h.events, chatproto.EvtListeningOn)
	require.NotEmpty(t, evt.Addr)
}

func TestDialEstablishesBidirectionalLink(t *testing.T) {
	a := startOverlay(t, "peer-a")
	listeningA := awaitEvent(t, a.events, chatproto.EvtListeningOn)

	b := startOverlay(t, "peer-b")
	awaitEvent(t, b.events, chatproto.EvtListeningOn)

	b.cmds <- chatproto.DialCmd(listeningA.Addr)

	awaitEvent(t, a.events, chatproto.EvtPeerConnected)
	awaitEvent(t, b.events, chatproto.EvtPeerConnected)
}

func TestSubscribeOnOneSideNotifiesTheOther(t *testing.T) {
	a := startOverlay(t, "peer-a")
	listeningA := awaitEvent(t, a.events, chatproto.EvtListeningOn)

	b := startOverlay(t, "peer-b")
	awaitEvent(t, b.events, chatproto.EvtListeningOn)

	b.cmds <- chatproto.DialCmd(listeningA.Addr)
	awaitEvent(t, a.events, chatproto.EvtPeerConnected)
	awaitEvent(t, b.events, chatproto.EvtPeerConnected)

	b.cmds <- chatproto.SubscribeCmd("/chatapp/v1/rooms/lobby")

	evt := awaitEvent(t, a.events, chatproto.EvtPeerSubscribed)
	require.Equal(t, "/chatapp/v1/rooms/lobby", evt.Topic)
	require.Equal(t, "peer-b", evt.PeerID)
}

func TestPublishDeliversOnlyToSubscribedPeer(t *testing.T) {
	a := startOverlay(t, "peer-a")
	listeningA := awaitEvent(t, a.events, chatproto.EvtListeningOn)

	b := startOverlay(t, "peer-b")
	awaitEvent(t, b.events, chatproto.EvtListeningOn)

	c := startOverlay(t, "peer-c")
	awaitEvent(t, c.events, chatproto.EvtListeningOn)

	b.cmds <- chatproto.DialCmd(listeningA.Addr)
	awaitEvent(t, a.events, chatproto.EvtPeerConnected)
	awaitEvent(t, b.events, chatproto.EvtPeerConnected)

	c.cmds <- chatproto.DialCmd(listeningA.Addr)
	awaitEvent(t, a.events, chatproto.EvtPeerConnected)
	awaitEvent(t, c.events, chatproto.EvtPeerConnected)

	topic := "/chatapp/v1/rooms/lobby"
	b.cmds <- chatproto.SubscribeCmd(topic)
	awaitEvent(t, a.events, chatproto.EvtPeerSubscribed)

	a.cmds <- chatproto.PublishCmd(topic, []byte("ciphertext"))

	evt := awaitEvent(t, b.events, chatproto.EvtMessageReceived)
	require.Equal(t, topic, evt.Topic)
	require.Equal(t, []byte("ciphertext"), evt.Payload)

	select {
	case evt := <-c.events:
		t.Fatalf("unsubscribed peer received unexpected event: %+v", evt)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestDuplicatePublishIsDeduplicated(t *testing.T) {
	a := startOverlay(t, "peer-a")
	listeningA := awaitEvent(t, a.events, chatproto.EvtListeningOn)

	b := startOverlay(t, "peer-b")
	awaitEvent(t, b.events, chatproto.EvtListeningOn)

	b.cmds <- chatproto.DialCmd(listeningA.Addr)
	awaitEvent(t, a.events, chatproto.EvtPeerConnected)
	awaitEvent(t, b.events, chatproto.EvtPeerConnected)

	topic := "/chatapp/v1/rooms/lobby"
	b.cmds <- chatproto.SubscribeCmd(topic)
	awaitEvent(t, a.events, chatproto.EvtPeerSubscribed)

	a.cmds <- chatproto.PublishCmd(topic, []byte("same-payload"))
	awaitEvent(t, b.events, chatproto.EvtMessageReceived)

	a.cmds <- chatproto.PublishCmd(topic, []byte("same-payload"))

	select {
	case evt := <-b.events:
		t.Fatalf("duplicate publish was not deduplicated, got %+v", evt)
	case <-time.After(300 * time.Millisecond):
	}
}
