// Package netdriver defines the contract between the Application Controller
// and whatever gossip overlay actually moves bytes between peers. The
// Controller only ever sees chatproto.NetworkCommand/NetworkEvent values on
// channels — never a concrete overlay type.
package netdriver

import (
	"context"

	"github.com/TechieQuokka/chatapp-go/internal/chatproto"
)

// Driver translates abstract NetworkCommand values into operations on a
// concrete gossip overlay, and translates overlay activity back into
// NetworkEvent values. Run owns both channels' lifetimes: it must keep
// reading cmds and keep the ability to write to events until ctx is done,
// and must return promptly once ctx is cancelled.
type Driver interface {
	Run(ctx context.Context, cmds <-chan chatproto.NetworkCommand, events chan<- chatproto.NetworkEvent) error
}
