// Package roomcode encodes and decodes the out-of-band room invite code:
// room name, creator peer ID, and creator listen address, packed into a
// compact Base58 string.
package roomcode

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mr-tron/base58"
)

// ErrMalformed is returned by Decode when the input is not a valid room
// code: not valid Base58, not valid UTF-8 once decoded, or not exactly
// three NUL-separated fields.
var ErrMalformed = errors.New("roomcode: malformed room code")

// Data is the payload embedded in a shared room code.
type Data struct {
	RoomName string
	PeerID   string
	Addr     string
}

// topicPrefix namespaces gossip topics so unrelated deployments never
// collide on a bare room name.
const topicPrefix = "/chatapp/v1/rooms/"

// TopicForRoom returns the gossip topic a room's traffic is published on.
func TopicForRoom(roomName string) string {
	return topicPrefix + roomName
}

// Encode packs d into a compact, shareable Base58 string: NUL-joined fields
// rather than JSON, since the code is typically copy-pasted by hand.
func Encode(d Data) string {
	raw := d.RoomName + "\x00" + d.PeerID + "\x00" + d.Addr
	return base58.Encode([]byte(raw))
}

// Decode parses a room code produced by Encode.
func Decode(code string) (Data, error) {
	raw, err := base58.Decode(code)
	if err != nil {
		return Data{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !utf8.Valid(raw) {
		return Data{}, ErrMalformed
	}

	parts := strings.Split(string(raw), "\x00")
	if len(parts) != 3 {
		return Data{}, ErrMalformed
	}

	return Data{RoomName: parts[0], PeerID: parts[1], Addr: parts[2]}, nil
}
