// Package wire defines the on-the-wire message shape published to the gossip
// overlay: a JSON envelope, always encrypted under the room key before it
// ever reaches the network driver.
package wire

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/TechieQuokka/chatapp-go/internal/roomcrypto"
)

// MsgType distinguishes the two kinds of payload peers publish to a room
// topic. For unknown values Open returns ErrUnknownMsgType, which callers
// drop silently, so a future message type doesn't disrupt peers running
// this code.
type MsgType string

const (
	MsgChat              MsgType = "Chat"
	MsgVerificationToken MsgType = "VerificationToken"
)

// ErrUnknownMsgType is returned by Open for a msg_type this build does not
// understand. Callers should drop the message silently, not treat it as a
// protocol violation.
var ErrUnknownMsgType = errors.New("wire: unknown msg_type")

// Message is the fixed five-field envelope serialised to JSON and then
// sealed with the room key before publication.
type Message struct {
	MsgType     MsgType `json:"msg_type"`
	SenderNick  string  `json:"sender_nick"`
	SenderDisc  string  `json:"sender_disc"`
	TimestampMS int64   `json:"timestamp_ms"`
	Text        string  `json:"text"`
}

// Chat builds a chat Message stamped with the current time.
func Chat(senderNick, senderDisc, text string) Message {
	return Message{
		MsgType:     MsgChat,
		SenderNick:  senderNick,
		SenderDisc:  senderDisc,
		TimestampMS: time.Now().UnixMilli(),
		Text:        text,
	}
}

// VerificationToken builds a verification-token Message. token is the raw
// encrypted bytes from RoomKey.MakeVerificationToken, base64-encoded for
// safe embedding in the JSON Text field.
func VerificationToken(senderNick, senderDisc string, token []byte) Message {
	return Message{
		MsgType:     MsgVerificationToken,
		SenderNick:  senderNick,
		SenderDisc:  senderDisc,
		TimestampMS: time.Now().UnixMilli(),
		Text:        base64.StdEncoding.EncodeToString(token),
	}
}

// DecodeVerificationToken recovers the raw token bytes from a Message built
// by VerificationToken. Callers should only call this once MsgType has been
// checked to be MsgVerificationToken.
func DecodeVerificationToken(m Message) ([]byte, error) {
	token, err := base64.StdEncoding.DecodeString(m.Text)
	if err != nil {
		return nil, fmt.Errorf("wire: decode verification token: %w", err)
	}
	return token, nil
}

// Seal JSON-encodes m and encrypts it under key, producing the bytes to hand
// to the network driver's Publish command.
func Seal(key roomcrypto.RoomKey, m Message) ([]byte, error) {
	plaintext, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal message: %w", err)
	}
	ciphertext, err := key.Encrypt(plaintext)
	if err != nil {
		return nil, fmt.Errorf("wire: encrypt message: %w", err)
	}
	return ciphertext, nil
}

// Open decrypts payload under key and decodes the JSON envelope. Decrypt
// failures and malformed JSON are both reported via the returned error;
// per the protocol's silent-discard policy, callers must not log these at
// any level, only drop the message.
func Open(key roomcrypto.RoomKey, payload []byte) (Message, error) {
	plaintext, err := key.Decrypt(payload)
	if err != nil {
		return Message{}, err
	}

	var m Message
	if err := json.Unmarshal(plaintext, &m); err != nil {
		return Message{}, fmt.Errorf("wire: unmarshal message: %w", err)
	}

	switch m.MsgType {
	case MsgChat, MsgVerificationToken:
		return m, nil
	default:
		return Message{}, ErrUnknownMsgType
	}
}
