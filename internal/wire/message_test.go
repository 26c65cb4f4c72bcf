package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TechieQuokka/chatapp-go/internal/roomcrypto"
)

func TestSealOpenRoundTrip(t *testing.T) {
	key := roomcrypto.Derive([]byte("hunter2"), "lobby")
	msg := Chat("alice", "a1b2", "hello room")

	payload, err := Seal(key, msg)
	require.NoError(t, err)

	got, err := Open(key, payload)
	require.NoError(t, err)
	require.Equal(t, msg, got)
}

// The wire format must interoperate byte-for-byte with the reference
// protocol: msg_type serialises as exactly "Chat" / "VerificationToken",
// not a lowercase or snake_case variant.
func TestMsgTypeSerializesToReferenceLiteral(t *testing.T) {
	raw, err := json.Marshal(Chat("alice", "a1b2", "hello room"))
	require.NoError(t, err)
	require.Contains(t, string(raw), `"msg_type":"Chat"`)

	token := []byte("token-bytes")
	raw, err = json.Marshal(VerificationToken("bob", "c3d4", token))
	require.NoError(t, err)
	require.Contains(t, string(raw), `"msg_type":"VerificationToken"`)
}

func TestOpenWithWrongKeyFails(t *testing.T) {
	key := roomcrypto.Derive([]byte("hunter2"), "lobby")
	other := roomcrypto.Derive([]byte("different"), "lobby")

	payload, err := Seal(key, Chat("alice", "a1b2", "hello room"))
	require.NoError(t, err)

	_, err = Open(other, payload)
	require.Error(t, err)
}

func TestOpenRejectsUnknownMsgType(t *testing.T) {
	key := roomcrypto.Derive([]byte("hunter2"), "lobby")
	raw := []byte(`{"msg_type":"future_type","sender_nick":"a","sender_disc":"b","timestamp_ms":1,"text":"x"}`)

	ciphertext, err := key.Encrypt(raw)
	require.NoError(t, err)

	_, err = Open(key, ciphertext)
	require.ErrorIs(t, err, ErrUnknownMsgType)
}

func TestVerificationTokenRoundTrip(t *testing.T) {
	key := roomcrypto.Derive([]byte("hunter2"), "lobby")
	token, err := key.MakeVerificationToken("lobby")
	require.NoError(t, err)

	msg := VerificationToken("bob", "c3d4", token)
	payload, err := Seal(key, msg)
	require.NoError(t, err)

	got, err := Open(key, payload)
	require.NoError(t, err)
	require.Equal(t, MsgVerificationToken, got.MsgType)

	decoded, err := DecodeVerificationToken(got)
	require.NoError(t, err)
	require.True(t, key.VerifyToken(decoded, "lobby"))
}
