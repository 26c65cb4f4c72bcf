// Package roomcrypto derives per-room symmetric keys from a shared password
// and room name, and provides the authenticated encryption and verification
// token primitives built on top of that key.
package roomcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	nonceLen = 12
	keyLen   = 32
	saltLen  = 16
	tagLen   = 16

	// Argon2id parameters, fixed so any two peers deriving from the same
	// (password, room_name) converge on the same key without negotiation.
	argonMemoryKiB = 8 * 1024
	argonTime      = 2
	argonThreads   = 1
)

// VerifyMagic is the fixed plaintext prefix encrypted to prove key
// possession. Versioned so future protocol revisions can coexist.
const VerifyMagic = "chatapp-v1-verification"

// ErrCiphertextTooShort is returned by Decrypt when the input cannot
// possibly contain a nonce and an AEAD tag.
var ErrCiphertextTooShort = errors.New("roomcrypto: ciphertext too short")

// ErrDecryptFailed is returned by Decrypt on AEAD authentication failure —
// wrong key or corrupted/foreign data. Deliberately does not distinguish
// the two causes, so callers can't use it to confirm key guesses.
var ErrDecryptFailed = errors.New("roomcrypto: decryption failed")

// RoomKey is a 32-byte symmetric key derived from a room password.
type RoomKey struct {
	key [keyLen]byte
}

// Derive produces the room key for (password, roomName) using Argon2id.
// The salt is the room name's UTF-8 bytes, copied into a 16-byte buffer
// (truncated if longer, zero-padded if shorter) — deliberately cheap and
// deterministic, not a random per-derivation salt, so two peers with the
// same (password, roomName) always agree on the same key.
func Derive(password []byte, roomName string) RoomKey {
	var salt [saltLen]byte
	copy(salt[:], []byte(roomName)) // copy truncates/zero-pads automatically

	derived := argon2.IDKey(password, salt[:], argonTime, argonMemoryKiB, argonThreads, keyLen)

	var rk RoomKey
	copy(rk.key[:], derived)
	return rk
}

// Encrypt seals plaintext under the room key and returns
// nonce(12) ‖ ciphertext ‖ tag. Errors only on RNG failure or impossible
// GCM size-limit violations; callers may treat a non-nil error as fatal.
func (k RoomKey) Encrypt(plaintext []byte) ([]byte, error) {
	gcm, err := k.aead()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("roomcrypto: generate nonce: %w", err)
	}

	out := gcm.Seal(nonce, nonce, plaintext, nil)
	return out, nil
}

// Decrypt opens nonce(12) ‖ ciphertext ‖ tag and returns the plaintext.
// Fails with ErrCiphertextTooShort when data is shorter than a nonce plus a
// tag, and with ErrDecryptFailed on any authentication failure, which does
// not reveal whether the key was wrong or the frame corrupted. Never panics.
func (k RoomKey) Decrypt(data []byte) ([]byte, error) {
	if len(data) < nonceLen+tagLen {
		return nil, ErrCiphertextTooShort
	}

	gcm, err := k.aead()
	if err != nil {
		return nil, err
	}

	nonce, ciphertext := data[:nonceLen], data[nonceLen:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// MakeVerificationToken encrypts the fixed verification string for
// roomName, proving possession of the key without disclosing it.
func (k RoomKey) MakeVerificationToken(roomName string) ([]byte, error) {
	payload := VerifyMagic + "::" + roomName
	return k.Encrypt([]byte(payload))
}

// VerifyToken returns true iff token decrypts under k and the recovered
// plaintext matches the expected verification string for roomName.
func (k RoomKey) VerifyToken(token []byte, roomName string) bool {
	plaintext, err := k.Decrypt(token)
	if err != nil {
		return false
	}
	expected := VerifyMagic + "::" + roomName
	return string(plaintext) == expected
}

func (k RoomKey) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(k.key[:])
	if err != nil {
		return nil, fmt.Errorf("roomcrypto: build cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("roomcrypto: build gcm: %w", err)
	}
	return gcm, nil
}
