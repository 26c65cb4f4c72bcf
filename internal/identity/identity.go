// Package identity manages each peer's long-lived Ed25519 keypair, the
// content-addressed peer ID derived from it, and the nickname#discriminator
// display name shown to other peers.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/TechieQuokka/chatapp-go/internal/config"
)

// Identity is a peer's cryptographic and display identity for the lifetime
// of the process.
type Identity struct {
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey

	// PeerID is a Base58-encoded sha256 hash of the public key — a content
	// address, not a certificate: any peer can recompute it from a proof
	// the sender controls PublicKey, but nothing here forges trust beyond
	// "this peer currently holds the matching private key".
	PeerID string

	// Discriminator is 4 hex characters derived from PeerID bytes 2 and 3,
	// giving peers sharing a nickname a short distinguishing suffix.
	Discriminator string

	Nickname string
}

// LoadOrCreate loads a keypair from cfg, generating a new one and storing it
// in cfg.PrivateKeyB64 if none exists; it does not call cfg.Save, so the
// caller persists cfg. The nickname defaults to "Peer<discriminator>" when
// cfg.Nickname is empty.
func LoadOrCreate(cfg *config.Config) (*Identity, error) {
	var priv ed25519.PrivateKey

	if cfg.PrivateKeyB64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(cfg.PrivateKeyB64)
		if err != nil {
			return nil, fmt.Errorf("identity: decode private key: %w", err)
		}
		if len(decoded) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("identity: private key has wrong size: got %d, want %d", len(decoded), ed25519.PrivateKeySize)
		}
		priv = ed25519.PrivateKey(decoded)
	} else {
		_, generated, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("identity: generate keypair: %w", err)
		}
		priv = generated
		cfg.PrivateKeyB64 = base64.StdEncoding.EncodeToString(priv)
	}

	pub := priv.Public().(ed25519.PublicKey)
	peerID := peerIDFromPublicKey(pub)
	disc := discriminatorFromPeerID(peerID)

	nickname := cfg.Nickname
	if nickname == "" {
		nickname = "Peer" + disc
	}

	return &Identity{
		PrivateKey:    priv,
		PublicKey:     pub,
		PeerID:        peerID,
		Discriminator: disc,
		Nickname:      nickname,
	}, nil
}

// DisplayName returns the "nickname#disc" string shown to other peers.
func (id *Identity) DisplayName() string {
	return id.Nickname + "#" + id.Discriminator
}

func peerIDFromPublicKey(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return base58.Encode(sum[:])
}

// discriminatorFromPeerID derives a 4-hex-char discriminator from a
// Base58-decoded peer ID's bytes 2 and 3. Falls back to bytes 0 and 1 if the
// ID is too short, which in practice never happens for a sha256 digest.
func discriminatorFromPeerID(peerID string) string {
	raw, err := base58.Decode(peerID)
	if err != nil || len(raw) < 2 {
		return "0000"
	}
	a, b := raw[0], raw[1]
	if len(raw) >= 4 {
		a, b = raw[2], raw[3]
	}
	return fmt.Sprintf("%02x%02x", a, b)
}
