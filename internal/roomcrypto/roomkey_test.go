package roomcrypto

import "testing"

func TestDeriveIsDeterministic(t *testing.T) {
	a := Derive([]byte("hunter2"), "lobby")
	b := Derive([]byte("hunter2"), "lobby")
	if a.key != b.key {
		t.Fatal("Derive produced different keys for the same password and room name")
	}
}

func TestDeriveDiffersByRoomName(t *testing.T) {
	a := Derive([]byte("hunter2"), "lobby")
	b := Derive([]byte("hunter2"), "other-room")
	if a.key == b.key {
		t.Fatal("Derive produced the same key for two different room names")
	}
}

func TestDeriveDiffersByPassword(t *testing.T) {
	a := Derive([]byte("hunter2"), "lobby")
	b := Derive([]byte("correct-horse"), "lobby")
	if a.key == b.key {
		t.Fatal("Derive produced the same key for two different passwords")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := Derive([]byte("hunter2"), "lobby")
	plaintext := []byte("the eagle flies at midnight")

	ciphertext, err := key.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	got, err := key.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(got) != string(plaintext) {
		t.Fatalf("round trip mismatch: got %q, want %q", got, plaintext)
	}
}

func TestEncryptProducesDistinctNonces(t *testing.T) {
	key := Derive([]byte("hunter2"), "lobby")
	plaintext := []byte("same message twice")

	first, err := key.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	second, err := key.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if string(first) == string(second) {
		t.Fatal("two encryptions of the same plaintext produced identical frames")
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	right := Derive([]byte("hunter2"), "lobby")
	wrong := Derive([]byte("wrong-password"), "lobby")

	ciphertext, err := right.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if _, err := wrong.Decrypt(ciphertext); err != ErrDecryptFailed {
		t.Fatalf("Decrypt with wrong key: got err %v, want ErrDecryptFailed", err)
	}
}

func TestDecryptTooShortFails(t *testing.T) {
	key := Derive([]byte("hunter2"), "lobby")
	if _, err := key.Decrypt([]byte("short")); err != ErrCiphertextTooShort {
		t.Fatalf("Decrypt with truncated input: got err %v, want ErrCiphertextTooShort", err)
	}
}

func TestVerificationTokenRoundTrip(t *testing.T) {
	key := Derive([]byte("hunter2"), "lobby")

	token, err := key.MakeVerificationToken("lobby")
	if err != nil {
		t.Fatalf("MakeVerificationToken: %v", err)
	}

	if !key.VerifyToken(token, "lobby") {
		t.Fatal("VerifyToken rejected a token made with the same key and room name")
	}
}

func TestVerificationTokenRejectsWrongKey(t *testing.T) {
	right := Derive([]byte("hunter2"), "lobby")
	wrong := Derive([]byte("wrong-password"), "lobby")

	token, err := right.MakeVerificationToken("lobby")
	if err != nil {
		t.Fatalf("MakeVerificationToken: %v", err)
	}

	if wrong.VerifyToken(token, "lobby") {
		t.Fatal("VerifyToken accepted a token made with a different key")
	}
}

func TestVerificationTokenRejectsWrongRoomName(t *testing.T) {
	key := Derive([]byte("hunter2"), "lobby")

	token, err := key.MakeVerificationToken("lobby")
	if err != nil {
		t.Fatalf("MakeVerificationToken: %v", err)
	}

	if key.VerifyToken(token, "other-room") {
		t.Fatal("VerifyToken accepted a token whose plaintext names a different room")
	}
}
