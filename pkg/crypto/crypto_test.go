package crypto

import (
	"bytes"
	"testing"

	"github.com/wirelay/wirelay/internal/constants"
	werrors "github.com/wirelay/wirelay/internal/errors"
)

func TestSecureRandomBytes(t *testing.T) {
	a, err := SecureRandomBytes(32)
	if err != nil {
		t.Fatalf("SecureRandomBytes: %v", err)
	}
	b, err := SecureRandomBytes(32)
	if err != nil {
		t.Fatalf("SecureRandomBytes: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("two random reads returned identical bytes")
	}
}

func TestConstantTimeCompare(t *testing.T) {
	a := []byte{1, 2, 3}
	if !ConstantTimeCompare(a, []byte{1, 2, 3}) {
		t.Error("equal slices compared unequal")
	}
	if ConstantTimeCompare(a, []byte{1, 2, 4}) {
		t.Error("unequal slices compared equal")
	}
	if ConstantTimeCompare(a, []byte{1, 2}) {
		t.Error("different lengths compared equal")
	}
}

func TestZeroize(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	Zeroize(b)
	for i, v := range b {
		if v != 0 {
			t.Errorf("byte %d not zeroized: %d", i, v)
		}
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	a, err := DeriveKey("test-domain", []byte("input"), 32)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	b, _ := DeriveKey("test-domain", []byte("input"), 32)
	if !bytes.Equal(a, b) {
		t.Error("same inputs derived different keys")
	}
}

func TestDeriveKeyDomainSeparation(t *testing.T) {
	a, _ := DeriveKey("domain-a", []byte("input"), 32)
	b, _ := DeriveKey("domain-b", []byte("input"), 32)
	if bytes.Equal(a, b) {
		t.Error("different domains derived identical keys")
	}
}

func TestDeriveKeyMultipleBoundaryAmbiguity(t *testing.T) {
	// Length prefixing must distinguish {"ab","c"} from {"a","bc"}.
	a, _ := DeriveKeyMultiple("d", [][]byte{[]byte("ab"), []byte("c")}, 32)
	b, _ := DeriveKeyMultiple("d", [][]byte{[]byte("a"), []byte("bc")}, 32)
	if bytes.Equal(a, b) {
		t.Error("input boundaries are ambiguous")
	}
}

func TestDeriveKeyInvalidLength(t *testing.T) {
	if _, err := DeriveKey("d", []byte("x"), 0); err == nil {
		t.Error("expected error for zero output length")
	}
	if _, err := DeriveKey("d", []byte("x"), 1<<21); err == nil {
		t.Error("expected error for oversized output length")
	}
}

func TestDeriveTrafficKeysDirectional(t *testing.T) {
	master := []byte("0123456789abcdef0123456789abcdef")
	ik, rk, err := DeriveTrafficKeys(master)
	if err != nil {
		t.Fatalf("DeriveTrafficKeys: %v", err)
	}
	if len(ik) != constants.AEADKeySize || len(rk) != constants.AEADKeySize {
		t.Fatalf("wrong key sizes: %d, %d", len(ik), len(rk))
	}
	if bytes.Equal(ik, rk) {
		t.Error("initiator and responder keys are identical")
	}
}

func TestTranscriptHashBinding(t *testing.T) {
	a := TranscriptHash([]byte("one"), []byte("two"))
	b := TranscriptHash([]byte("one"), []byte("two"))
	c := TranscriptHash([]byte("onet"), []byte("wo"))
	if !bytes.Equal(a, b) {
		t.Error("transcript hash is not deterministic")
	}
	if bytes.Equal(a, c) {
		t.Error("transcript hash does not bind part boundaries")
	}
}

func TestAEADRoundTrip(t *testing.T) {
	key := make([]byte, constants.AEADKeySize)
	_ = SecureRandom(key)
	aead, err := NewAEAD(key)
	if err != nil {
		t.Fatalf("NewAEAD: %v", err)
	}

	nonce := CounterNonce(7)
	plaintext := []byte("tunnel payload")
	aad := []byte("header")

	ct, err := aead.Seal(nonce, plaintext, aad)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	pt, err := aead.Open(nonce, ct, aad)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Errorf("round trip mismatch: got %q", pt)
	}
}

func TestAEADTamperDetection(t *testing.T) {
	key := make([]byte, constants.AEADKeySize)
	aead, _ := NewAEAD(key)

	nonce := CounterNonce(1)
	ct, _ := aead.Seal(nonce, []byte("payload"), nil)

	ct[0] ^= 0x01
	if _, err := aead.Open(nonce, ct, nil); !werrors.Is(err, werrors.ErrAuthenticationFailed) {
		t.Errorf("expected ErrAuthenticationFailed, got %v", err)
	}

	ct[0] ^= 0x01
	if _, err := aead.Open(nonce, ct, []byte("wrong aad")); !werrors.Is(err, werrors.ErrAuthenticationFailed) {
		t.Errorf("expected ErrAuthenticationFailed for wrong aad, got %v", err)
	}

	if _, err := aead.Open(CounterNonce(2), ct, nil); !werrors.Is(err, werrors.ErrAuthenticationFailed) {
		t.Errorf("expected ErrAuthenticationFailed for wrong nonce, got %v", err)
	}
}

func TestAEADInvalidKey(t *testing.T) {
	if _, err := NewAEAD(make([]byte, 16)); err == nil {
		t.Error("expected error for short key")
	}
}

func TestCounterNonce(t *testing.T) {
	n := CounterNonce(0x0102030405060708)
	if len(n) != constants.AEADNonceSize {
		t.Fatalf("nonce size: %d", len(n))
	}
	want := []byte{0, 0, 0, 0, 1, 2, 3, 4, 5, 6, 7, 8}
	if !bytes.Equal(n, want) {
		t.Errorf("nonce layout: got %v want %v", n, want)
	}
	if bytes.Equal(CounterNonce(1), CounterNonce(2)) {
		t.Error("distinct counters produced identical nonces")
	}
}

func TestX25519Agreement(t *testing.T) {
	a, err := GenerateX25519KeyPair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, err := GenerateX25519KeyPair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	ab, err := X25519(a.PrivateKey, b.PublicKey)
	if err != nil {
		t.Fatalf("X25519: %v", err)
	}
	ba, err := X25519(b.PrivateKey, a.PublicKey)
	if err != nil {
		t.Fatalf("X25519: %v", err)
	}
	if !bytes.Equal(ab, ba) {
		t.Error("shared secrets disagree")
	}
	if len(ab) != constants.KeySize {
		t.Errorf("shared secret size: %d", len(ab))
	}
}

func TestX25519PrivateKeyDeterministic(t *testing.T) {
	raw := make([]byte, constants.KeySize)
	_ = SecureRandom(raw)

	k1, err := NewX25519PrivateKey(raw)
	if err != nil {
		t.Fatalf("NewX25519PrivateKey: %v", err)
	}
	k2, _ := NewX25519PrivateKey(raw)
	if !bytes.Equal(k1.PublicKey().Bytes(), k2.PublicKey().Bytes()) {
		t.Error("same private bytes derived different public keys")
	}

	if _, err := NewX25519PrivateKey(raw[:16]); !werrors.Is(err, werrors.ErrInvalidKeyLength) {
		t.Errorf("expected ErrInvalidKeyLength, got %v", err)
	}
}

func TestMLKEMRoundTrip(t *testing.T) {
	kp, err := GenerateMLKEMKeyPair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	ct, ssEnc, err := MLKEMEncapsulate(kp.EncapsulationKey)
	if err != nil {
		t.Fatalf("encapsulate: %v", err)
	}
	if len(ct) != MLKEMCiphertextSize {
		t.Errorf("ciphertext size: %d", len(ct))
	}

	ssDec, err := MLKEMDecapsulate(kp.DecapsulationKey, ct)
	if err != nil {
		t.Fatalf("decapsulate: %v", err)
	}
	if !bytes.Equal(ssEnc, ssDec) {
		t.Error("shared secrets disagree")
	}
}

func TestMLKEMPublicKeyEncoding(t *testing.T) {
	kp, _ := GenerateMLKEMKeyPair()

	encoded := kp.EncapsulationKey.Bytes()
	if len(encoded) != MLKEMPublicKeySize {
		t.Fatalf("encoded size: %d", len(encoded))
	}

	parsed, err := ParseMLKEMPublicKey(encoded)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	// Encapsulating to the parsed key must decapsulate with the original pair.
	ct, ssEnc, err := MLKEMEncapsulate(parsed)
	if err != nil {
		t.Fatalf("encapsulate: %v", err)
	}
	ssDec, err := MLKEMDecapsulate(kp.DecapsulationKey, ct)
	if err != nil {
		t.Fatalf("decapsulate: %v", err)
	}
	if !bytes.Equal(ssEnc, ssDec) {
		t.Error("parsed key does not match original")
	}

	if _, err := ParseMLKEMPublicKey(encoded[:100]); err == nil {
		t.Error("expected error for truncated key")
	}
	if _, err := MLKEMDecapsulate(kp.DecapsulationKey, ct[:50]); err == nil {
		t.Error("expected error for truncated ciphertext")
	}
}
