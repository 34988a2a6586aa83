package rsasig

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"golang.org/x/crypto/sha3"
)

func genKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func TestSignVerifyRoundTrip(t *testing.T) {
	key := genKey(t)
	msg := []byte("hello supply chain")

	sig, err := Sign(key, msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if len(sig) != SignatureSize {
		t.Fatalf("signature size = %d, want %d", len(sig), SignatureSize)
	}
	if !Verify(&key.PublicKey, sig, msg) {
		t.Fatal("verify failed on untampered signature")
	}
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	key := genKey(t)
	msg := []byte("hello supply chain")

	sig, err := Sign(key, msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig[0] ^= 0xFF
	if Verify(&key.PublicKey, sig, msg) {
		t.Fatal("verify accepted a tampered signature")
	}
}

func TestVerifyRejectsWrongMessage(t *testing.T) {
	key := genKey(t)
	sig, err := Sign(key, []byte("part one"), []byte("part two"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !Verify(&key.PublicKey, sig, []byte("part one"), []byte("part two")) {
		t.Fatal("verify should accept matching concatenation")
	}
	if Verify(&key.PublicKey, sig, []byte("part one"), []byte("part twoX")) {
		t.Fatal("verify accepted a different message")
	}
}

func TestRecoverDigestMatchesSHA3(t *testing.T) {
	key := genKey(t)
	msg := []byte("the digest committed to by the signer")

	sig, err := Sign(key, msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	digest, err := RecoverDigest(&key.PublicKey, sig)
	if err != nil {
		t.Fatalf("recover digest: %v", err)
	}

	want := sha3.Sum256(msg)
	if digest != want {
		t.Fatalf("recovered digest = %x, want %x", digest, want)
	}
}

func TestRecoverDigestRejectsWrongLength(t *testing.T) {
	key := genKey(t)
	if _, err := RecoverDigest(&key.PublicKey, []byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short signature")
	}
}

func TestPublicKeyPEMRoundTrip(t *testing.T) {
	key := genKey(t)
	pemBytes, err := EncodePublicKeyPEM(&key.PublicKey)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	parsed, err := ParsePublicKeyPEM(pemBytes)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.N.Cmp(key.PublicKey.N) != 0 || parsed.E != key.PublicKey.E {
		t.Fatal("round-tripped key does not match original")
	}
}
