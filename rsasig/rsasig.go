// Package rsasig implements the signature primitive shared by the
// supply-chain chain and the mirror ledger: RSA-PKCS#1v1.5 signatures over
// SHA3-256 digests, plus a digest-recovery helper used to derive the
// previous-state commitment input for the next entry in a chain.
package rsasig

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"

	"golang.org/x/crypto/sha3"
)

// SignatureSize is the fixed length of every signature produced here: the
// byte size of a 2048-bit RSA modulus.
const SignatureSize = 256

// sha3256DigestInfoPrefixLen is the length, in bytes, of the ASN.1 DigestInfo
// header that PKCS#1v1.5 prepends to a SHA3-256 hash before RSA encryption.
// Treated as a literal constant here, matching the source this package was
// ported from, rather than parsed out of the ASN.1 structure.
const sha3256DigestInfoPrefixLen = 19

// digestSize is the length of a SHA3-256 digest.
const digestSize = 32

// ParsePublicKeyPEM decodes a PEM-encoded RSA public key (PKIX or PKCS#1).
func ParsePublicKeyPEM(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("rsasig: no PEM block found")
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("rsasig: parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("rsasig: PEM block is not an RSA public key")
	}
	return rsaPub, nil
}

// ParsePrivateKeyPEM decodes a PEM-encoded RSA private key (PKCS#1 or PKCS#8).
func ParsePrivateKeyPEM(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("rsasig: no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("rsasig: parse private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("rsasig: PEM block is not an RSA private key")
	}
	return rsaKey, nil
}

// EncodePublicKeyPEM renders an RSA public key back to PKIX PEM, the form
// every chain signature commits to (pem(K_x) in the spec's notation).
func EncodePublicKeyPEM(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("rsasig: marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// LoadPrivateKeyFile reads and parses a PEM private key from disk.
func LoadPrivateKeyFile(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rsasig: read private key %s: %w", path, err)
	}
	return ParsePrivateKeyPEM(data)
}

// digestOf returns the SHA3-256 digest of the in-order concatenation of
// parts, with no separators between them.
func digestOf(parts ...[]byte) [digestSize]byte {
	var buf []byte
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return sha3.Sum256(buf)
}

// Sign produces a 256-byte RSA-PKCS#1v1.5 signature over the SHA3-256 digest
// of parts concatenated in order.
func Sign(priv *rsa.PrivateKey, parts ...[]byte) ([]byte, error) {
	digest := digestOf(parts...)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA3_256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("rsasig: sign: %w", err)
	}
	if len(sig) != SignatureSize {
		return nil, fmt.Errorf("rsasig: unexpected signature length %d", len(sig))
	}
	return sig, nil
}

// Verify reports whether signature is a valid PKCS#1v1.5 signature over
// SHA3-256(concat(parts...)) under pub. Any malformed input is reported as
// a failed verification, not a distinct error.
func Verify(pub *rsa.PublicKey, signature []byte, parts ...[]byte) bool {
	if pub == nil || len(signature) != SignatureSize {
		return false
	}
	digest := digestOf(parts...)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA3_256, digest[:], signature) == nil
}

// RecoverDigest recovers the SHA3-256 digest a signer committed to, via raw
// RSA public-key exponentiation on the signature followed by stripping the
// fixed 19-byte SHA3-256 DigestInfo prefix. This is a hash-commitment
// shortcut, not a substitute for Verify: it succeeds (returning whatever
// bytes land where the digest should be) even for signatures that would
// fail full PKCS#1v1.5 verification, so callers must still call Verify to
// authenticate the entry itself.
func RecoverDigest(pub *rsa.PublicKey, signature []byte) ([digestSize]byte, error) {
	var out [digestSize]byte
	if pub == nil {
		return out, fmt.Errorf("rsasig: nil public key")
	}
	k := (pub.N.BitLen() + 7) / 8
	if len(signature) != k {
		return out, fmt.Errorf("rsasig: signature length %d does not match modulus size %d", len(signature), k)
	}
	c := new(big.Int).SetBytes(signature)
	e := big.NewInt(int64(pub.E))
	m := new(big.Int).Exp(c, e, pub.N)

	em := make([]byte, k)
	m.FillBytes(em) // left-padded big-endian, matching the modulus width

	digestInfoLen := sha3256DigestInfoPrefixLen + digestSize
	if k < digestInfoLen {
		return out, fmt.Errorf("rsasig: modulus too small for SHA3-256 DigestInfo")
	}
	digestInfo := em[k-digestInfoLen:]
	copy(out[:], digestInfo[sha3256DigestInfoPrefixLen:])
	return out, nil
}
