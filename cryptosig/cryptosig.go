// Package cryptosig defines the Signer/Hasher capability boundary the
// intake pipeline depends on. The platform treats cryptographic primitives
// as an external collaborator (spec §1); this package is the seam plus a
// stdlib ECDSA P-256 implementation suitable for single-process tests and
// demos, grounded on the teacher's crypto package.
package cryptosig

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

// Signer signs event/round payloads on behalf of a node.
type Signer interface {
	PublicKey() []byte
	Sign(payload []byte) (signature []byte, err error)
}

// Verifier checks a signature against a public key taken from the address
// book. It is separate from Signer because verification never needs a
// private key.
type Verifier interface {
	Verify(pubKey, payload, signature []byte) bool
}

// Hasher computes the content hash that becomes an Event's identity.
type Hasher interface {
	Hash(payload []byte) []byte
}

type sha256Hasher struct{}

func NewSHA256Hasher() Hasher { return sha256Hasher{} }

func (sha256Hasher) Hash(payload []byte) []byte {
	h := sha256.Sum256(payload)
	return h[:]
}

// ECDSASigner is the default Signer/Verifier backed by P-256.
type ECDSASigner struct {
	priv *ecdsa.PrivateKey
	pub  []byte
}

func GenerateECDSAKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

func NewECDSASigner(priv *ecdsa.PrivateKey) *ECDSASigner {
	return &ECDSASigner{priv: priv, pub: FromECDSAPub(&priv.PublicKey)}
}

func (s *ECDSASigner) PublicKey() []byte { return s.pub }

func (s *ECDSASigner) Sign(payload []byte) ([]byte, error) {
	hash := NewSHA256Hasher().Hash(payload)
	r, ss, err := ecdsa.Sign(rand.Reader, s.priv, hash)
	if err != nil {
		return nil, err
	}
	return encodeSignature(r, ss), nil
}

func (s *ECDSASigner) Verify(pubKey, payload, signature []byte) bool {
	pub := ToECDSAPub(pubKey)
	if pub == nil {
		return false
	}
	r, ss, err := decodeSignature(signature)
	if err != nil {
		return false
	}
	hash := NewSHA256Hasher().Hash(payload)
	return ecdsa.Verify(pub, hash, r, ss)
}

func ToECDSAPub(pub []byte) *ecdsa.PublicKey {
	if len(pub) == 0 {
		return nil
	}
	x, y := elliptic.Unmarshal(elliptic.P256(), pub)
	if x == nil {
		return nil
	}
	return &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
}

func FromECDSAPub(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return elliptic.Marshal(elliptic.P256(), pub.X, pub.Y)
}

// ToHex and FromHex round-trip a raw public key through the address book's
// PubKeyHex field.
func ToHex(pub []byte) string {
	return "0x" + hex.EncodeToString(pub)
}

func FromHex(pubHex string) ([]byte, error) {
	if len(pubHex) >= 2 && pubHex[:2] == "0x" {
		pubHex = pubHex[2:]
	}
	return hex.DecodeString(pubHex)
}

func encodeSignature(r, s *big.Int) []byte {
	return []byte(fmt.Sprintf("%s|%s", hex.EncodeToString(r.Bytes()), hex.EncodeToString(s.Bytes())))
}

func decodeSignature(sig []byte) (*big.Int, *big.Int, error) {
	parts := make([][]byte, 0, 2)
	cur := []byte{}
	for _, b := range sig {
		if b == '|' {
			parts = append(parts, cur)
			cur = []byte{}
			continue
		}
		cur = append(cur, b)
	}
	parts = append(parts, cur)
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("malformed signature")
	}
	rb, err := hex.DecodeString(string(parts[0]))
	if err != nil {
		return nil, nil, err
	}
	sb, err := hex.DecodeString(string(parts[1]))
	if err != nil {
		return nil, nil, err
	}
	return new(big.Int).SetBytes(rb), new(big.Int).SetBytes(sb), nil
}
