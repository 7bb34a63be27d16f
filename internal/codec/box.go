package codec

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

var (
	// ErrInvalidPayloadLength is returned before any decryption attempt
	// when the wire payload is outside protocol bounds.
	ErrInvalidPayloadLength = errors.New("invalid encrypted payload length")

	// ErrDecryptionFailed covers authentication failures and corrupted
	// ciphertext. No partial plaintext is ever returned.
	ErrDecryptionFailed = errors.New("payload decryption failed")
)

// Keypair is a Curve25519 keypair used for order encryption. It is
// distinct from the wallet signing key.
type Keypair struct {
	Public  [32]byte
	private [32]byte
}

// GenerateKeypair creates a random encryption keypair.
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate encryption keypair: %w", err)
	}
	return &Keypair{Public: *pub, private: *priv}, nil
}

// DeriveKeypair derives a deterministic encryption keypair from a 32-byte
// seed, typically a hash of a wallet signature so traders can recover the
// same keypair on any device.
func DeriveKeypair(seed [32]byte) (*Keypair, error) {
	pub, err := curve25519.X25519(seed[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive encryption keypair: %w", err)
	}
	kp := &Keypair{private: seed}
	copy(kp.Public[:], pub)
	return kp, nil
}

// PublicBase58 renders the public key for the registry surface.
func (k *Keypair) PublicBase58() string {
	return base58.Encode(k.Public[:])
}

// PublicKeyFromBase58 parses a registry-encoded encryption public key.
func PublicKeyFromBase58(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := base58.Decode(s)
	if err != nil {
		return out, fmt.Errorf("decode encryption pubkey: %w", err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("encryption pubkey must be 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// Encrypt seals the order terms for the recipient using authenticated
// public-key encryption. Output is nonce || ciphertext and has a fixed
// length for fixed-size terms, which keeps escrow account sizing static.
func Encrypt(terms OrderTerms, recipientPub [32]byte, sender *Keypair) ([]byte, error) {
	plaintext, err := SerializeTerms(terms)
	if err != nil {
		return nil, err
	}

	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	sealed := box.Seal(nonce[:], plaintext, &nonce, &recipientPub, &sender.private)
	if len(sealed) < MinPayloadSize || len(sealed) > MaxPayloadSize {
		return nil, ErrInvalidPayloadLength
	}
	return sealed, nil
}

// Decrypt opens a nonce || ciphertext payload produced by Encrypt. It
// fails closed: any length violation or authentication failure yields an
// error and no terms.
func Decrypt(payload []byte, senderPub [32]byte, recipient *Keypair) (OrderTerms, error) {
	if len(payload) < MinPayloadSize || len(payload) > MaxPayloadSize {
		return OrderTerms{}, ErrInvalidPayloadLength
	}

	var nonce [NonceSize]byte
	copy(nonce[:], payload[:NonceSize])

	plaintext, ok := box.Open(nil, payload[NonceSize:], &nonce, &senderPub, &recipient.private)
	if !ok {
		return OrderTerms{}, ErrDecryptionFailed
	}

	terms, err := DeserializeTerms(plaintext)
	if err != nil {
		return OrderTerms{}, fmt.Errorf("%w: %s", ErrDecryptionFailed, err)
	}
	return terms, nil
}

// ValidatePayloadLength checks wire bounds without touching the contents,
// used by the ledger at submission time.
func ValidatePayloadLength(payload []byte) error {
	if len(payload) < MinPayloadSize || len(payload) > MaxPayloadSize {
		return ErrInvalidPayloadLength
	}
	return nil
}
