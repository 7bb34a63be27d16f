package tier

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
)

// MaxProofAge is the baseline freshness window for reputation proofs.
const MaxProofAge = 600 * time.Second

var (
	ErrStaleProof   = errors.New("reputation proof older than freshness window")
	ErrInvalidProof = errors.New("reputation proof signature invalid")
)

// ScoreProof is the oracle's attestation of a wallet's score at a point
// in time. The signature covers wallet || score || tier || timestamp LE.
type ScoreProof struct {
	Wallet    solana.PublicKey `json:"wallet"`
	Score     uint8            `json:"score"`
	Tier      uint8            `json:"tier"`
	Timestamp int64            `json:"timestamp"`
	Signature [64]byte         `json:"signature"`
}

// signedMessage rebuilds the byte string the oracle signed.
func (p *ScoreProof) signedMessage() []byte {
	msg := make([]byte, 0, 32+1+1+8)
	msg = append(msg, p.Wallet.Bytes()...)
	msg = append(msg, p.Score, p.Tier)
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(p.Timestamp))
	return append(msg, ts[:]...)
}

// Sign attests the proof with the oracle's ed25519 key. Used by tests and
// by the oracle fake; production proofs arrive pre-signed.
func (p *ScoreProof) Sign(key ed25519.PrivateKey) {
	copy(p.Signature[:], ed25519.Sign(key, p.signedMessage()))
}

// VerifyProof checks the attestation signature and freshness. A stale
// proof is a hard failure, never a silent downgrade to tier 0.
func VerifyProof(p *ScoreProof, oracleKey ed25519.PublicKey, maxAge time.Duration, now time.Time) error {
	if p.Score > MaxScore {
		return fmt.Errorf("%w: score %d out of range", ErrInvalidProof, p.Score)
	}
	if !ed25519.Verify(oracleKey, p.signedMessage(), p.Signature[:]) {
		return ErrInvalidProof
	}
	age := now.Sub(time.Unix(p.Timestamp, 0))
	if age > maxAge {
		return fmt.Errorf("%w: issued %s ago", ErrStaleProof, age.Truncate(time.Second))
	}
	return nil
}
