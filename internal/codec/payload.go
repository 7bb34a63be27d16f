package codec

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Wire layout of the decrypted order terms. All integers little-endian.
//
//	offset 0  u64 minOutputAmount
//	offset 8  u16 slippageBps
//	offset 10 i64 deadline (unix seconds)
//	offset 18 6 reserved bytes (zero)
const (
	TermsSize = 24

	// NonceSize is the XSalsa20 nonce prepended to every payload.
	NonceSize = 24

	// Overhead is the Poly1305 authentication tag appended by the box.
	Overhead = 16

	// MinPayloadSize is nonce + tag + fixed terms.
	MinPayloadSize = NonceSize + Overhead + TermsSize

	// MaxPayloadSize leaves room for future routing hints.
	MaxPayloadSize = 128
)

const maxSlippageBps = 10000

// OrderTerms are the private economic terms of an order. They stay
// encrypted on the ledger until the solver decrypts them.
type OrderTerms struct {
	MinOutputAmount uint64
	SlippageBps     uint16
	Deadline        int64
}

// Validate checks the terms against protocol ranges.
func (t OrderTerms) Validate() error {
	if t.SlippageBps > maxSlippageBps {
		return fmt.Errorf("slippage %d bps out of range [0, %d]", t.SlippageBps, maxSlippageBps)
	}
	if t.Deadline <= 0 {
		return fmt.Errorf("deadline must be a positive unix timestamp")
	}
	return nil
}

// Expired reports whether the deadline has passed at the given time.
func (t OrderTerms) Expired(now time.Time) bool {
	return now.Unix() >= t.Deadline
}

// SerializeTerms encodes terms into the fixed 24-byte record.
func SerializeTerms(t OrderTerms) ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, TermsSize)
	binary.LittleEndian.PutUint64(buf[0:8], t.MinOutputAmount)
	binary.LittleEndian.PutUint16(buf[8:10], t.SlippageBps)
	binary.LittleEndian.PutUint64(buf[10:18], uint64(t.Deadline))
	return buf, nil
}

// DeserializeTerms decodes a fixed-layout terms record. Oversized records
// (routing hints) are accepted; the fixed prefix must be present.
func DeserializeTerms(b []byte) (OrderTerms, error) {
	if len(b) < TermsSize {
		return OrderTerms{}, fmt.Errorf("terms record too short: %d bytes, need %d", len(b), TermsSize)
	}
	t := OrderTerms{
		MinOutputAmount: binary.LittleEndian.Uint64(b[0:8]),
		SlippageBps:     binary.LittleEndian.Uint16(b[8:10]),
		Deadline:        int64(binary.LittleEndian.Uint64(b[10:18])),
	}
	if t.SlippageBps > maxSlippageBps {
		return OrderTerms{}, fmt.Errorf("decoded slippage %d bps out of range", t.SlippageBps)
	}
	return t, nil
}
