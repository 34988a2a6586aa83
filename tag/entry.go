package tag

import (
	"encoding/binary"
	"fmt"

	"github.com/icprovenance/rfidchain/chiptelemetry"
	"github.com/icprovenance/rfidchain/rsasig"
)

// EntrySize is the wire size of one HandoffEntry: a 4-byte little-endian
// distributor id followed by a 256-byte RSA signature.
const EntrySize = 4 + rsasig.SignatureSize

// HandoffEntry is one distributor's hand-off signature on a chip tag.
type HandoffEntry struct {
	PubKey    chiptelemetry.DistributorID `json:"pub_key"`
	Signature []byte                      `json:"signature"` // always rsasig.SignatureSize bytes
}

// SignatureBytes satisfies the BlockchainEntry capability shared with
// ledger.CentralEntry: narrow interfaces over inheritance.
func (e HandoffEntry) SignatureBytes() []byte { return e.Signature }

func encodeEntry(e HandoffEntry, buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(e.PubKey))
	copy(buf[4:EntrySize], e.Signature)
}

func decodeEntry(buf []byte) (HandoffEntry, error) {
	if len(buf) < EntrySize {
		return HandoffEntry{}, fmt.Errorf("tag: %w: truncated entry", ErrTruncated)
	}
	sig := make([]byte, rsasig.SignatureSize)
	copy(sig, buf[4:EntrySize])
	return HandoffEntry{
		PubKey:    chiptelemetry.DistributorID(binary.LittleEndian.Uint32(buf[0:4])),
		Signature: sig,
	}, nil
}
