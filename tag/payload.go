// Package tag implements the fixed-layout binary wire encoding of a chip
// RFID tag: telemetry plus an ordered sequence of hand-off signatures, with
// a CRC-16/X-25 guard over everything past the CRC field itself.
package tag

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/icprovenance/rfidchain/chiptelemetry"
)

// ErrTruncated is wrapped into the error returned by Decode when the input
// does not contain as many bytes as its header promises.
var ErrTruncated = errors.New("truncated payload")

// MaxEntries bounds entry_count, matching its u16 wire width.
const MaxEntries = 1<<16 - 1

// ChipPayload is the RFID tag: a CRC, fixed telemetry, and the ordered
// supply-chain hand-off entries appended so far.
type ChipPayload struct {
	CRC      uint16                      `json:"crc"`
	ChipData chiptelemetry.ChipTelemetry `json:"chip_data"`
	Entries  []HandoffEntry              `json:"entries"`
}

// postCRCBytes serializes entry_count ∥ chip_telemetry ∥ entries..., the
// exact region the CRC is computed over (the bytes that follow the CRC
// field on the wire).
func postCRCBytes(p ChipPayload) []byte {
	buf := make([]byte, 2+chiptelemetry.Size+len(p.Entries)*EntrySize)
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(p.Entries)))
	copy(buf[2:2+chiptelemetry.Size], p.ChipData.Encode())
	off := 2 + chiptelemetry.Size
	for _, e := range p.Entries {
		encodeEntry(e, buf[off:off+EntrySize])
		off += EntrySize
	}
	return buf
}

// ComputeCRC serializes p with a zeroed CRC field (conceptually — the CRC
// field is never part of the computation) and runs CRC-16/X-25 over the
// post-CRC region, returning the value per the wire-encoding quirk
// documented in crcFieldValue.
func ComputeCRC(p ChipPayload) uint16 {
	return crcFieldValue(checksumX25(postCRCBytes(p)))
}

// ValidCRC reports whether p.CRC matches ComputeCRC(p).
func ValidCRC(p ChipPayload) bool {
	return p.CRC == ComputeCRC(p)
}

// Encode produces the wire layout:
//
//	[0..2)   crc16 (big-endian, see crcFieldValue)
//	[2..4)   entry_count (big-endian)
//	[4..36)  chip_telemetry (32 bytes)
//	[36..)   entry_count × (4-byte LE pub_key ∥ 256-byte signature)
//
// Encode is deterministic: it never iterates a map and touches no field
// beyond those listed above.
func Encode(p ChipPayload) []byte {
	body := postCRCBytes(p)
	crc := crcFieldValue(checksumX25(body))
	out := make([]byte, 2+len(body))
	binary.BigEndian.PutUint16(out[0:2], crc)
	copy(out[2:], body)
	return out
}

// Decode parses the wire layout documented on Encode. Bytes beyond the
// declared entry_count entries are ignored; insufficient bytes yield a
// wrapped ErrTruncated.
func Decode(buf []byte) (ChipPayload, error) {
	if len(buf) < 4+chiptelemetry.Size {
		return ChipPayload{}, fmt.Errorf("tag: %w: need at least %d bytes, got %d", ErrTruncated, 4+chiptelemetry.Size, len(buf))
	}
	crc := binary.BigEndian.Uint16(buf[0:2])
	entryCount := binary.BigEndian.Uint16(buf[2:4])

	chipData, err := chiptelemetry.Decode(buf[4 : 4+chiptelemetry.Size])
	if err != nil {
		return ChipPayload{}, fmt.Errorf("tag: decode telemetry: %w", err)
	}

	need := 4 + chiptelemetry.Size + int(entryCount)*EntrySize
	if len(buf) < need {
		return ChipPayload{}, fmt.Errorf("tag: %w: need %d bytes for %d entries, got %d", ErrTruncated, need, entryCount, len(buf))
	}

	entries := make([]HandoffEntry, entryCount)
	off := 4 + chiptelemetry.Size
	for i := range entries {
		e, err := decodeEntry(buf[off : off+EntrySize])
		if err != nil {
			return ChipPayload{}, err
		}
		entries[i] = e
		off += EntrySize
	}

	return ChipPayload{CRC: crc, ChipData: chipData, Entries: entries}, nil
}
