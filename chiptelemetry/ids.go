// Package chiptelemetry defines the identifiers and fixed-size telemetry
// block that travel inside every chip tag.
package chiptelemetry

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

// DistributorID names a distributor; it is the key into the key registry.
type DistributorID uint32

// ChipID names one physical chip. The wire and in-memory form is a 128-bit
// unsigned integer, stored big-endian.
type ChipID [16]byte

// NewChipID builds a ChipID from its high and low 64-bit halves.
func NewChipID(hi, lo uint64) ChipID {
	var id ChipID
	binary.BigEndian.PutUint64(id[0:8], hi)
	binary.BigEndian.PutUint64(id[8:16], lo)
	return id
}

// ChipIDFromUint64 builds a ChipID whose value fits in the low 64 bits.
func ChipIDFromUint64(v uint64) ChipID {
	return NewChipID(0, v)
}

// Big returns the ChipID as an arbitrary-precision unsigned integer.
func (c ChipID) Big() *big.Int {
	return new(big.Int).SetBytes(c[:])
}

func (c ChipID) String() string {
	return c.Big().String()
}

// MarshalJSON renders the ChipID as a bare JSON numeric literal (per canon's
// rule that integers are numeric literals, not strings), even though the
// value may exceed float64 precision — valid JSON permits arbitrary-precision
// number literals, and decoders that need the full value should target
// math/big or json.Number rather than float64.
func (c ChipID) MarshalJSON() ([]byte, error) {
	return []byte(c.Big().String()), nil
}

// UnmarshalJSON parses a bare numeric literal (or a quoted decimal string,
// accepted for leniency) back into a ChipID.
func (c *ChipID) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("chiptelemetry: invalid chip id literal %q", s)
	}
	if n.Sign() < 0 || n.BitLen() > 128 {
		return fmt.Errorf("chiptelemetry: chip id %q out of range", s)
	}
	b := n.Bytes()
	var id ChipID
	copy(id[16-len(b):], b)
	*c = id
	return nil
}
