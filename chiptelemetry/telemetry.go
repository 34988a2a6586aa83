package chiptelemetry

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Size is the fixed wire size of a ChipTelemetry block: 16-byte chip id
// plus four big-endian float32 readings.
const Size = 16 + 4*4

// ChipTelemetry is the immutable sensor snapshot fixed at chip manufacture.
type ChipTelemetry struct {
	ChipID  ChipID  `json:"chip_id"`
	Freq    float32 `json:"freq"`
	Voltage float32 `json:"voltage"`
	Temp    float32 `json:"temp"`
	Time    float32 `json:"time"`
}

// Encode serializes the telemetry block to its fixed 32-byte big-endian
// wire form. Field order and width are normative.
func (t ChipTelemetry) Encode() []byte {
	buf := make([]byte, Size)
	copy(buf[0:16], t.ChipID[:])
	binary.BigEndian.PutUint32(buf[16:20], math.Float32bits(t.Freq))
	binary.BigEndian.PutUint32(buf[20:24], math.Float32bits(t.Voltage))
	binary.BigEndian.PutUint32(buf[24:28], math.Float32bits(t.Temp))
	binary.BigEndian.PutUint32(buf[28:32], math.Float32bits(t.Time))
	return buf
}

// Decode parses a fixed 32-byte telemetry block.
func Decode(buf []byte) (ChipTelemetry, error) {
	if len(buf) < Size {
		return ChipTelemetry{}, fmt.Errorf("chiptelemetry: truncated block: need %d bytes, got %d", Size, len(buf))
	}
	var t ChipTelemetry
	copy(t.ChipID[:], buf[0:16])
	t.Freq = math.Float32frombits(binary.BigEndian.Uint32(buf[16:20]))
	t.Voltage = math.Float32frombits(binary.BigEndian.Uint32(buf[20:24]))
	t.Temp = math.Float32frombits(binary.BigEndian.Uint32(buf[24:28]))
	t.Time = math.Float32frombits(binary.BigEndian.Uint32(buf[28:32]))
	return t, nil
}
