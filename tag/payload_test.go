package tag

import (
	"bytes"
	"testing"

	"github.com/icprovenance/rfidchain/chiptelemetry"
)

func telemetry42() chiptelemetry.ChipTelemetry {
	return chiptelemetry.ChipTelemetry{
		ChipID:  chiptelemetry.ChipIDFromUint64(42),
		Freq:    5.0,
		Voltage: 5.0,
		Temp:    5.0,
		Time:    5.0,
	}
}

func TestEmptyChainRoundTrip(t *testing.T) {
	p := ChipPayload{ChipData: telemetry42()}
	p.CRC = ComputeCRC(p)

	if !ValidCRC(p) {
		t.Fatal("expected valid CRC on freshly built payload")
	}

	encoded := Encode(p)
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if decoded.CRC != p.CRC {
		t.Fatalf("crc mismatch: got %d want %d", decoded.CRC, p.CRC)
	}
	if decoded.ChipData != p.ChipData {
		t.Fatalf("telemetry mismatch: got %+v want %+v", decoded.ChipData, p.ChipData)
	}
	if len(decoded.Entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(decoded.Entries))
	}
	if !ValidCRC(decoded) {
		t.Fatal("decoded payload should still have a valid CRC")
	}
}

func TestEncodeDecodeWithEntries(t *testing.T) {
	p := ChipPayload{
		ChipData: telemetry42(),
		Entries: []HandoffEntry{
			{PubKey: 0, Signature: bytes.Repeat([]byte{0xAA}, EntrySize-4)},
			{PubKey: 1, Signature: bytes.Repeat([]byte{0xBB}, EntrySize-4)},
		},
	}
	p.CRC = ComputeCRC(p)

	encoded := Encode(p)
	wantLen := 4 + chiptelemetry.Size + 2*EntrySize
	if len(encoded) != wantLen {
		t.Fatalf("encoded length = %d, want %d", len(encoded), wantLen)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(decoded.Entries))
	}
	for i, e := range decoded.Entries {
		if e.PubKey != p.Entries[i].PubKey {
			t.Fatalf("entry %d pub key mismatch", i)
		}
		if !bytes.Equal(e.Signature, p.Entries[i].Signature) {
			t.Fatalf("entry %d signature mismatch", i)
		}
	}
}

func TestDecodeIgnoresSurplusTrailingBytes(t *testing.T) {
	p := ChipPayload{ChipData: telemetry42()}
	p.CRC = ComputeCRC(p)
	encoded := append(Encode(p), 0xDE, 0xAD, 0xBE, 0xEF)

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ChipData != p.ChipData {
		t.Fatal("telemetry mismatch with trailing bytes present")
	}
}

func TestDecodeTruncatedHeader(t *testing.T) {
	if _, err := Decode([]byte{0x00, 0x01}); err == nil {
		t.Fatal("expected truncation error for short header")
	}
}

func TestDecodeTruncatedEntries(t *testing.T) {
	p := ChipPayload{
		ChipData: telemetry42(),
		Entries: []HandoffEntry{
			{PubKey: 0, Signature: bytes.Repeat([]byte{0xAA}, EntrySize-4)},
		},
	}
	p.CRC = ComputeCRC(p)
	encoded := Encode(p)
	// Chop off the last byte of the one entry.
	truncated := encoded[:len(encoded)-1]
	if _, err := Decode(truncated); err == nil {
		t.Fatal("expected truncation error for missing entry bytes")
	}
}

func TestTamperedTelemetryBreaksCRC(t *testing.T) {
	p := ChipPayload{ChipData: telemetry42()}
	p.CRC = ComputeCRC(p)
	encoded := Encode(p)

	// Flip one bit inside the telemetry field.
	encoded[4] ^= 0x01

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ValidCRC(decoded) {
		t.Fatal("expected CRC mismatch after tampering with telemetry")
	}
}
