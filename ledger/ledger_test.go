package ledger

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/icprovenance/rfidchain/chiptelemetry"
	"github.com/icprovenance/rfidchain/handoff"
	"github.com/icprovenance/rfidchain/keyregistry"
	"github.com/icprovenance/rfidchain/rsasig"
	"github.com/icprovenance/rfidchain/tag"
)

type ledgerTestKey struct {
	id      chiptelemetry.DistributorID
	private *rsa.PrivateKey
	record  keyregistry.PublicKeyRecord
}

func genLedgerTestKeys(t *testing.T, ids ...chiptelemetry.DistributorID) map[chiptelemetry.DistributorID]ledgerTestKey {
	t.Helper()
	keys := make(map[chiptelemetry.DistributorID]ledgerTestKey, len(ids))
	for _, id := range ids {
		priv, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("generate key %d: %v", id, err)
		}
		pemBytes, err := rsasig.EncodePublicKeyPEM(&priv.PublicKey)
		if err != nil {
			t.Fatalf("encode pub key %d: %v", id, err)
		}
		keys[id] = ledgerTestKey{
			id:      id,
			private: priv,
			record:  keyregistry.PublicKeyRecord{ID: id, Key: pemBytes, DistributorName: "dist"},
		}
	}
	return keys
}

func scenarioTwoPayload(t *testing.T, keys map[chiptelemetry.DistributorID]ledgerTestKey) tag.ChipPayload {
	t.Helper()
	reg := keyregistry.NewSnapshot(keys[0].record, keys[1].record, keys[2].record)
	b := handoff.NewBuilder().WithTelemetry(chiptelemetry.ChipIDFromUint64(42), 5.0, 5.0, 5.0, 5.0)
	if err := b.Append(keys[0].private, 0, 1, reg); err != nil {
		t.Fatalf("append entry 0: %v", err)
	}
	if err := b.Append(keys[1].private, 1, 2, reg); err != nil {
		t.Fatalf("append entry 1: %v", err)
	}
	return b.Finalize()
}

func TestMirrorAppendSingleEntryRoundTrip(t *testing.T) {
	keys := genLedgerTestKeys(t, 0, 1, 2)
	authorityPriv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate authority key: %v", err)
	}
	reg := keyregistry.NewSnapshot(keys[0].record, keys[1].record, keys[2].record)

	payload := scenarioTwoPayload(t, keys)

	l := CentralLedger{ChipID: chiptelemetry.ChipIDFromUint64(42)}
	l, err = AppendMirror(l, authorityPriv, 1, 2, keys[2].record.Key, payload)
	if err != nil {
		t.Fatalf("append mirror: %v", err)
	}

	if err := ValidateLedger(l, reg, &authorityPriv.PublicKey); err != nil {
		t.Fatalf("expected valid ledger, got %v", err)
	}
}

func TestMirrorAppendTwiceValidatesEachTime(t *testing.T) {
	keys := genLedgerTestKeys(t, 0, 1, 2)
	authorityPriv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate authority key: %v", err)
	}
	reg := keyregistry.NewSnapshot(keys[0].record, keys[1].record, keys[2].record)

	payload := scenarioTwoPayload(t, keys)

	l := CentralLedger{ChipID: chiptelemetry.ChipIDFromUint64(42)}
	l, err = AppendMirror(l, authorityPriv, 1, 2, keys[2].record.Key, payload)
	if err != nil {
		t.Fatalf("append mirror #1: %v", err)
	}
	if err := ValidateLedger(l, reg, &authorityPriv.PublicKey); err != nil {
		t.Fatalf("expected valid ledger after first entry, got %v", err)
	}

	// A later telemetry reading of the same chip, mirrored as a second entry.
	payload2 := payload
	payload2.ChipData.Temp += 1
	payload2.CRC = tag.ComputeCRC(payload2)

	l, err = AppendMirror(l, authorityPriv, 2, 0, keys[0].record.Key, payload2)
	if err != nil {
		t.Fatalf("append mirror #2: %v", err)
	}
	if len(l.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(l.Entries))
	}
	if err := ValidateLedger(l, reg, &authorityPriv.PublicKey); err != nil {
		t.Fatalf("expected valid ledger after second entry, got %v", err)
	}
}

func TestValidateLedgerRejectsTamperedEarlierEntry(t *testing.T) {
	keys := genLedgerTestKeys(t, 0, 1, 2)
	authorityPriv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate authority key: %v", err)
	}
	reg := keyregistry.NewSnapshot(keys[0].record, keys[1].record, keys[2].record)
	payload := scenarioTwoPayload(t, keys)

	l := CentralLedger{ChipID: chiptelemetry.ChipIDFromUint64(42)}
	l, err = AppendMirror(l, authorityPriv, 1, 2, keys[2].record.Key, payload)
	if err != nil {
		t.Fatalf("append mirror #1: %v", err)
	}
	payload2 := payload
	payload2.ChipData.Temp += 1
	payload2.CRC = tag.ComputeCRC(payload2)
	l, err = AppendMirror(l, authorityPriv, 2, 0, keys[0].record.Key, payload2)
	if err != nil {
		t.Fatalf("append mirror #2: %v", err)
	}

	// Tampering with the first entry's signature must break validation at
	// position 0: entry 0's own signature no longer verifies, and
	// ValidateLedger stops at the first failing position.
	l.Entries[0].Signature[0] ^= 0xFF

	err = ValidateLedger(l, reg, &authorityPriv.PublicKey)
	ce, ok := err.(*ChainError)
	if !ok {
		t.Fatalf("expected *ChainError, got %v", err)
	}
	if ce.Index != 0 {
		t.Fatalf("expected Err(0), got Err(%d)", ce.Index)
	}
}

func TestValidateLedgerRejectsUnknownNextDistributor(t *testing.T) {
	keys := genLedgerTestKeys(t, 0, 1, 2)
	authorityPriv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate authority key: %v", err)
	}
	payload := scenarioTwoPayload(t, keys)

	l := CentralLedger{ChipID: chiptelemetry.ChipIDFromUint64(42)}
	l, err = AppendMirror(l, authorityPriv, 1, 2, keys[2].record.Key, payload)
	if err != nil {
		t.Fatalf("append mirror: %v", err)
	}

	// Registry missing id 2, the entry's declared next distributor.
	reg := keyregistry.NewSnapshot(keys[0].record, keys[1].record)
	err = ValidateLedger(l, reg, &authorityPriv.PublicKey)
	ce, ok := err.(*ChainError)
	if !ok {
		t.Fatalf("expected *ChainError, got %v", err)
	}
	if ce.Index != 0 {
		t.Fatalf("expected Err(0), got Err(%d)", ce.Index)
	}
}

func TestValidateLedgerRejectsWrongAuthorityKey(t *testing.T) {
	keys := genLedgerTestKeys(t, 0, 1, 2)
	authorityPriv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate authority key: %v", err)
	}
	otherPriv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate other key: %v", err)
	}
	reg := keyregistry.NewSnapshot(keys[0].record, keys[1].record, keys[2].record)
	payload := scenarioTwoPayload(t, keys)

	l := CentralLedger{ChipID: chiptelemetry.ChipIDFromUint64(42)}
	l, err = AppendMirror(l, authorityPriv, 1, 2, keys[2].record.Key, payload)
	if err != nil {
		t.Fatalf("append mirror: %v", err)
	}

	err = ValidateLedger(l, reg, &otherPriv.PublicKey)
	if _, ok := err.(*ChainError); !ok {
		t.Fatalf("expected *ChainError for wrong authority key, got %v", err)
	}
}

func TestEmptyLedgerValidatesTrivially(t *testing.T) {
	l := CentralLedger{ChipID: chiptelemetry.ChipIDFromUint64(7)}
	authorityPriv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate authority key: %v", err)
	}
	if err := ValidateLedger(l, keyregistry.NewSnapshot(), &authorityPriv.PublicKey); err != nil {
		t.Fatalf("empty ledger should always validate, got %v", err)
	}
}

func TestRecordKeyIsLittleEndianOfChipID(t *testing.T) {
	l := CentralLedger{ChipID: chiptelemetry.NewChipID(0, 1)}
	key := l.RecordKey()
	if len(key) != 16 {
		t.Fatalf("expected 16-byte key, got %d", len(key))
	}
	if key[0] != 1 {
		t.Fatalf("expected little-endian byte 0 == 1, got %d", key[0])
	}
	for i := 1; i < 16; i++ {
		if key[i] != 0 {
			t.Fatalf("expected zero byte at %d, got %d", i, key[i])
		}
	}
}
