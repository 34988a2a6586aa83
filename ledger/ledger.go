// Package ledger implements the authority's mirror chain: a per-chip ledger
// of CentralEntry rows, each committing to the frozen prior ledger state (if
// any), the rfid_data it mirrors, and the PEM of the next distributor in
// line. Construction and validation share the same "freeze then sign" rule
// bit-for-bit; see the Open Question note in DESIGN.md for why this package
// does not use the digest-recovery shortcut the supply-chain package relies
// on to skip re-serializing prior state.
package ledger

import (
	"crypto/rsa"
	"fmt"

	"github.com/icprovenance/rfidchain/canon"
	"github.com/icprovenance/rfidchain/chiptelemetry"
	"github.com/icprovenance/rfidchain/keyregistry"
	"github.com/icprovenance/rfidchain/rsasig"
	"github.com/icprovenance/rfidchain/tag"
)

// CentralEntry is one mirrored hand-off, as recorded by the authority
// rather than on the tag itself.
type CentralEntry struct {
	DistID     chiptelemetry.DistributorID `json:"dist_id"`
	NextDistID chiptelemetry.DistributorID `json:"next_dist_id"`
	RFIDData   tag.ChipPayload             `json:"rfid_data"`
	Signature  []byte                      `json:"signature"`
}

// SignatureBytes satisfies chainentry.BlockchainEntry.
func (e CentralEntry) SignatureBytes() []byte { return e.Signature }

// CentralLedger is the authority's full mirror history for one chip.
type CentralLedger struct {
	ChipID  chiptelemetry.ChipID `json:"chip_id"`
	Entries []CentralEntry       `json:"entries"`
}

// RecordKey implements store.DatabaseModel: the little-endian encoding of
// the 128-bit chip id (the in-memory ChipID is stored big-endian).
func (l CentralLedger) RecordKey() []byte {
	key := make([]byte, len(l.ChipID))
	for i, b := range l.ChipID {
		key[len(key)-1-i] = b
	}
	return key
}

// Tree implements store.DatabaseModel.
func (l CentralLedger) Tree() string { return "central_record" }

// ChainError reports the first position at which mirror-ledger validation
// failed.
type ChainError struct {
	Index int
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("ledger: mirror validation failed at position %d", e.Index)
}

// entrySignInput returns the parts signed for the entry about to be
// appended/verified at position k, given the ledger's entries as they stood
// before that entry (prefix), the rfid_data being mirrored, and the PEM of
// the declared next distributor.
//
// k == 0:  canon(rfid_data)            ∥ pem(next)
// k  > 0:  canon(ledger-so-far)         ∥ canon(rfid_data) ∥ pem(next)
//
// The k > 0 case re-serializes the full prior ledger rather than recovering
// a digest from the previous entry's signature: construction necessarily
// freezes the whole prior object before signing, so validation recomposes
// the identical bytes to stay bit-for-bit consistent with it.
func entrySignInput(prefix CentralLedger, rfidData tag.ChipPayload, nextPEM []byte) ([][]byte, error) {
	rfidBytes, err := canon.Bytes(rfidData)
	if err != nil {
		return nil, fmt.Errorf("ledger: encode rfid_data: %w", err)
	}
	if len(prefix.Entries) == 0 {
		return [][]byte{rfidBytes, nextPEM}, nil
	}
	prefixBytes, err := canon.Bytes(prefix)
	if err != nil {
		return nil, fmt.Errorf("ledger: encode ledger prefix: %w", err)
	}
	return [][]byte{prefixBytes, rfidBytes, nextPEM}, nil
}

// AppendMirror signs and appends one CentralEntry to ledger, mirroring a
// hand-off from distID to nextDistID for the given rfid_data. nextDistKeyPEM
// must be the exact PEM bytes on record for nextDistID (the same bytes a
// later ValidateLedger call will look up), never a re-encoding of a parsed
// key.
func AppendMirror(
	ledger CentralLedger,
	authorityPriv *rsa.PrivateKey,
	distID, nextDistID chiptelemetry.DistributorID,
	nextDistKeyPEM []byte,
	rfidData tag.ChipPayload,
) (CentralLedger, error) {
	parts, err := entrySignInput(ledger, rfidData, nextDistKeyPEM)
	if err != nil {
		return CentralLedger{}, err
	}
	sig, err := rsasig.Sign(authorityPriv, parts...)
	if err != nil {
		return CentralLedger{}, fmt.Errorf("ledger: sign entry: %w", err)
	}

	ledger.Entries = append(ledger.Entries, CentralEntry{
		DistID:     distID,
		NextDistID: nextDistID,
		RFIDData:   rfidData,
		Signature:  sig,
	})
	return ledger, nil
}

// ValidateLedger verifies every entry in ledger against authorityPub,
// recomposing each entry's signed input from the ledger's own prior state.
// reg resolves each entry's declared next distributor to its PEM key. The
// rfid_data carried by each entry is not itself re-validated here (the
// authority validates an incoming chip payload's own chain before ever
// calling AppendMirror); this only checks the mirror chain's own signatures.
func ValidateLedger(ledger CentralLedger, reg keyregistry.Registry, authorityPub *rsa.PublicKey) error {
	for k, entry := range ledger.Entries {
		nextRec, ok := reg.Get(entry.NextDistID)
		if !ok {
			return &ChainError{Index: k}
		}

		prefix := CentralLedger{ChipID: ledger.ChipID, Entries: ledger.Entries[:k]}
		parts, err := entrySignInput(prefix, entry.RFIDData, nextRec.Key)
		if err != nil {
			return &ChainError{Index: k}
		}

		if !rsasig.Verify(authorityPub, entry.Signature, parts...) {
			return &ChainError{Index: k}
		}
	}
	return nil
}
