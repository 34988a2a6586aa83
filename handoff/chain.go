// Package handoff implements the on-tag supply-chain signature chain: the
// rule binding each distributor's hand-off entry to the one before it and
// to the distributor it names as successor, plus the builder that appends
// entries in causal order and the validator that re-derives and checks
// every signed byte string.
package handoff

import (
	"crypto/rsa"
	"fmt"

	"github.com/icprovenance/rfidchain/chiptelemetry"
	"github.com/icprovenance/rfidchain/keyregistry"
	"github.com/icprovenance/rfidchain/rsasig"
	"github.com/icprovenance/rfidchain/tag"
)

// ChainError reports the first position at which chain validation failed:
// an unknown key, a bad signature, or anything the recomposed input
// couldn't reproduce. Positions beyond Index are never probed.
type ChainError struct {
	Index int
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("handoff: chain validation failed at position %d", e.Index)
}

// Builder constructs a ChipPayload one hand-off entry at a time.
type Builder struct {
	payload tag.ChipPayload
}

// NewBuilder starts an empty payload.
func NewBuilder() *Builder {
	return &Builder{}
}

// NewBuilderFrom resumes building from an existing payload, e.g. a chip
// payload arriving at the next distributor in line with entries already on
// it.
func NewBuilderFrom(payload tag.ChipPayload) *Builder {
	return &Builder{payload: payload}
}

// WithTelemetry seeds the payload's fixed manufacture-time telemetry.
func (b *Builder) WithTelemetry(chipID chiptelemetry.ChipID, freq, voltage, temp, time float32) *Builder {
	b.payload.ChipData = chiptelemetry.ChipTelemetry{
		ChipID:  chipID,
		Freq:    freq,
		Voltage: voltage,
		Temp:    temp,
		Time:    time,
	}
	return b
}

// composeEntryInput builds M_i for the entry about to be appended/verified
// at position i (len(payload.Entries) before appending), given the PEM
// bytes of the successor named by this entry.
func composeEntryInput(payload tag.ChipPayload, reg keyregistry.Registry, nextPEM []byte) ([]byte, error) {
	n := len(payload.Entries)
	if n == 0 {
		return append(payload.ChipData.Encode(), nextPEM...), nil
	}
	prev := payload.Entries[n-1]
	prevKey, ok := keyregistry.ParsedKey(reg, prev.PubKey)
	if !ok {
		return nil, keyregistry.ErrUnknownKey{ID: prev.PubKey}
	}
	digest, err := rsasig.RecoverDigest(prevKey, prev.Signature)
	if err != nil {
		return nil, fmt.Errorf("handoff: recover digest: %w", err)
	}
	m := make([]byte, 0, len(digest)+len(prev.Signature)+len(nextPEM))
	m = append(m, digest[:]...)
	m = append(m, prev.Signature...)
	m = append(m, nextPEM...)
	return m, nil
}

// Append appends exactly one entry signed by signerID, declaring nextID as
// its successor. It computes M_i per composeEntryInput, signs it with priv,
// and pushes the new HandoffEntry.
func (b *Builder) Append(priv *rsa.PrivateKey, signerID, nextID chiptelemetry.DistributorID, reg keyregistry.Registry) error {
	nextRec, ok := reg.Get(nextID)
	if !ok {
		return keyregistry.ErrUnknownKey{ID: nextID}
	}

	m, err := composeEntryInput(b.payload, reg, nextRec.Key)
	if err != nil {
		return err
	}

	sig, err := rsasig.Sign(priv, m)
	if err != nil {
		return fmt.Errorf("handoff: sign entry: %w", err)
	}

	b.payload.Entries = append(b.payload.Entries, tag.HandoffEntry{
		PubKey:    signerID,
		Signature: sig,
	})
	return nil
}

// Finalize recomputes the CRC and returns the completed payload.
func (b *Builder) Finalize() tag.ChipPayload {
	b.payload.CRC = tag.ComputeCRC(b.payload)
	return b.payload
}

// Payload returns the payload built so far, without finalizing its CRC.
func (b *Builder) Payload() tag.ChipPayload {
	return b.payload
}

// ValidateChain checks every entry in payload.Entries in order. For entry i
// (i < len-1), the declared successor is entries[i+1]'s signer; for the
// last entry, it is finalSuccessorKeyPEM (the party the payload is being
// handed to, or the authority's key when submitted upstream). The first
// failing position is returned as *ChainError; later entries are not
// probed.
func ValidateChain(payload tag.ChipPayload, reg keyregistry.Registry, finalSuccessorKeyPEM []byte) error {
	n := len(payload.Entries)
	for i := 0; i < n; i++ {
		entry := payload.Entries[i]

		signerKey, ok := keyregistry.ParsedKey(reg, entry.PubKey)
		if !ok {
			return &ChainError{Index: i}
		}

		var nextPEM []byte
		if i == n-1 {
			nextPEM = finalSuccessorKeyPEM
		} else {
			nextRec, ok := reg.Get(payload.Entries[i+1].PubKey)
			if !ok {
				return &ChainError{Index: i}
			}
			nextPEM = nextRec.Key
		}

		prefix := payload
		prefix.Entries = payload.Entries[:i]
		m, err := composeEntryInput(prefix, reg, nextPEM)
		if err != nil {
			return &ChainError{Index: i}
		}

		if !rsasig.Verify(signerKey, entry.Signature, m) {
			return &ChainError{Index: i}
		}
	}
	return nil
}
