// Package keyregistry defines the read-only distributor public-key lookup
// that chain construction and validation consult. Production binds this to
// the persistent store (see the store package); validation always runs
// against an immutable in-memory snapshot.
package keyregistry

import (
	"crypto/rsa"
	"encoding/binary"
	"fmt"

	"github.com/icprovenance/rfidchain/chiptelemetry"
	"github.com/icprovenance/rfidchain/rsasig"
)

// PublicKeyRecord is one distributor's registered signing key.
type PublicKeyRecord struct {
	ID              chiptelemetry.DistributorID `json:"id"`
	Key             []byte                      `json:"key"` // PEM-encoded RSA public key
	DistributorName string                      `json:"distributor_name"`
}

// ParseKey decodes the record's PEM key material.
func (r PublicKeyRecord) ParseKey() (*rsa.PublicKey, error) {
	return rsasig.ParsePublicKeyPEM(r.Key)
}

// RecordKey implements store.DatabaseModel: the little-endian encoding of
// the distributor id.
func (r PublicKeyRecord) RecordKey() []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(r.ID))
	return buf
}

// Tree implements store.DatabaseModel.
func (r PublicKeyRecord) Tree() string { return "public_keys" }

// Registry is a read-only lookup from distributor id to its public key
// record. Get returns ok=false for an unknown id; it never errors.
type Registry interface {
	Get(id chiptelemetry.DistributorID) (PublicKeyRecord, bool)
}

// Snapshot is an immutable, in-memory Registry built once and then only
// read — the form chain validation and construction operate over. No
// interior mutability: copy the map to get a new snapshot.
type Snapshot map[chiptelemetry.DistributorID]PublicKeyRecord

// NewSnapshot builds a Snapshot from a slice of records, keyed by id.
func NewSnapshot(records ...PublicKeyRecord) Snapshot {
	s := make(Snapshot, len(records))
	for _, r := range records {
		s[r.ID] = r
	}
	return s
}

// Get implements Registry.
func (s Snapshot) Get(id chiptelemetry.DistributorID) (PublicKeyRecord, bool) {
	r, ok := s[id]
	return r, ok
}

// ParsedKey looks up id in reg and parses its PEM key in one step. It
// reports ok=false both for an unknown id and for a known id with
// unparseable key material; the two cases are not distinguished, since
// chain validation only needs the boolean.
func ParsedKey(reg Registry, id chiptelemetry.DistributorID) (*rsa.PublicKey, bool) {
	rec, ok := reg.Get(id)
	if !ok {
		return nil, false
	}
	key, err := rec.ParseKey()
	if err != nil {
		return nil, false
	}
	return key, true
}

// ErrUnknownKey reports a missing registry entry, distinct from other
// failures. handoff.Builder.Append returns it when the next distributor or
// the previous entry's signer is not in the registry.
type ErrUnknownKey struct {
	ID chiptelemetry.DistributorID
}

func (e ErrUnknownKey) Error() string {
	return fmt.Sprintf("keyregistry: unknown distributor id %d", e.ID)
}
