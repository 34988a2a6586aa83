// Package transport defines the HTTP wire envelopes exchanged between a
// distributor-node and the authority-server, and the handlers that serve
// them. Everything here is plumbing around the core chain/ledger packages:
// no invariant from the supply-chain or mirror chain is re-derived here,
// only carried across the wire.
package transport

import (
	"crypto/rsa"
	"encoding/binary"

	"github.com/icprovenance/rfidchain/chiptelemetry"
	"github.com/icprovenance/rfidchain/keyregistry"
	"github.com/icprovenance/rfidchain/ledger"
	"github.com/icprovenance/rfidchain/rsasig"
	"github.com/icprovenance/rfidchain/tag"
)

// KeyRequest asks the authority for the public-key records of key_ids.
type KeyRequest struct {
	KeyIDs []chiptelemetry.DistributorID `json:"key_ids"`
}

// KeyResponse carries back whichever of the requested ids were on file,
// keyed by id. An id missing from Keys was not found.
type KeyResponse struct {
	Keys map[chiptelemetry.DistributorID]keyregistry.PublicKeyRecord `json:"keys"`
}

// UpdateBlockChainRequest is what a distributor-node's own caller (e.g. a
// reader station) submits to hand a chip payload off to the next
// distributor in line.
type UpdateBlockChainRequest struct {
	RFIDData        tag.ChipPayload             `json:"rfid_data"`
	NextDistributor chiptelemetry.DistributorID `json:"next_distributor"`
}

// UpdateBlockChainResponse echoes the payload after the local hand-off
// entry has been appended to it.
type UpdateBlockChainResponse struct {
	RFIDData tag.ChipPayload `json:"rfid_data"`
}

// UpdateRecordRequest is what a distributor-node relays on to the
// authority-server after appending its own hand-off entry. Signature is a
// transport-level authentication envelope distinct from (and signed over a
// different byte string than) rfid_data's own hand-off-chain signatures; it
// lets the authority confirm the request actually originated from dist_id.
type UpdateRecordRequest struct {
	DistID     chiptelemetry.DistributorID `json:"dist_id"`
	NextDistID chiptelemetry.DistributorID `json:"next_dist_id"`
	RFIDData   tag.ChipPayload             `json:"rfid_data"`
	Signature  []byte                      `json:"signature"`
}

// SignatureBytes satisfies chainentry.BlockchainEntry.
func (r UpdateRecordRequest) SignatureBytes() []byte { return r.Signature }

// signedBytes returns the byte string UpdateRecordRequest signs and
// verifies over: dist_id ∥ next_dist_id (big-endian u32 each) ∥ the wire
// encoding of rfid_data.
func (r UpdateRecordRequest) signedBytes() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], uint32(r.DistID))
	binary.BigEndian.PutUint32(buf[4:8], uint32(r.NextDistID))
	return append(buf, tag.Encode(r.RFIDData)...)
}

// NewUpdateRecordRequest builds and signs an UpdateRecordRequest with priv,
// the distributor-node's own key.
func NewUpdateRecordRequest(distID, nextDistID chiptelemetry.DistributorID, rfidData tag.ChipPayload, priv *rsa.PrivateKey) (UpdateRecordRequest, error) {
	r := UpdateRecordRequest{DistID: distID, NextDistID: nextDistID, RFIDData: rfidData}
	sig, err := rsasig.Sign(priv, r.signedBytes())
	if err != nil {
		return UpdateRecordRequest{}, err
	}
	r.Signature = sig
	return r, nil
}

// VerifySignature reports whether r.Signature authenticates r.signedBytes()
// under pub.
func (r UpdateRecordRequest) VerifySignature(pub *rsa.PublicKey) bool {
	return rsasig.Verify(pub, r.Signature, r.signedBytes())
}

// UpdateRecordResponse reports whether the authority accepted the submitted
// rfid_data and, on success, echoes the updated mirror ledger for the chip.
type UpdateRecordResponse struct {
	Success bool                  `json:"success"`
	Record  *ledger.CentralLedger `json:"record,omitempty"`
}
