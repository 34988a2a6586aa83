package transport

import (
	"bytes"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/icprovenance/rfidchain/chiptelemetry"
	"github.com/icprovenance/rfidchain/handoff"
	"github.com/icprovenance/rfidchain/keyregistry"
)

// DistributorHandlers serves a distributor-node's one inbound endpoint,
// POST /api/update_blockchain: append this distributor's hand-off entry to
// an incoming chip payload and relay the result to the authority-server.
type DistributorHandlers struct {
	CentralServerAddr *url.URL
	KeyID             chiptelemetry.DistributorID
	PrivateKey        *rsa.PrivateKey
	Client            *http.Client
	Logger            zerolog.Logger
}

// Routes registers the distributor-node's endpoint on r.
func (h *DistributorHandlers) Routes(r *mux.Router) {
	r.HandleFunc("/api/update_blockchain", h.handleUpdateBlockchain).Methods(http.MethodPost)
}

func (h *DistributorHandlers) client() *http.Client {
	if h.Client != nil {
		return h.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (h *DistributorHandlers) requestKeys(ids []chiptelemetry.DistributorID) (keyregistry.Snapshot, error) {
	body, err := json.Marshal(KeyRequest{KeyIDs: ids})
	if err != nil {
		return nil, fmt.Errorf("transport: encode key request: %w", err)
	}
	reqURL := h.CentralServerAddr.JoinPath("api", "request_keys")
	req, err := http.NewRequest(http.MethodGet, reqURL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("transport: build key request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("transport: send key request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var keyResp KeyResponse
	if err := json.NewDecoder(resp.Body).Decode(&keyResp); err != nil {
		return nil, fmt.Errorf("transport: decode key response: %w", err)
	}
	snap := make(keyregistry.Snapshot, len(keyResp.Keys))
	for id, rec := range keyResp.Keys {
		snap[id] = rec
	}
	return snap, nil
}

func (h *DistributorHandlers) submitUpdateRecord(req UpdateRecordRequest) (UpdateRecordResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return UpdateRecordResponse{}, fmt.Errorf("transport: encode update_record request: %w", err)
	}
	reqURL := h.CentralServerAddr.JoinPath("api", "update_record")
	resp, err := h.client().Post(reqURL.String(), "application/json", bytes.NewReader(body))
	if err != nil {
		return UpdateRecordResponse{}, fmt.Errorf("transport: send update_record request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var out UpdateRecordResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return UpdateRecordResponse{}, fmt.Errorf("transport: decode update_record response: %w", err)
	}
	return out, nil
}

// handleUpdateBlockchain appends this distributor's hand-off entry to the
// submitted chip payload, relays the updated payload to the authority, and
// replies with the wire-JSON of the updated payload on success. On chain
// validation failure it replies with the literal string
// "Failed to validate at position N" instead of a JSON body — matching the
// plain-text failure reply the original distributor server returns, since
// this endpoint is meant to be read by a human-operated reader station as
// much as by software.
func (h *DistributorHandlers) handleUpdateBlockchain(w http.ResponseWriter, r *http.Request) {
	var req UpdateBlockChainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Warn().Err(err).Msg("malformed update_blockchain request")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	ids := make([]chiptelemetry.DistributorID, 0, len(req.RFIDData.Entries)+2)
	for _, e := range req.RFIDData.Entries {
		ids = append(ids, e.PubKey)
	}
	ids = append(ids, req.NextDistributor, h.KeyID)

	reg, err := h.requestKeys(ids)
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to fetch keys from authority")
		http.Error(w, "upstream key fetch failed", http.StatusBadGateway)
		return
	}

	b := handoff.NewBuilderFrom(req.RFIDData)
	if err := b.Append(h.PrivateKey, h.KeyID, req.NextDistributor, reg); err != nil {
		h.Logger.Error().Err(err).Msg("failed to append local hand-off entry")
		http.Error(w, "failed to append entry", http.StatusInternalServerError)
		return
	}
	updated := b.Finalize()

	nextRec, ok := reg.Get(req.NextDistributor)
	if !ok {
		h.Logger.Warn().Uint32("next_distributor", uint32(req.NextDistributor)).Msg("unknown next distributor")
		fmt.Fprintf(w, "Failed to validate at position %d", len(updated.Entries)-1)
		return
	}

	if err := handoff.ValidateChain(updated, reg, nextRec.Key); err != nil {
		var chainErr *handoff.ChainError
		if ce, ok2 := err.(*handoff.ChainError); ok2 {
			chainErr = ce
		}
		pos := len(updated.Entries) - 1
		if chainErr != nil {
			pos = chainErr.Index
		}
		fmt.Fprintf(w, "Failed to validate at position %d", pos)
		return
	}

	updateReq, err := NewUpdateRecordRequest(h.KeyID, req.NextDistributor, updated, h.PrivateKey)
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to sign update_record request")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if _, err := h.submitUpdateRecord(updateReq); err != nil {
		h.Logger.Error().Err(err).Msg("failed to relay update_record to authority")
		http.Error(w, "upstream submit failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(updated)
}
