package transport

import (
	"crypto/rsa"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/icprovenance/rfidchain/chiptelemetry"
	"github.com/icprovenance/rfidchain/handoff"
	"github.com/icprovenance/rfidchain/keyregistry"
	"github.com/icprovenance/rfidchain/ledger"
	"github.com/icprovenance/rfidchain/store"
)

// AuthorityHandlers serves the authority-server's two endpoints:
// GET /api/request_keys and POST /api/update_record.
type AuthorityHandlers struct {
	Store      store.Store
	PrivateKey *rsa.PrivateKey
	Logger     zerolog.Logger
}

// Routes registers the authority-server's endpoints on r.
func (h *AuthorityHandlers) Routes(r *mux.Router) {
	r.HandleFunc("/api/request_keys", h.handleRequestKeys).Methods(http.MethodGet)
	r.HandleFunc("/api/update_record", h.handleUpdateRecord).Methods(http.MethodPost)
}

// fetchKeys resolves exactly the distributor ids named, never scanning the
// whole key partition: the store only promises point lookups by key (see
// store.Store), so both endpoints here request precisely the ids a given
// rfid_data or KeyRequest actually names.
func (h *AuthorityHandlers) fetchKeys(ids ...chiptelemetry.DistributorID) keyregistry.Snapshot {
	snap := make(keyregistry.Snapshot, len(ids))
	for _, id := range ids {
		var rec keyregistry.PublicKeyRecord
		ok, err := store.GetModel(h.Store, "public_keys", recordKeyFor(id), &rec)
		if err != nil {
			h.Logger.Error().Err(err).Uint32("dist_id", uint32(id)).Msg("key lookup failed")
			continue
		}
		if ok {
			snap[id] = rec
		}
	}
	return snap
}

func (h *AuthorityHandlers) handleRequestKeys(w http.ResponseWriter, r *http.Request) {
	var req KeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Warn().Err(err).Msg("malformed key request")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	snap := h.fetchKeys(req.KeyIDs...)
	resp := KeyResponse{Keys: map[chiptelemetry.DistributorID]keyregistry.PublicKeyRecord(snap)}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthorityHandlers) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	var req UpdateRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Warn().Err(err).Msg("malformed update_record request")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	ids := make([]chiptelemetry.DistributorID, 0, len(req.RFIDData.Entries)+2)
	ids = append(ids, req.DistID, req.NextDistID)
	for _, e := range req.RFIDData.Entries {
		ids = append(ids, e.PubKey)
	}
	reg := h.fetchKeys(ids...)

	signerKey, ok := keyregistry.ParsedKey(reg, req.DistID)
	if !ok || !req.VerifySignature(signerKey) {
		h.Logger.Warn().Uint32("dist_id", uint32(req.DistID)).Msg("update_record request failed signature check")
		writeJSON(w, http.StatusOK, UpdateRecordResponse{Success: false})
		return
	}

	nextRec, ok := reg.Get(req.NextDistID)
	if !ok {
		h.Logger.Warn().Uint32("next_dist_id", uint32(req.NextDistID)).Msg("unknown next distributor")
		writeJSON(w, http.StatusOK, UpdateRecordResponse{Success: false})
		return
	}

	if err := handoff.ValidateChain(req.RFIDData, reg, nextRec.Key); err != nil {
		h.Logger.Warn().Err(err).Msg("rejected update_record: chain does not validate")
		writeJSON(w, http.StatusOK, UpdateRecordResponse{Success: false})
		return
	}

	chip := ledger.CentralLedger{ChipID: req.RFIDData.ChipData.ChipID}
	var rec ledger.CentralLedger
	found, err := store.GetModel(h.Store, chip.Tree(), chip.RecordKey(), &rec)
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to load mirror ledger")
		writeJSON(w, http.StatusInternalServerError, UpdateRecordResponse{Success: false})
		return
	}
	if !found {
		rec = chip
	}

	rec, err = ledger.AppendMirror(rec, h.PrivateKey, req.DistID, req.NextDistID, nextRec.Key, req.RFIDData)
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to append mirror entry")
		writeJSON(w, http.StatusInternalServerError, UpdateRecordResponse{Success: false})
		return
	}

	if err := store.PutModel(h.Store, rec); err != nil {
		h.Logger.Error().Err(err).Msg("failed to persist mirror ledger")
		writeJSON(w, http.StatusInternalServerError, UpdateRecordResponse{Success: false})
		return
	}

	writeJSON(w, http.StatusOK, UpdateRecordResponse{Success: true, Record: &rec})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func recordKeyFor(id chiptelemetry.DistributorID) []byte {
	return keyregistry.PublicKeyRecord{ID: id}.RecordKey()
}
