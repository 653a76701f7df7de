package app

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "github.com/louisbranch/certtrail/internal/platform/errors"
	"github.com/louisbranch/certtrail/internal/services/audit/signing"
	"github.com/louisbranch/certtrail/internal/services/audit/storage"
)

type validateRequest struct {
	StartID int64 `json:"startId"`
	EndID   int64 `json:"endId"`
	Limit   int   `json:"limit"`
}

func decodeValidateRequest(w http.ResponseWriter, r *http.Request) (validateRequest, bool) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "BAD_JSON", Message: "invalid JSON body"})
		return validateRequest{}, false
	}
	if req.StartID < 0 || req.EndID < 0 || req.Limit < 0 {
		writeError(w, apperrors.New(apperrors.CodeValidateInvalidRange, "startId, endId and limit must not be negative"))
		return validateRequest{}, false
	}
	if req.StartID > 0 && req.EndID > 0 && req.EndID < req.StartID {
		writeError(w, apperrors.New(apperrors.CodeValidateInvalidRange, "endId must not precede startId"))
		return validateRequest{}, false
	}
	return req, true
}

type chainValidationResponse struct {
	Valid             bool   `json:"valid"`
	EntriesChecked    int    `json:"entriesChecked"`
	FirstInvalidEntry *int64 `json:"firstInvalidEntry,omitempty"`
	ErrorMessage      string `json:"errorMessage,omitempty"`
}

func toChainValidationResponse(v storage.ChainValidation) chainValidationResponse {
	resp := chainValidationResponse{
		Valid:          v.Valid,
		EntriesChecked: v.EntriesChecked,
		ErrorMessage:   v.ErrorMessage,
	}
	if v.FirstInvalidEntry != 0 {
		resp.FirstInvalidEntry = &v.FirstInvalidEntry
	}
	return resp
}

// handleValidateChain recomputes the hash chain over a bounded range. A
// broken chain is a finding, not an error: the structured result always
// comes back with status 200.
func (s *Server) handleValidateChain(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeValidateRequest(w, r)
	if !ok {
		return
	}
	result, err := s.store.ValidateChain(r.Context(), req.StartID, req.EndID, req.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChainValidationResponse(result))
}

type signatureFailureResponse struct {
	EntryID int64  `json:"entryId"`
	Reason  string `json:"reason"`
}

type batchVerificationResponse struct {
	Valid          bool                       `json:"valid"`
	EntriesChecked int                        `json:"entriesChecked"`
	InvalidEntries []signatureFailureResponse `json:"invalidEntries"`
}

func toBatchVerificationResponse(v signing.BatchVerification) batchVerificationResponse {
	failures := make([]signatureFailureResponse, 0, len(v.InvalidEntries))
	for _, f := range v.InvalidEntries {
		failures = append(failures, signatureFailureResponse{EntryID: f.EntryID, Reason: f.ErrorMessage})
	}
	return batchVerificationResponse{
		Valid:          v.Valid,
		EntriesChecked: v.EntriesChecked,
		InvalidEntries: failures,
	}
}

func (s *Server) handleValidateIntegrity(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeValidateRequest(w, r)
	if !ok {
		return
	}
	result, err := s.store.ValidateIntegrity(r.Context(), req.StartID, req.EndID, req.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hashChain":    toChainValidationResponse(result.HashChain),
		"signatures":   toBatchVerificationResponse(result.Signatures),
		"overallValid": result.OverallValid,
	})
}

func (s *Server) handleSigningStatus(w http.ResponseWriter, _ *http.Request) {
	var fingerprint *string
	if s.signer.IsConfigured() {
		fp := s.signer.KeyFingerprint()
		fingerprint = &fp
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"configured":     s.signer.IsConfigured(),
		"keyFingerprint": fingerprint,
	})
}
