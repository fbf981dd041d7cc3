package api

import (
	"encoding/json"
	"net/http"

	"github.com/nodestake/staking-ledger/internal/types"
	"github.com/rs/zerolog/log"
)

type ErrorResponse struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

type DataResponse[T any] struct {
	Data T `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func writeData[T any](w http.ResponseWriter, status int, data T) {
	writeJSON(w, status, DataResponse[T]{Data: data})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := types.AsError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		log.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		// internal details stay in the log
		writeJSON(w, apiErr.StatusCode, ErrorResponse{
			ErrorCode: apiErr.ErrorCode.String(),
			Message:   "internal service error",
		})
		return
	}
	writeJSON(w, apiErr.StatusCode, ErrorResponse{
		ErrorCode: apiErr.ErrorCode.String(),
		Message:   apiErr.Error(),
	})
}
