package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/dyluth/thinktank/internal/failure"
)

func newRequestID() string { return "req_" + uuid.NewString() }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	RequestID string      `json:"request_id"`
	Error     ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, ErrorBody{
		RequestID: requestID(r),
		Error:     ErrorDetail{Code: code, Message: message},
	})
}

// writeFailure maps a classified pipeline failure to a status code.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	kind := failure.KindOf(err)
	writeError(w, r, statusFor(kind), errorCode(kind), err.Error())
}

func statusFor(kind failure.Kind) int {
	switch kind {
	case failure.KindInvalidInput:
		return http.StatusBadRequest
	case failure.KindTankBusy:
		return http.StatusConflict
	case failure.KindChainRead, failure.KindDecryption, failure.KindLLMParse,
		failure.KindDigestUnchanged, failure.KindEncryption, failure.KindSigning:
		return http.StatusBadGateway
	case failure.KindNetwork:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func errorCode(kind failure.Kind) string {
	if kind == "" {
		return "INTERNAL"
	}
	return string(kind)
}

// isBodyTooLarge reports whether err came from the request size limit.
func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
