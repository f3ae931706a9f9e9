package api

import (
	"encoding/json"
	"net/http"

	apperrors "reefdemog/internal/errors"
)

// successEnvelope is the uniform success shape: {error:false, data, meta}
type successEnvelope struct {
	Error bool        `json:"error"`
	Data  interface{} `json:"data"`
	Meta  interface{} `json:"meta,omitempty"`
}

// errorEnvelope is the uniform failure shape: {error:true, code, message, details}
type errorEnvelope struct {
	Error   bool                   `json:"error"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// respond writes a success envelope
func respond(w http.ResponseWriter, status int, data interface{}, meta interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(successEnvelope{Data: data, Meta: meta})
}

// fail converts any error into a typed error envelope. Domain sentinels map to
// their boundary codes; everything unrecognized becomes INTERNAL_ERROR, so a
// numerical failure can never surface as a success with NaN inside.
func fail(w http.ResponseWriter, err error) {
	appErr := apperrors.FromDomain(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(appErr.Code))
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error:   true,
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	})
}

func statusFor(code string) int {
	switch code {
	case apperrors.CodeInvalidParameter, apperrors.CodeInvalidRange:
		return http.StatusBadRequest
	case apperrors.CodeNoDataFound:
		return http.StatusNotFound
	case apperrors.CodeInsufficientData,
		apperrors.CodeModelFitFailed,
		apperrors.CodeInvalidMatrix,
		apperrors.CodeUnreachable:
		return http.StatusUnprocessableEntity
	case apperrors.CodeDataUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
