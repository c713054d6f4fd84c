package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/MrEthical07/authcore"
)

type errorBody struct {
	Field      string `json:"field,omitempty"`
	Code       string `json:"code"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

// StatusCode maps an error to its HTTP status. Errors that are not
// *authcore.Error are 500.
func StatusCode(err error) int {
	var e *authcore.Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case authcore.KindValidation:
		return http.StatusBadRequest
	case authcore.KindUnauthorized:
		return http.StatusUnauthorized
	case authcore.KindNotFound:
		return http.StatusNotFound
	case authcore.KindConflict:
		return http.StatusConflict
	case authcore.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as {"field","code","retryAfter"}. Causes wrapped
// inside the error are never written.
func WriteError(w http.ResponseWriter, err error) {
	body := errorBody{Code: authcore.ErrInternal.Code}
	var e *authcore.Error
	if errors.As(err, &e) {
		body = errorBody{Field: e.Field, Code: e.Code, RetryAfter: e.RetryAfter}
	}

	status := StatusCode(err)
	w.Header().Set("Content-Type", "application/json")
	if body.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(body.RetryAfter))
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
