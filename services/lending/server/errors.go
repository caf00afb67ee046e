package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"lendledger/native/lending"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// statusFor maps an engine error kind onto an HTTP status code.
func statusFor(kind string) int {
	switch kind {
	case lending.KindInvalidAmount:
		return http.StatusBadRequest
	case lending.KindNotFound:
		return http.StatusNotFound
	case lending.KindInvalidState:
		return http.StatusConflict
	case lending.KindInsufficientPayment:
		return http.StatusPaymentRequired
	case lending.KindUnauthorized:
		return http.StatusForbidden
	case lending.KindOverflow:
		return http.StatusUnprocessableEntity
	case lending.KindPaused:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Service) writeError(w http.ResponseWriter, route string, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		writeJSON(w, http.StatusGatewayTimeout, errorBody{Error: "request cancelled", Kind: "timeout"})
		return
	}
	kind := lending.Kind(err)
	status := statusFor(kind)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("lending engine error", slog.String("route", route), slog.Any("error", err))
		message = "internal error"
	}
	writeJSON(w, status, errorBody{Error: message, Kind: kind})
}
