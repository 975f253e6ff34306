package handler

import (
	"errors"
	"net/http"

	"alloggiati/internal/portal/portalerr"
	"alloggiati/pkg/platform/httputil"
)

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch portalerr.KindOf(err) {
	case portalerr.KindValidation:
		return http.StatusUnprocessableEntity
	case portalerr.KindRejection:
		return http.StatusConflict
	case portalerr.KindAuth, portalerr.KindProtocol:
		return http.StatusBadGateway
	case portalerr.KindTransport:
		var pe *portalerr.Error
		if errors.As(err, &pe) && pe.Timeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorFor builds the response body for err. Internal errors omit the
// description.
func errorFor(err error) httputil.ErrorResponse {
	kind := portalerr.KindOf(err)
	resp := httputil.ErrorResponse{Error: string(kind) + "_error"}
	if kind != portalerr.KindInternal {
		resp.ErrorDescription = err.Error()
	}
	var pe *portalerr.Error
	if errors.As(err, &pe) {
		resp.PortalCode = pe.Code
	}
	return resp
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteJSON(w, statusFor(err), errorFor(err))
}
