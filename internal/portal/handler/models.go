package handler

import (
	"alloggiati/internal/portal/models"
	"alloggiati/internal/portal/schedina"
	"alloggiati/internal/portal/submission"
	"alloggiati/pkg/platform/httputil"
)

// RegistrationRequest is the body of both registration endpoints.
type RegistrationRequest struct {
	Guests []models.GuestRecord `json:"guests"`
}

// RegistrationResponse carries the batch result. Error is set whenever the
// batch did not complete.
type RegistrationResponse struct {
	Result *submission.Result      `json:"result"`
	Error  *httputil.ErrorResponse `json:"error,omitempty"`
}

type TableResponse struct {
	Table string              `json:"table"`
	Rows  []schedina.KeyValue `json:"rows"`
}
