// Package handler exposes the registration service over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"alloggiati/internal/portal/models"
	"alloggiati/internal/portal/schedina"
	"alloggiati/internal/portal/submission"
	"alloggiati/pkg/platform/httputil"
	"alloggiati/pkg/requestcontext"
)

// request bodies above this size are refused
const maxBodyBytes = 4 << 20

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service is the registration surface the handler drives.
type Service interface {
	SubmitGuestBatch(ctx context.Context, creds models.Credentials, guests []models.GuestRecord) (*submission.Result, error)
	ValidateGuestBatch(ctx context.Context, creds models.Credentials, guests []models.GuestRecord) (*submission.Result, error)
	FetchTable(ctx context.Context, creds models.Credentials, table models.TableType) ([]schedina.KeyValue, error)
}

// Handler serves registrations for the structure configured in creds.
type Handler struct {
	service Service
	creds   models.Credentials
	logger  *slog.Logger
}

// New constructs a registration handler. creds are used for every portal call.
func New(service Service, creds models.Credentials, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		creds:   creds,
		logger:  logger,
	}
}

// Register mounts the registration endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/registrations", h.HandleSubmit)
		r.Post("/registrations/validate", h.HandleValidate)
		r.Get("/tables/{table}", h.HandleTable)
	})
}

// HandleSubmit handles POST /v1/registrations.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	h.handleBatch(w, r, "submit", h.service.SubmitGuestBatch)
}

// HandleValidate handles POST /v1/registrations/validate.
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	h.handleBatch(w, r, "validate", h.service.ValidateGuestBatch)
}

type batchFunc func(context.Context, models.Credentials, []models.GuestRecord) (*submission.Result, error)

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request, op string, run batchFunc) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	var req RegistrationRequest
	if err := decode(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid registration request",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteBadRequest(w, "request body must be a JSON object with a guests array")
		return
	}

	result, err := run(ctx, h.creds, req.Guests)
	if err != nil {
		h.logger.WarnContext(ctx, "registration "+op+" failed",
			"request_id", requestID,
			"guests", len(req.Guests),
			"error", err,
		)
		if result == nil {
			writeError(w, err)
			return
		}
		errResp := errorFor(err)
		httputil.WriteJSON(w, statusFor(err), RegistrationResponse{Result: result, Error: &errResp})
		return
	}

	h.logger.InfoContext(ctx, "registration "+op+" completed",
		"request_id", requestID,
		"batch_id", result.BatchID,
		"accepted", result.Accepted,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, RegistrationResponse{Result: result})
}

// HandleTable handles GET /v1/tables/{table}.
func (h *Handler) HandleTable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	table := models.TableType(chi.URLParam(r, "table"))

	rows, err := h.service.FetchTable(ctx, h.creds, table)
	if err != nil {
		h.logger.WarnContext(ctx, "reference table fetch failed",
			"request_id", requestcontext.RequestID(ctx),
			"table", string(table),
			"error", err,
		)
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, TableResponse{Table: string(table), Rows: rows})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
