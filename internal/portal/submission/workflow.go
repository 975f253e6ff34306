// Package submission runs the portal's two-phase registration protocol for a
// batch of guests: encode locally, obtain a token, validate with Test and only
// then commit with Send.
package submission

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"alloggiati/internal/audit"
	"alloggiati/internal/portal/metrics"
	"alloggiati/internal/portal/models"
	"alloggiati/internal/portal/outcome"
	"alloggiati/internal/portal/portalerr"
	"alloggiati/internal/portal/schedina"
	"alloggiati/internal/portal/soap"
	"alloggiati/pkg/requestcontext"
)

// DefaultMaxBatchSize caps the records sent in one call.
const DefaultMaxBatchSize = 1000

// raw payload bytes kept in protocol error logs
const maxLoggedPayload = 2048

//go:generate mockgen -source=workflow.go -destination=mocks/mocks.go -package=mocks TokenSource,Sender

// TokenSource yields a session token for the workflow's credentials.
type TokenSource interface {
	GetValidToken(ctx context.Context) (models.AuthToken, error)
}

// Sender delivers one SOAP envelope.
type Sender interface {
	Send(ctx context.Context, envelope []byte, op soap.Operation) ([]byte, error)
}

// Workflow runs batches for one portal account. It holds no per-batch state
// and is safe for concurrent use.
type Workflow struct {
	username     string
	tokens       TokenSource
	sender       Sender
	retry        RetryPolicy
	maxBatchSize int

	logger  *slog.Logger
	metrics *metrics.Metrics
	audit   audit.Emitter
	tracer  trace.Tracer
	clock   func() time.Time
}

// Option configures a Workflow.
type Option func(*Workflow)

func WithRetryPolicy(p RetryPolicy) Option {
	return func(w *Workflow) {
		w.retry = p
	}
}

func WithMaxBatchSize(n int) Option {
	return func(w *Workflow) {
		if n > 0 {
			w.maxBatchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Workflow) {
		w.metrics = m
	}
}

// WithAudit sets where terminal-state events go.
func WithAudit(e audit.Emitter) Option {
	return func(w *Workflow) {
		w.audit = e
	}
}

func WithClock(clock func() time.Time) Option {
	return func(w *Workflow) {
		if clock != nil {
			w.clock = clock
		}
	}
}

// New creates a Workflow for username. Retries default to DefaultRetryPolicy.
func New(username string, tokens TokenSource, sender Sender, opts ...Option) *Workflow {
	w := &Workflow{
		username:     username,
		tokens:       tokens,
		sender:       sender,
		retry:        DefaultRetryPolicy(),
		maxBatchSize: DefaultMaxBatchSize,
		logger:       slog.Default(),
		tracer:       otel.Tracer("alloggiati/portal/submission"),
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Submit validates the batch with the portal and, only if every record is
// accepted, commits it. The returned Result is never nil; err is non-nil
// whenever the batch did not reach StateAcknowledged.
func (w *Workflow) Submit(ctx context.Context, batch models.SubmissionBatch) (*Result, error) {
	return w.run(ctx, batch, true)
}

// Validate runs the encode, token and Test steps without committing.
func (w *Workflow) Validate(ctx context.Context, batch models.SubmissionBatch) (*Result, error) {
	return w.run(ctx, batch, false)
}

func (w *Workflow) run(ctx context.Context, batch models.SubmissionBatch, commit bool) (*Result, error) {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	opName := "validate"
	if commit {
		opName = "submit"
	}
	res := &Result{
		BatchID:     batch.ID,
		Operation:   opName,
		Total:       len(batch.Guests),
		Transitions: []Transition{},
	}

	ctx, span := w.tracer.Start(ctx, "registration."+opName, trace.WithAttributes(
		attribute.String("batch.id", batch.ID),
		attribute.Int("batch.size", len(batch.Guests)),
	))
	defer span.End()

	err := w.execute(ctx, batch, commit, res)

	span.SetAttributes(attribute.String("batch.state", string(res.State)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(portalerr.KindOf(err)))
	}
	w.metrics.IncrementBatchOutcome(opName, string(res.State))
	w.emit(ctx, res)
	return res, err
}

func (w *Workflow) execute(ctx context.Context, batch models.SubmissionBatch, commit bool, res *Result) error {
	switch {
	case len(batch.Guests) == 0:
		return w.fail(ctx, res, portalerr.ErrEmptyBatch)
	case len(batch.Guests) > w.maxBatchSize:
		return w.fail(ctx, res, fmt.Errorf("%w: %d records, limit %d", portalerr.ErrBatchTooLarge, len(batch.Guests), w.maxBatchSize))
	}
	w.metrics.ObserveBatchSize(len(batch.Guests))

	records, lineErrs := schedina.EncodeBatch(batch.Guests)
	res.advance(StateEncoded, w.clock())
	if len(lineErrs) > 0 {
		res.RecordErrors = recordErrors(lineErrs)
		return w.fail(ctx, res, fmt.Errorf("%d of %d records failed encoding: %w", len(lineErrs), len(batch.Guests), lineErrs[0]))
	}

	tok, err := w.token(ctx)
	if err != nil {
		if portalerr.KindOf(err) == portalerr.KindAuth {
			res.advance(StateTokenAcquired, w.clock())
		}
		return w.fail(ctx, res, err)
	}
	res.advance(StateTokenAcquired, w.clock())

	validation, err := w.call(ctx, soap.OpTest, tok, records, true)
	if err != nil {
		return w.fail(ctx, res, err)
	}
	res.advance(StateValidated, w.clock())
	if err := w.apply(res, validation); err != nil {
		return w.fail(ctx, res, err)
	}

	if !commit {
		w.logger.InfoContext(ctx, "batch validated",
			"batch_id", res.BatchID,
			"accepted", res.Accepted,
		)
		return nil
	}

	submitted, err := w.call(ctx, soap.OpSend, tok, records, w.retry.RetrySubmit)
	if err != nil {
		return w.fail(ctx, res, err)
	}
	res.advance(StateSubmitted, w.clock())
	if err := w.apply(res, submitted); err != nil {
		return w.fail(ctx, res, err)
	}

	res.advance(StateAcknowledged, w.clock())
	w.logger.InfoContext(ctx, "batch acknowledged",
		"batch_id", res.BatchID,
		"accepted", res.Accepted,
		"total", res.Total,
	)
	return nil
}

func (w *Workflow) token(ctx context.Context) (models.AuthToken, error) {
	var tok models.AuthToken
	err := w.retry.do(ctx, func() error {
		var err error
		tok, err = w.tokens.GetValidToken(ctx)
		return err
	}, w.notify(ctx, soap.OpGenerateToken))
	return tok, err
}

// call sends one Test or Send request, retrying transport failures only when
// retry is set.
func (w *Workflow) call(ctx context.Context, op soap.Operation, tok models.AuthToken, records []schedina.Schedina, retry bool) (outcome.Classification, error) {
	var envelope []byte
	var err error
	switch op {
	case soap.OpTest:
		envelope, err = soap.BuildValidateRequest(w.username, tok.Value, records)
	default:
		envelope, err = soap.BuildSubmitRequest(w.username, tok.Value, records)
	}
	if err != nil {
		return outcome.Classification{}, portalerr.New(portalerr.KindInternal, string(op), "build request", err)
	}

	policy := w.retry
	if !retry {
		policy = NoRetry()
	}

	var raw []byte
	err = policy.do(ctx, func() error {
		raw, err = w.sender.Send(ctx, envelope, op)
		return err
	}, w.notify(ctx, op))
	if err != nil {
		return outcome.Classification{}, err
	}

	out, err := soap.ParseOutcomeResponse(op, raw)
	if err != nil {
		payload := raw
		if len(payload) > maxLoggedPayload {
			payload = payload[:maxLoggedPayload]
		}
		w.logger.ErrorContext(ctx, "unparseable portal response",
			"operation", string(op),
			"error", err,
			"payload", string(payload),
		)
		return outcome.Classification{}, err
	}
	return outcome.Classify(string(op), out, len(records)), nil
}

func (w *Workflow) apply(res *Result, c outcome.Classification) error {
	res.Accepted = c.Accepted
	res.Success = c.Success
	res.ErrorCode = c.ErrorCode
	res.ErrorDescription = c.ErrorDescription
	res.ErrorDetail = c.ErrorDetail
	res.LineFailures = c.LineFailures
	return c.Err
}

func (w *Workflow) fail(ctx context.Context, res *Result, err error) error {
	res.reject(err, w.clock())
	w.logger.WarnContext(ctx, "batch rejected",
		"batch_id", res.BatchID,
		"operation", res.Operation,
		"error_kind", string(res.ErrorKind),
		"error_code", res.ErrorCode,
		"error", err,
	)
	return err
}

func (w *Workflow) notify(ctx context.Context, op soap.Operation) func(error, time.Duration) {
	return func(err error, wait time.Duration) {
		w.logger.WarnContext(ctx, "retrying portal call",
			"operation", string(op),
			"wait", wait,
			"error", err,
		)
	}
}

// emit records the terminal state. Audit failures never change the outcome:
// the portal may already hold the data.
func (w *Workflow) emit(ctx context.Context, res *Result) {
	if w.audit == nil {
		return
	}
	action := audit.ActionValidate
	if res.Operation == "submit" {
		action = audit.ActionSubmit
	}
	event := audit.Event{
		BatchID:   res.BatchID,
		Username:  w.username,
		Action:    action,
		State:     string(res.State),
		Success:   res.Success,
		Accepted:  res.Accepted,
		Total:     res.Total,
		ErrorKind: string(res.ErrorKind),
		ErrorCode: res.ErrorCode,
		RequestID: requestcontext.RequestID(ctx),
		Timestamp: requestcontext.Now(ctx),
	}
	if err := w.audit.Emit(ctx, event); err != nil {
		w.logger.WarnContext(ctx, "audit emission failed", "batch_id", res.BatchID, "error", err)
	}
}
