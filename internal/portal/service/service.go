// Package service is the single entry point the surrounding application uses
// to register guests with the portal. Callers never see tokens, record
// encoding or the validate/submit split.
package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"alloggiati/internal/portal/models"
	"alloggiati/internal/portal/schedina"
	"alloggiati/internal/portal/submission"
	"alloggiati/internal/portal/token"
	"alloggiati/internal/portal/transport"
)

// TableFetcher serves reference tables.
type TableFetcher interface {
	Fetch(ctx context.Context, creds models.Credentials, table models.TableType) ([]schedina.KeyValue, error)
}

// Service runs registration workflows for any number of portal accounts.
type Service struct {
	tokens   *token.Registry
	sender   transport.Sender
	tables   TableFetcher
	workflow []submission.Option
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithWorkflowOptions applies opts to every workflow the service creates.
func WithWorkflowOptions(opts ...submission.Option) Option {
	return func(s *Service) {
		s.workflow = append(s.workflow, opts...)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(tokens *token.Registry, sender transport.Sender, tables TableFetcher, opts ...Option) *Service {
	s := &Service{
		tokens: tokens,
		sender: sender,
		tables: tables,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitGuestBatch validates and then commits guests as one batch.
func (s *Service) SubmitGuestBatch(ctx context.Context, creds models.Credentials, guests []models.GuestRecord) (*submission.Result, error) {
	return s.workflowFor(creds).Submit(ctx, newBatch(guests))
}

// ValidateGuestBatch checks guests with the portal without registering them.
func (s *Service) ValidateGuestBatch(ctx context.Context, creds models.Credentials, guests []models.GuestRecord) (*submission.Result, error) {
	return s.workflowFor(creds).Validate(ctx, newBatch(guests))
}

// FetchTable returns the decoded rows of a reference table.
func (s *Service) FetchTable(ctx context.Context, creds models.Credentials, table models.TableType) ([]schedina.KeyValue, error) {
	return s.tables.Fetch(ctx, creds, table)
}

// TokenStates reports the token state per account.
func (s *Service) TokenStates() map[string]token.State {
	return s.tokens.States()
}

func (s *Service) workflowFor(creds models.Credentials) *submission.Workflow {
	opts := append([]submission.Option{submission.WithLogger(s.logger)}, s.workflow...)
	return submission.New(creds.Username, s.tokens.Manager(creds), s.sender, opts...)
}

func newBatch(guests []models.GuestRecord) models.SubmissionBatch {
	return models.SubmissionBatch{ID: uuid.NewString(), Guests: guests}
}
