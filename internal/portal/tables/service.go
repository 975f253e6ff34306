// Package tables fetches and caches the portal's reference tables (places,
// document types, guest types, error codes).
package tables

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"alloggiati/internal/portal/metrics"
	"alloggiati/internal/portal/models"
	"alloggiati/internal/portal/portalerr"
	"alloggiati/internal/portal/schedina"
	"alloggiati/internal/portal/soap"
	"alloggiati/internal/portal/tables/store"
	"alloggiati/internal/portal/transport"
)

// TokenProvider yields a session token for an account.
type TokenProvider interface {
	TokenFor(ctx context.Context, creds models.Credentials) (models.AuthToken, error)
}

// Service serves reference tables, hitting the portal only on a cache miss.
type Service struct {
	tokens TokenProvider
	sender transport.Sender
	cache  store.Cache

	logger  *slog.Logger
	metrics *metrics.Metrics
	group   singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(tokens TokenProvider, sender transport.Sender, cache store.Cache, opts ...Option) *Service {
	s := &Service{
		tokens: tokens,
		sender: sender,
		cache:  cache,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch returns the decoded rows of table. Unknown tables fail before any
// network call. Concurrent misses for the same table share one portal call.
func (s *Service) Fetch(ctx context.Context, creds models.Credentials, table models.TableType) ([]schedina.KeyValue, error) {
	if !table.Valid() {
		return nil, fmt.Errorf("%w: %q", portalerr.ErrUnknownTable, table)
	}

	rows, err := s.cache.Get(ctx, table)
	if err == nil {
		s.metrics.IncrementTableCache(string(table), "hit")
		return rows, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		s.logger.WarnContext(ctx, "table cache read failed", "table", string(table), "error", err)
	}
	s.metrics.IncrementTableCache(string(table), "miss")

	v, err, _ := s.group.Do(string(table), func() (any, error) {
		return s.load(ctx, creds, table)
	})
	if err != nil {
		return nil, err
	}
	return v.([]schedina.KeyValue), nil
}

func (s *Service) load(ctx context.Context, creds models.Credentials, table models.TableType) ([]schedina.KeyValue, error) {
	tok, err := s.tokens.TokenFor(ctx, creds)
	if err != nil {
		return nil, err
	}
	env, err := soap.BuildTableRequest(creds.Username, tok.Value, table)
	if err != nil {
		return nil, portalerr.New(portalerr.KindInternal, string(soap.OpTabella), "build request", err)
	}
	raw, err := s.sender.Send(ctx, env, soap.OpTabella)
	if err != nil {
		return nil, err
	}
	res, err := soap.ParseTableResponse(raw)
	if err != nil {
		return nil, err
	}
	if !res.Outcome.Esito {
		return nil, portalerr.Rejection(string(soap.OpTabella), res.Outcome.Code, res.Outcome.Description, res.Outcome.Detail)
	}

	rows := decodeRows(res.Rows)
	if skipped := len(res.Rows) - 1 - len(rows); skipped > 0 {
		s.logger.WarnContext(ctx, "skipped malformed reference rows",
			"table", string(table),
			"skipped", skipped,
		)
	}
	if err := s.cache.Set(ctx, table, rows); err != nil {
		s.logger.WarnContext(ctx, "table cache write failed", "table", string(table), "error", err)
	}
	s.logger.InfoContext(ctx, "reference table loaded",
		"table", string(table),
		"rows", len(rows),
	)
	return rows, nil
}

// decodeRows drops the header row and any row that does not decode.
func decodeRows(lines []string) []schedina.KeyValue {
	if len(lines) == 0 {
		return nil
	}
	rows := make([]schedina.KeyValue, 0, len(lines)-1)
	for _, line := range lines[1:] {
		kv, err := schedina.DecodeReferenceRow(line)
		if err != nil {
			continue
		}
		rows = append(rows, kv)
	}
	return rows
}
