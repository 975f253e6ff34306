package portalerr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"alloggiati/pkg/platform/sentinel"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"field error", FieldRequired("family_name"), KindValidation},
		{"wrapped field error", fmt.Errorf("line 2: %w", InvalidDate("birth_date", "x")), KindValidation},
		{"empty batch", ErrEmptyBatch, KindValidation},
		{"transport", Transport("Test", true, context.DeadlineExceeded), KindTransport},
		{"protocol", Protocol("Send", "missing result"), KindProtocol},
		{"rejection", Rejection("Test", "E01", "bad", ""), KindRejection},
		{"auth", New(KindAuth, "GenerateToken", "", ErrAuthFailed), KindAuth},
		{"plain", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestOnlyTransportIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Transport("Test", false, errors.New("refused"))))
	assert.False(t, IsRetryable(Rejection("Test", "E01", "bad", "")))
	assert.False(t, IsRetryable(Protocol("Test", "x")))
	assert.False(t, IsRetryable(FieldRequired("given_name")))
	assert.False(t, IsRetryable(errors.New("boom")))
}

func TestTransportWrapsCause(t *testing.T) {
	err := Transport("Send", true, context.DeadlineExceeded)

	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, err.Timeout)
}

func TestCircuitOpenIsUnavailable(t *testing.T) {
	assert.ErrorIs(t, Transport("Send", false, ErrCircuitOpen), sentinel.ErrUnavailable)
	assert.NotErrorIs(t, ErrTransport, sentinel.ErrUnavailable)
}

func TestRejectionWithoutCodeIsUnknown(t *testing.T) {
	assert.ErrorIs(t, Rejection("Test", "", "", ""), ErrUnknownPortalRejection)
	assert.ErrorIs(t, Rejection("Test", "E01", "", ""), ErrPortalRejection)
	assert.NotErrorIs(t, Rejection("Test", "E01", "", ""), ErrUnknownPortalRejection)
}

func TestFieldErrorMessage(t *testing.T) {
	err := InvalidDate("arrival_date", "31/02/2024")

	assert.ErrorIs(t, err, ErrInvalidDate)
	assert.Contains(t, err.Error(), "arrival_date")
	assert.Contains(t, err.Error(), "31/02/2024")
}
