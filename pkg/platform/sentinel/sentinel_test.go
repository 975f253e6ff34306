package sentinel_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"alloggiati/pkg/platform/sentinel"
)

func TestWrappedSentinels(t *testing.T) {
	notFound := fmt.Errorf("table %w", sentinel.ErrNotFound)
	assert.True(t, errors.Is(notFound, sentinel.ErrNotFound))
	assert.False(t, errors.Is(notFound, sentinel.ErrUnavailable))
	assert.True(t, errors.Is(fmt.Errorf("circuit open: %w", sentinel.ErrUnavailable), sentinel.ErrUnavailable))
}
