package httpserver

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	h := http.NewServeMux()
	srv := New(":0", h, 90*time.Second)

	assert.Equal(t, ":0", srv.Addr)
	assert.Same(t, h, srv.Handler)
	assert.Equal(t, 90*time.Second, srv.WriteTimeout)
	assert.Equal(t, 5*time.Second, srv.ReadHeaderTimeout)
}
