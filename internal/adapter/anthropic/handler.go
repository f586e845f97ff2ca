package anthropic

import (
	"net/http"

	"github.com/zhengjr9/claude-gateway/internal/adapter"
	"github.com/zhengjr9/claude-gateway/internal/metrics"
	"github.com/zhengjr9/claude-gateway/internal/session"
)

// NewHandler returns the POST /v1/messages handler.
func NewHandler(sessions *session.Manager, m *metrics.Collector) http.Handler {
	return adapter.NewHandler(Dialect{}, sessions, m)
}
