package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/shikshasetu/shiksha-client/internal/session"
)

// transport decorates every outgoing request with the bearer credential
// and a correlation id, and logs the round trip. It is the client-side
// counterpart of a server's auth + logging middleware chain.
type transport struct {
	base     http.RoundTripper
	sessions *session.Store
	logger   *slog.Logger
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone before mutating: RoundTrippers must not modify the caller's request.
	req = req.Clone(req.Context())

	if token := t.sessions.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("X-Request-ID", xid.New().String())

	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.logger.Warn("request failed",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	t.logger.Debug("request completed",
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)
	return resp, nil
}
