package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// followRedirect simulates the backend redirecting the user's browser to
// the loopback listener with the given query values.
func followRedirect(t *testing.T, authURL string, override url.Values) {
	t.Helper()

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	q := parsed.Query()

	redirect, err := url.Parse(q.Get("redirect_uri"))
	require.NoError(t, err)

	cq := url.Values{"state": {q.Get("state")}}
	for k, vs := range override {
		cq[k] = vs
	}
	redirect.RawQuery = cq.Encode()

	resp, err := http.Get(redirect.String())
	require.NoError(t, err)
	resp.Body.Close()
}

func TestSignInTokenInRedirect(t *testing.T) {
	p := NewProvider("http://backend.invalid/api", testLogger())

	authURLs := make(chan string, 1)
	type outcome struct {
		token string
		err   error
	}
	done := make(chan outcome, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		token, err := p.SignIn(ctx, func(u string) { authURLs <- u })
		done <- outcome{token, err}
	}()

	followRedirect(t, <-authURLs, url.Values{"token": {"platform-jwt"}})

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "platform-jwt", res.token)
}

func TestSignInExchangesCode(t *testing.T) {
	// Fake backend token endpoint for the code exchange.
	r := chi.NewRouter()
	r.Post("/api/auth/google/token", func(w http.ResponseWriter, req *http.Request) {
		require.NoError(t, req.ParseForm())
		assert.Equal(t, "code-123", req.FormValue("code"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"exchanged-jwt","token_type":"bearer"}`))
	})
	backend := httptest.NewServer(r)
	defer backend.Close()

	p := NewProvider(backend.URL+"/api", testLogger())

	authURLs := make(chan string, 1)
	type outcome struct {
		token string
		err   error
	}
	done := make(chan outcome, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		token, err := p.SignIn(ctx, func(u string) { authURLs <- u })
		done <- outcome{token, err}
	}()

	followRedirect(t, <-authURLs, url.Values{"code": {"code-123"}})

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "exchanged-jwt", res.token)
}

func TestSignInRejectsStateMismatch(t *testing.T) {
	p := NewProvider("http://backend.invalid/api", testLogger())

	authURLs := make(chan string, 1)
	errs := make(chan error, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		_, err := p.SignIn(ctx, func(u string) { authURLs <- u })
		errs <- err
	}()

	authURL := <-authURLs
	parsed, err := url.Parse(authURL)
	require.NoError(t, err)

	redirect := parsed.Query().Get("redirect_uri")
	resp, err := http.Get(redirect + "?state=forged&token=stolen")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Error(t, <-errs)
}
