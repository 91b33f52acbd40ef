package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"
	"golang.org/x/oauth2"
)

// Provider runs the OAuth sign-in flow against the ShikshaSetu backend.
//
// The backend fronts Google itself: the client only ever talks to the
// platform's own authorization endpoints and receives a platform JWT,
// never Google credentials.
//
// SIGN-IN FLOW:
//  1. Start a loopback HTTP listener for the redirect target
//  2. Hand the user the backend's authorization URL (carrying a random
//     state parameter) to open in a browser
//  3. The backend completes the Google dance and redirects to the
//     loopback listener — either with an authorization code, or with the
//     issued token directly in the query string
//  4. Verify the state, then exchange the code for the bearer token
type Provider struct {
	config *oauth2.Config
	logger *slog.Logger
}

// NewProvider creates a Provider for the backend at apiBaseURL
// (including the /api suffix).
func NewProvider(apiBaseURL string, logger *slog.Logger) *Provider {
	return &Provider{
		config: &oauth2.Config{
			Endpoint: oauth2.Endpoint{
				AuthURL:  apiBaseURL + "/auth/google",
				TokenURL: apiBaseURL + "/auth/google/token",
			},
		},
		logger: logger,
	}
}

// callbackResult is what the loopback listener extracts from the redirect.
type callbackResult struct {
	code  string
	token string
	err   error
}

// SignIn runs the full flow and returns the platform bearer token.
//
// prompt is called once with the authorization URL the user must open;
// SignIn then blocks until the redirect arrives or ctx is cancelled.
func (p *Provider) SignIn(ctx context.Context, prompt func(authURL string)) (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("auth: starting callback listener: %w", err)
	}

	// Random, hard to guess. The callback must echo it back, which stops
	// an attacker from injecting their own code into our flow.
	state := xid.New().String()

	cfg := *p.config
	cfg.RedirectURL = fmt.Sprintf("http://%s/callback", ln.Addr().String())

	results := make(chan callbackResult, 1)

	r := chi.NewRouter()
	r.Get("/callback", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()

		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			results <- callbackResult{err: fmt.Errorf("auth: OAuth state mismatch")}
			return
		}
		if e := q.Get("error"); e != "" {
			http.Error(w, "sign-in failed", http.StatusBadRequest)
			results <- callbackResult{err: fmt.Errorf("auth: provider returned error %q", e)}
			return
		}

		fmt.Fprintln(w, "Signed in. You can close this tab and return to the terminal.")
		results <- callbackResult{code: q.Get("code"), token: q.Get("token")}
	})

	srv := &http.Server{Handler: r}
	go srv.Serve(ln)
	defer srv.Close()

	prompt(cfg.AuthCodeURL(state))
	p.logger.Info("waiting for OAuth redirect",
		slog.String("redirectURL", cfg.RedirectURL),
	)

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("auth: sign-in cancelled: %w", ctx.Err())

	case res := <-results:
		if res.err != nil {
			return "", res.err
		}

		// Some backend versions put the issued JWT straight into the
		// redirect query instead of an exchangeable code.
		if res.token != "" {
			return res.token, nil
		}

		tok, err := cfg.Exchange(ctx, res.code)
		if err != nil {
			return "", fmt.Errorf("auth: exchanging OAuth code: %w", err)
		}
		return tok.AccessToken, nil
	}
}
