// auth/session.go
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// GRVT's auth flow exchanges an API key for a session cookie:
// POST /auth/api_key/login with {"api_key": ...} and the server sets an
// HttpOnly "exchange_token" cookie with a ~24h TTL. The session
// re-authenticates ahead of expiry so long-running bots never hit 401s.

const (
	// CookieName is the session cookie issued by GRVT's auth service.
	CookieName = "exchange_token"

	loginPath     = "/auth/api_key/login"
	refreshBuffer = 5 * time.Minute
	defaultTTL    = 24 * time.Hour
)

// ErrNoSessionCookie is returned when login succeeds but the response
// carries no session cookie in either the Set-Cookie header or the body.
var ErrNoSessionCookie = errors.New("login response contained no session cookie")

// AuthError is returned when the auth service rejects a login request.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("grvt authentication failed [%d]: %s", e.StatusCode, e.Body)
}

// Session manages API key to session cookie authentication. It is safe
// for concurrent use; the REST and WebSocket clients share one instance.
type Session struct {
	apiKey     string
	env        Environment
	ttl        time.Duration
	httpClient *http.Client
	logger     zerolog.Logger

	// test overrides for the environment endpoint table
	baseURL   string
	marketURL string

	mu      sync.Mutex
	cookie  string
	expires time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithTTL overrides the expected cookie TTL used to schedule refresh.
func WithTTL(d time.Duration) Option {
	return func(s *Session) { s.ttl = d }
}

// WithHTTPClient overrides the HTTP client used for login requests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) { s.httpClient = c }
}

// WithLogger sets the logger; the default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithBaseURL overrides the trading/auth base URL for this environment.
func WithBaseURL(u string) Option {
	return func(s *Session) { s.baseURL = u }
}

// WithMarketURL overrides the market-data base URL for this environment.
func WithMarketURL(u string) Option {
	return func(s *Session) { s.marketURL = u }
}

// NewSession creates a session for the given API key and environment.
func NewSession(apiKey string, env Environment, opts ...Option) *Session {
	s := &Session{
		apiKey:     apiKey,
		env:        env,
		ttl:        defaultTTL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Environment returns the deployment this session targets.
func (s *Session) Environment() Environment { return s.env }

// BaseURL is the trading/auth REST base URL.
func (s *Session) BaseURL() string {
	if s.baseURL != "" {
		return s.baseURL
	}
	return s.env.endpoints().rest
}

// MarketURL is the public market-data REST base URL.
func (s *Session) MarketURL() string {
	if s.marketURL != "" {
		return s.marketURL
	}
	return s.env.endpoints().market
}

// WSTradesURL is the private trading WebSocket endpoint.
func (s *Session) WSTradesURL() string { return s.env.endpoints().wsTrades }

// WSMarketURL is the public market-data WebSocket endpoint.
func (s *Session) WSMarketURL() string { return s.env.endpoints().wsMarket }

// Cookie returns a valid session cookie value, logging in or refreshing
// as needed.
func (s *Session) Cookie(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.valid() {
		return s.cookie, nil
	}
	return s.login(ctx)
}

// Invalidate forces re-authentication on the next Cookie call.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookie = ""
	s.expires = time.Time{}
}

// valid reports whether the cached cookie is still inside its refresh window.
// Callers hold s.mu.
func (s *Session) valid() bool {
	return s.cookie != "" && time.Now().Before(s.expires.Add(-refreshBuffer))
}

// login exchanges the API key for a fresh session cookie. Callers hold s.mu.
func (s *Session) login(ctx context.Context) (string, error) {
	url := s.BaseURL() + loginPath
	s.logger.Debug().Str("url", url).Msg("Authenticating with GRVT")

	payload, err := json.Marshal(map[string]string{"api_key": s.apiKey})
	if err != nil {
		return "", fmt.Errorf("marshal login payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read login response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	cookie := ""
	for _, c := range resp.Cookies() {
		if c.Name == CookieName {
			cookie = c.Value
			break
		}
	}
	if cookie == "" {
		// Some environments return the cookie in the response body instead.
		var alt struct {
			Cookie string `json:"cookie"`
			Token  string `json:"token"`
		}
		if jsonErr := json.Unmarshal(body, &alt); jsonErr == nil {
			if alt.Cookie != "" {
				cookie = alt.Cookie
			} else {
				cookie = alt.Token
			}
		}
	}
	if cookie == "" {
		return "", fmt.Errorf("%w (response: %.200s)", ErrNoSessionCookie, string(body))
	}

	s.cookie = cookie
	s.expires = time.Now().Add(s.ttl)
	s.logger.Info().Str("env", s.env.String()).Dur("ttl", s.ttl).Msg("GRVT session authenticated")
	return cookie, nil
}
