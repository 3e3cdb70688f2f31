// Package auth implements the OAuth token gate used before every Gmail
// API call: a mutex-guarded access token with proactive refresh.
//
// The critical invariant is that "check validity and refresh if needed"
// is one atomic step. The lock is held across the refresh HTTP call, so
// concurrent callers never interleave a staleness check with a write.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var authRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gmail_auth_refreshes_total",
	Help: "Total access token refreshes by result",
}, []string{"result"})

// The OOB redirect URI remains the default for installed applications;
// changing it would be a behavioural break for existing credentials.
const DefaultRedirectURI = "urn:ietf:wg:oauth:2.0:oob"

// AuthError is returned when a token operation fails.
type AuthError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("auth %s failed (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("auth %s failed: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Config holds the OAuth client registration, matching the "installed"
// block of a Google client credentials file.
type Config struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	AuthURI      string `json:"auth_uri"`
	TokenURI     string `json:"token_uri"`
}

// credentialsFile is the on-disk shape of client_id.json.
type credentialsFile struct {
	Installed Config `json:"installed"`
}

// LoadCredentials reads a Google "installed application" credentials
// file.
func LoadCredentials(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read credentials: %w", err)
	}

	var cf credentialsFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return Config{}, fmt.Errorf("parse credentials: %w", err)
	}
	if cf.Installed.ClientID == "" || cf.Installed.TokenURI == "" {
		return Config{}, errors.New("credentials file missing installed client")
	}

	return cf.Installed, nil
}

// Authenticator owns the shared token state. All reads and the refresh
// path go through one mutex.
type Authenticator struct {
	log          zerolog.Logger
	client       *http.Client
	clientID     string
	clientSecret string
	authURI      *url.URL
	tokenURI     *url.URL
	redirectURI  string

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiry       time.Time
}

// tokenResponse is the token endpoint's JSON body for both the code
// exchange and the refresh grant.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
}

// New creates an Authenticator from an OAuth client registration.
func New(cfg Config, logger zerolog.Logger) (*Authenticator, error) {
	return NewWithRedirectURI(cfg, DefaultRedirectURI, logger)
}

// NewWithRedirectURI creates an Authenticator with a custom redirect
// URI.
func NewWithRedirectURI(cfg Config, redirectURI string, logger zerolog.Logger) (*Authenticator, error) {
	authURI, err := url.Parse(cfg.AuthURI)
	if err != nil {
		return nil, fmt.Errorf("auth_uri %q invalid: %w", cfg.AuthURI, err)
	}
	tokenURI, err := url.Parse(cfg.TokenURI)
	if err != nil {
		return nil, fmt.Errorf("token_uri %q invalid: %w", cfg.TokenURI, err)
	}

	return &Authenticator{
		log: logger,
		client: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		authURI:      authURI,
		tokenURI:     tokenURI,
		redirectURI:  redirectURI,
	}, nil
}

// AccessToken returns the current access token. It may be empty or
// stale; callers use EnsureFresh first.
func (a *Authenticator) AccessToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.accessToken
}

// RefreshTokenValue returns the stored refresh token.
func (a *Authenticator) RefreshTokenValue() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refreshToken
}

// SetRefreshToken installs a previously persisted refresh token.
func (a *Authenticator) SetRefreshToken(rt string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshToken = rt
}

// AuthURL builds the consent URL a user opens in their browser to
// obtain an authorization code for Exchange.
func (a *Authenticator) AuthURL(readonly bool) string {
	scope := "profile"
	if readonly {
		scope += " https://www.googleapis.com/auth/gmail.readonly"
	} else {
		scope += " https://www.googleapis.com/auth/gmail.modify"
	}

	q := url.Values{}
	q.Set("client_id", a.clientID)
	q.Set("redirect_uri", a.redirectURI)
	q.Set("response_type", "code")
	q.Set("scope", scope)

	u := *a.authURI
	u.RawQuery = q.Encode()
	return u.String()
}

// Exchange trades an authorization code for a refresh token and an
// initial access token.
func (a *Authenticator) Exchange(ctx context.Context, code string) error {
	params := url.Values{}
	params.Set("code", code)
	params.Set("client_id", a.clientID)
	params.Set("client_secret", a.clientSecret)
	params.Set("redirect_uri", a.redirectURI)
	params.Set("grant_type", "authorization_code")

	tr, err := a.tokenRequest(ctx, "exchange", params)
	if err != nil {
		return err
	}
	if tr.RefreshToken == "" {
		return &AuthError{Op: "exchange", Err: errors.New("no refresh token in response")}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshToken = tr.RefreshToken
	a.accessToken = tr.AccessToken
	a.expiry = proactiveExpiry(tr.ExpiresIn)

	return nil
}

// EnsureFresh refreshes the access token if it is missing or past its
// proactive expiry. The check and the refresh happen under one lock
// acquisition, so a caller observing a valid token is guaranteed no
// concurrent refresh raced against the check.
func (a *Authenticator) EnsureFresh(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case a.accessToken == "":
		a.log.Debug().Msg("no auth token yet, refreshing")
	case !a.expiry.IsZero() && time.Now().After(a.expiry):
		a.log.Debug().Msg("auth token expiry pending, refreshing")
	default:
		return nil
	}

	return a.refreshLocked(ctx)
}

// refreshLocked runs the refresh grant. The caller holds a.mu.
func (a *Authenticator) refreshLocked(ctx context.Context) error {
	params := url.Values{}
	params.Set("client_id", a.clientID)
	params.Set("client_secret", a.clientSecret)
	params.Set("refresh_token", a.refreshToken)
	params.Set("grant_type", "refresh_token")

	tr, err := a.tokenRequest(ctx, "refresh", params)
	if err != nil {
		authRefreshesTotal.WithLabelValues("error").Inc()
		return err
	}

	a.accessToken = tr.AccessToken
	a.expiry = proactiveExpiry(tr.ExpiresIn)

	authRefreshesTotal.WithLabelValues("success").Inc()
	a.log.Debug().Time("expiry", a.expiry).Msg("access token refreshed")

	return nil
}

// tokenRequest POSTs a form to the token endpoint and decodes the
// token response.
func (a *Authenticator) tokenRequest(ctx context.Context, op string, params url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURI.String(),
		strings.NewReader(params.Encode()))
	if err != nil {
		return nil, &AuthError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := a.client.Do(req)
	if err != nil {
		return nil, &AuthError{Op: op, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, &AuthError{
			Op:         op,
			StatusCode: res.StatusCode,
			Err:        fmt.Errorf("oddball response: %s", strings.TrimSpace(string(body))),
		}
	}

	var tr tokenResponse
	if err := json.NewDecoder(res.Body).Decode(&tr); err != nil {
		return nil, &AuthError{Op: op, Err: fmt.Errorf("decode token response: %w", err)}
	}
	if tr.AccessToken == "" {
		return nil, &AuthError{Op: op, Err: errors.New("no access token in response")}
	}

	return &tr, nil
}

// proactiveExpiry treats a token as expired at two thirds of its
// declared lifetime, so an in-flight request never races the real
// expiry.
func proactiveExpiry(expiresIn int64) time.Time {
	return time.Now().Add(time.Duration(expiresIn*2/3) * time.Second)
}
