package clients

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ajitpratap0/planport/pkg/config"
	"github.com/ajitpratap0/planport/pkg/errors"
)

// tokenRefreshMargin is how long before expiry a cached token is renewed.
const tokenRefreshMargin = time.Minute

// Authenticator produces the Authorization header for planning API requests.
type Authenticator interface {
	// Authorization returns the header value, authenticating if needed.
	Authorization(ctx context.Context) (string, error)
	// Logout invalidates any session held by the authenticator.
	Logout(ctx context.Context) error
	// Principal names the authenticated identity for log context.
	Principal() string
}

// NewAuthenticator builds the Authenticator selected by cfg.Auth.Method.
func NewAuthenticator(cfg *config.Config, client *HTTPClient, logger *zap.Logger) (Authenticator, error) {
	switch cfg.Auth.Method {
	case config.AuthBasic:
		return NewBasicTokenAuth(cfg.Connection.AuthURL, cfg.Auth.Username, cfg.Auth.Password, client, logger), nil
	case config.AuthToken:
		return StaticToken{Token: cfg.Auth.Token, Name: cfg.Auth.Username}, nil
	case config.AuthOAuth2:
		return NewOAuth2Auth(&clientcredentials.Config{
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
			TokenURL:     cfg.Auth.TokenURL,
			Scopes:       cfg.Auth.Scopes,
		}, client), nil
	default:
		return nil, errors.New(errors.ErrorTypeConfig, "unsupported authentication method").
			WithDetail("method", cfg.Auth.Method)
	}
}

// StaticToken authenticates with a pre-issued API token.
type StaticToken struct {
	Token string
	Name  string
}

// Authorization returns the token header value.
func (s StaticToken) Authorization(context.Context) (string, error) {
	if s.Token == "" {
		return "", errors.New(errors.ErrorTypeAuthentication, "no API token configured")
	}
	return "AnaplanAuthToken " + s.Token, nil
}

// Logout is a no-op; pre-issued tokens are managed outside planport.
func (s StaticToken) Logout(context.Context) error { return nil }

// Principal returns the configured name.
func (s StaticToken) Principal() string {
	if s.Name == "" {
		return "token"
	}
	return s.Name
}

// BasicTokenAuth exchanges a username and password for a session token and
// caches it until shortly before it expires.
type BasicTokenAuth struct {
	authURL  string
	username string
	password string
	client   *HTTPClient
	logger   *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewBasicTokenAuth creates a token authenticator against the token service at authURL.
func NewBasicTokenAuth(authURL, username, password string, client *HTTPClient, logger *zap.Logger) *BasicTokenAuth {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BasicTokenAuth{
		authURL:  strings.TrimRight(authURL, "/"),
		username: username,
		password: password,
		client:   client,
		logger:   logger.With(zap.String("component", "token_auth")),
		now:      time.Now,
	}
}

type tokenResponse struct {
	Status        string `json:"status"`
	StatusMessage string `json:"statusMessage"`
	TokenInfo     struct {
		ExpiresAt  int64  `json:"expiresAt"`
		TokenID    string `json:"tokenId"`
		TokenValue string `json:"tokenValue"`
	} `json:"tokenInfo"`
}

// Authorization returns a cached token or authenticates for a new one.
func (a *BasicTokenAuth) Authorization(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && a.now().Add(tokenRefreshMargin).Before(a.expiresAt) {
		return "AnaplanAuthToken " + a.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.authURL+"/token/authenticate", nil)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConfig, "invalid token service URL")
	}
	req.SetBasicAuth(a.username, a.password)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConnection, "failed to read token response")
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", errors.New(errors.ErrorTypeAuthentication, "authentication rejected").
			WithDetail("status", resp.StatusCode).
			WithDetail("user", a.username)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeAuthentication, "malformed token response")
	}
	if tr.TokenInfo.TokenValue == "" {
		return "", errors.New(errors.ErrorTypeAuthentication, "token response carried no token").
			WithDetail("status_message", tr.StatusMessage)
	}

	a.token = tr.TokenInfo.TokenValue
	a.expiresAt = time.UnixMilli(tr.TokenInfo.ExpiresAt)
	if tr.TokenInfo.ExpiresAt == 0 {
		a.expiresAt = a.now().Add(30 * time.Minute)
	}
	a.logger.Debug("authenticated", zap.String("user", a.username), zap.Time("expires_at", a.expiresAt))

	return "AnaplanAuthToken " + a.token, nil
}

// Logout invalidates the cached token on the server. It is a no-op when no
// token was issued.
func (a *BasicTokenAuth) Logout(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token == "" {
		return nil
	}
	token := a.token
	a.token = ""
	a.expiresAt = time.Time{}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.authURL+"/token/logout", nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid token service URL")
	}
	req.Header.Set("Authorization", "AnaplanAuthToken "+token)

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return errors.Newf(errors.ErrorTypeAuthentication, "logout failed with status %d", resp.StatusCode)
	}
	return nil
}

// Principal returns the username.
func (a *BasicTokenAuth) Principal() string {
	return a.username
}

// OAuth2Auth authenticates with the OAuth2 client credentials grant.
type OAuth2Auth struct {
	clientID string
	source   oauth2.TokenSource
}

// NewOAuth2Auth creates an OAuth2 authenticator. Tokens are fetched through
// the plain client of hc and reused until expiry.
func NewOAuth2Auth(cc *clientcredentials.Config, hc *HTTPClient) *OAuth2Auth {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, hc.StandardClient())
	return &OAuth2Auth{
		clientID: cc.ClientID,
		source:   oauth2.ReuseTokenSource(nil, cc.TokenSource(ctx)),
	}
}

// Authorization returns a bearer header.
func (o *OAuth2Auth) Authorization(context.Context) (string, error) {
	tok, err := o.source.Token()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeAuthentication, "oauth2 token request failed")
	}
	return tok.Type() + " " + tok.AccessToken, nil
}

// Logout is a no-op; client credential tokens expire on their own.
func (o *OAuth2Auth) Logout(context.Context) error { return nil }

// Principal returns the client id.
func (o *OAuth2Auth) Principal() string {
	return o.clientID
}
