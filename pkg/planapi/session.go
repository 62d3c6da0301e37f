package planapi

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/planport/pkg/clients"
)

// logoutTimeout bounds the logout call made when a session closes.
const logoutTimeout = 10 * time.Second

// AuthFactory creates the authenticator for a new session.
type AuthFactory func() (clients.Authenticator, error)

// Connector opens authenticated sessions against the planning API.
type Connector struct {
	name    string
	baseURL string
	http    *clients.HTTPClient
	newAuth AuthFactory
	upload  UploadOptions
	logger  *zap.Logger
}

// NewConnector creates a connector. name labels the connection in log context.
func NewConnector(name, baseURL string, hc *clients.HTTPClient, newAuth AuthFactory, upload UploadOptions, logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{
		name:    name,
		baseURL: baseURL,
		http:    hc,
		newAuth: newAuth,
		upload:  upload,
		logger:  logger,
	}
}

// Open authenticates and returns a session. The caller must Close it.
func (c *Connector) Open(ctx context.Context) (*Session, error) {
	auth, err := c.newAuth()
	if err != nil {
		return nil, err
	}
	if _, err := auth.Authorization(ctx); err != nil {
		return nil, err
	}

	logContext := c.name + ":" + auth.Principal()
	return &Session{
		Client:     NewClient(c.baseURL, c.http, auth, c.upload, c.logger),
		auth:       auth,
		logContext: logContext,
		logger:     c.logger.With(zap.String("session", logContext)),
	}, nil
}

// Session is an authenticated connection to the planning API.
type Session struct {
	*Client

	auth       clients.Authenticator
	logContext string
	logger     *zap.Logger
	closeOnce  sync.Once
	closeErr   error
}

// LogContext names the connection in status lines.
func (s *Session) LogContext() string {
	return s.logContext
}

// Close logs the session out. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), logoutTimeout)
		defer cancel()
		s.closeErr = s.auth.Logout(ctx)
		if s.closeErr != nil {
			s.logger.Warn("logout failed", zap.Error(s.closeErr))
		}
	})
	return s.closeErr
}
