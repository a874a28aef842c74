// Package session bootstraps an authenticated Odoo web session for one
// simulated user: anti-forgery token, form login and user identity.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/example/odoo/loadtest/internal/client"
)

// Request names as they appear in reports.
const (
	NameLoginPage    = "Get Login Page"
	NameLogin        = "Login"
	NameWebInterface = "Get Web Interface"
)

// ErrAuthenticationFailed is returned when the login was not accepted.
var ErrAuthenticationFailed = errors.New("session: authentication failed")

// Credentials identify the test user.
type Credentials struct {
	Login    string
	Password string
	// Database is sent as the db form field when set.
	Database string
}

// Session holds the per-user authentication state. It is owned by one
// actor and mutated only by the Bootstrapper.
type Session struct {
	csrfToken string
	hasToken  bool
	userID    int
	hasUserID bool
	loggedIn  bool
}

// CSRFToken returns the anti-forgery token, if one was found.
func (s *Session) CSRFToken() (string, bool) { return s.csrfToken, s.hasToken }

// UserID returns the numeric user id, if one was found.
func (s *Session) UserID() (int, bool) { return s.userID, s.hasUserID }

// LoggedIn reports whether the login was accepted.
func (s *Session) LoggedIn() bool { return s.loggedIn }

// Bootstrapper runs the login sequence.
type Bootstrapper struct {
	loginPath string
	shellPath string
	log       *zap.Logger
}

// NewBootstrapper creates a bootstrapper. shellPath is the authenticated
// area a successful login redirects into (e.g. "/web").
func NewBootstrapper(loginPath, shellPath string, log *zap.Logger) *Bootstrapper {
	if loginPath == "" {
		loginPath = "/web/login"
	}
	if shellPath == "" {
		shellPath = "/web"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Bootstrapper{loginPath: loginPath, shellPath: shellPath, log: log}
}

// Authenticate fetches the login page, logs in and reads the user identity.
// The returned session is never nil. A rejected login yields
// ErrAuthenticationFailed and a session without identity; callers keep
// running with it.
func (b *Bootstrapper) Authenticate(ctx context.Context, c *client.Client, creds Credentials) (*Session, error) {
	s := &Session{}

	if resp, err := c.Get(ctx, NameLoginPage, b.loginPath); err != nil {
		b.log.Error("failed to get login page", zap.Error(err))
	} else if token, ok := ExtractCSRFToken(resp); ok {
		s.csrfToken, s.hasToken = token, true
		b.log.Debug("csrf token obtained", zap.String("token_prefix", prefix(token, 20)))
	} else {
		b.log.Warn("csrf token not found on login page")
	}

	form := url.Values{
		"login":      {creds.Login},
		"password":   {creds.Password},
		"csrf_token": {s.csrfToken},
		"redirect":   {""},
	}
	if creds.Database != "" {
		form.Set("db", creds.Database)
	}

	_, err := c.Do(ctx, client.Request{
		Name:   NameLogin,
		Method: http.MethodPost,
		Path:   b.loginPath,
		Form:   form,
		Check:  b.checkLogin,
	})
	if err != nil {
		b.log.Error("login failed", zap.String("login", creds.Login), zap.Error(err))
		if errors.Is(err, ErrAuthenticationFailed) {
			return s, err
		}
		return s, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}
	s.loggedIn = true
	b.log.Info("login successful", zap.String("login", creds.Login))

	resp, err := c.Get(ctx, NameWebInterface, b.shellPath)
	if err != nil {
		b.log.Error("failed to get web interface", zap.Error(err))
		return s, nil
	}
	if uid, ok := ExtractUserID(resp); ok {
		s.userID, s.hasUserID = uid, true
		b.log.Debug("user id extracted", zap.Int("uid", uid))
	} else {
		b.log.Warn("user id not found in session info")
	}
	return s, nil
}

// checkLogin accepts the login only when it lands inside the authenticated
// area and not back on the login page.
func (b *Bootstrapper) checkLogin(resp *client.Response) error {
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrAuthenticationFailed, resp.StatusCode)
	}
	path := "/"
	if resp.URL != nil {
		path = strings.TrimSuffix(resp.URL.Path, "/")
	}
	if !b.inShell(path) || path == strings.TrimSuffix(b.loginPath, "/") {
		return fmt.Errorf("%w: landed on %s", ErrAuthenticationFailed, path)
	}
	return nil
}

func (b *Bootstrapper) inShell(path string) bool {
	shell := strings.TrimSuffix(b.shellPath, "/")
	return path == shell || strings.HasPrefix(path, shell+"/")
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
