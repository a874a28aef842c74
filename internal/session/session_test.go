package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/example/odoo/loadtest/internal/client"
	"github.com/example/odoo/loadtest/internal/metrics"
)

const loginPage = `<!DOCTYPE html>
<html><body>
<form class="oe_login_form" method="post" action="/web/login">
  <input type="hidden" name="csrf_token" value="tok-123456789012345678901234"/>
  <input type="text" name="login" id="login"/>
  <input type="password" name="password" id="password"/>
</form>
</body></html>`

const webClientPage = `<!DOCTYPE html>
<html><head>
<script type="text/javascript">
    odoo.__session_info__ = {"uid": 7, "is_admin": true, "user_context": {"lang": "en_US", "tz": "UTC"}, "db": "odoo"};
    odoo.reloadMenus = () => fetch("/web/webclient/load_menus");
</script>
</head><body></body></html>`

type fakeOdoo struct {
	mu         sync.Mutex
	acceptPass string
	webPage    string
	gotForm    map[string]string
}

func (f *fakeOdoo) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/web/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(loginPage))
			return
		}
		_ = r.ParseForm()
		f.mu.Lock()
		f.gotForm = map[string]string{}
		for k := range r.PostForm {
			f.gotForm[k] = r.PostForm.Get(k)
		}
		f.mu.Unlock()
		if r.PostForm.Get("password") == f.acceptPass {
			http.SetCookie(w, &http.Cookie{Name: "session_id", Value: "s1", Path: "/"})
			http.Redirect(w, r, "/web", http.StatusSeeOther)
			return
		}
		// Odoo re-renders the login page on a bad password.
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(loginPage))
	})
	mux.HandleFunc("/web", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("session_id"); err != nil {
			http.Redirect(w, r, "/web/login", http.StatusSeeOther)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(f.webPage))
	})
	return mux
}

type recorder struct {
	mu      sync.Mutex
	results []metrics.Result
}

func (r *recorder) Record(res metrics.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func setup(t *testing.T, odoo *fakeOdoo) (*client.Client, *recorder, *Bootstrapper) {
	t.Helper()
	srv := httptest.NewServer(odoo.handler())
	t.Cleanup(srv.Close)

	rec := &recorder{}
	c, err := client.New(srv.URL, client.Options{Recorder: rec})
	require.NoError(t, err)
	return c, rec, NewBootstrapper("/web/login", "/web", zaptest.NewLogger(t))
}

func TestAuthenticate_Success(t *testing.T) {
	odoo := &fakeOdoo{acceptPass: "secret", webPage: webClientPage}
	c, rec, b := setup(t, odoo)

	s, err := b.Authenticate(context.Background(), c, Credentials{Login: "admin", Password: "secret", Database: "odoo"})
	require.NoError(t, err)
	require.NotNil(t, s)

	token, ok := s.CSRFToken()
	assert.True(t, ok)
	assert.Equal(t, "tok-123456789012345678901234", token)

	uid, ok := s.UserID()
	assert.True(t, ok)
	assert.Equal(t, 7, uid)
	assert.True(t, s.LoggedIn())

	assert.Equal(t, "tok-123456789012345678901234", odoo.gotForm["csrf_token"])
	assert.Equal(t, "admin", odoo.gotForm["login"])
	assert.Equal(t, "odoo", odoo.gotForm["db"])
	assert.Contains(t, odoo.gotForm, "redirect")

	names := make([]string, 0, len(rec.results))
	for _, r := range rec.results {
		names = append(names, r.Name)
		assert.True(t, r.Success, r.Name)
	}
	assert.Equal(t, []string{NameLoginPage, NameLogin, NameWebInterface}, names)
}

func TestAuthenticate_RejectedLogin(t *testing.T) {
	odoo := &fakeOdoo{acceptPass: "secret", webPage: webClientPage}
	c, rec, b := setup(t, odoo)

	var s *Session
	var err error
	assert.NotPanics(t, func() {
		s, err = b.Authenticate(context.Background(), c, Credentials{Login: "admin", Password: "wrong"})
	})
	require.ErrorIs(t, err, ErrAuthenticationFailed)
	require.NotNil(t, s)

	_, ok := s.UserID()
	assert.False(t, ok, "identity stays absent")
	assert.False(t, s.LoggedIn())
	assert.NotContains(t, odoo.gotForm, "db")

	require.Len(t, rec.results, 2, "no web interface request after a failed login")
	login := rec.results[1]
	assert.Equal(t, NameLogin, login.Name)
	assert.Equal(t, http.StatusOK, login.StatusCode)
	assert.False(t, login.Success)
	assert.Contains(t, login.Error, "authentication failed")
}

func TestAuthenticate_MissingUID(t *testing.T) {
	odoo := &fakeOdoo{acceptPass: "secret", webPage: `<html><script>var x = 1;</script></html>`}
	c, _, b := setup(t, odoo)

	s, err := b.Authenticate(context.Background(), c, Credentials{Login: "admin", Password: "secret"})
	require.NoError(t, err)
	assert.True(t, s.LoggedIn())

	_, ok := s.UserID()
	assert.False(t, ok)
}

func TestAuthenticate_UnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := client.New(url, client.Options{})
	require.NoError(t, err)

	s, err := NewBootstrapper("", "", nil).Authenticate(context.Background(), c, Credentials{Login: "admin"})
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	require.NotNil(t, s)
	_, ok := s.CSRFToken()
	assert.False(t, ok)
}

func TestCheckLogin(t *testing.T) {
	b := NewBootstrapper("/web/login", "/web", nil)

	tests := []struct {
		name   string
		status int
		path   string
		ok     bool
	}{
		{"shell", 200, "/web", true},
		{"shell trailing slash", 200, "/web/", true},
		{"inside shell", 200, "/web/action-123", true},
		{"login page", 200, "/web/login", false},
		{"outside shell", 200, "/website", false},
		{"odoo root", 200, "/", false},
		{"server error", 500, "/web", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &client.Response{StatusCode: tt.status, URL: mustURL(t, "http://odoo"+tt.path)}
			err := b.checkLogin(resp)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrAuthenticationFailed)
			}
		})
	}
}
