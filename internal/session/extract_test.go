package session

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/odoo/loadtest/internal/client"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func htmlResponse(body string) *client.Response {
	return &client.Response{
		Header: http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:   []byte(body),
	}
}

func jsonResponse(body string) *client.Response {
	return &client.Response{
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   []byte(body),
	}
}

func TestExtractCSRFToken(t *testing.T) {
	tests := []struct {
		name   string
		resp   *client.Response
		want   string
		wantOK bool
	}{
		{name: "hidden input", resp: htmlResponse(loginPage), want: "tok-123456789012345678901234", wantOK: true},
		{name: "attribute order", resp: htmlResponse(`<input value="abc" name="csrf_token">`), want: "abc", wantOK: true},
		{
			name:   "session info fallback",
			resp:   htmlResponse(`<script>odoo.__session_info__ = {"csrf_token": "from-js"};</script>`),
			want:   "from-js",
			wantOK: true,
		},
		{name: "json body", resp: jsonResponse(`{"csrf_token": "j1"}`), want: "j1", wantOK: true},
		{name: "json rpc body", resp: jsonResponse(`{"result": {"csrf_token": "j2"}}`), want: "j2", wantOK: true},
		{name: "absent", resp: htmlResponse(`<form><input name="login"></form>`)},
		{name: "empty value", resp: htmlResponse(`<input name="csrf_token" value="">`)},
		{name: "text mention only", resp: htmlResponse(`<p>csrf_token":"not-a-token"</p>`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractCSRFToken(tt.resp)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractUserID(t *testing.T) {
	tests := []struct {
		name   string
		resp   *client.Response
		want   int
		wantOK bool
	}{
		{name: "web client", resp: htmlResponse(webClientPage), want: 7, wantOK: true},
		{name: "uid not first", resp: htmlResponse(`<script>var session_info = {"name": "x", "uid": 12};</script>`), want: 12, wantOK: true},
		{name: "uid false", resp: htmlResponse(`<script>odoo.__session_info__ = {"uid": false};</script>`)},
		{name: "uid string", resp: htmlResponse(`<script>odoo.__session_info__ = {"uid": "7"};</script>`)},
		{name: "not json literal", resp: htmlResponse(`<script>odoo.__session_info__ = {uid: 7};</script>`)},
		{name: "no assignment", resp: htmlResponse(`<script>console.log("session_info")</script>`)},
		{name: "outside script", resp: htmlResponse(`<p>session_info = {"uid": 3}</p>`)},
		{name: "json body", resp: jsonResponse(`{"uid": 2}`), want: 2, wantOK: true},
		{name: "json rpc body", resp: jsonResponse(`{"result": {"uid": 5}}`), want: 5, wantOK: true},
		{name: "json null", resp: jsonResponse(`{"result": {"uid": null}}`)},
		{name: "garbage", resp: htmlResponse("\x00\x01<<<")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got int
			var ok bool
			assert.NotPanics(t, func() { got, ok = ExtractUserID(tt.resp) })
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
