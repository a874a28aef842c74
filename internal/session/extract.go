package session

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/net/html"

	"github.com/example/odoo/loadtest/internal/client"
)

const sessionInfoMarker = "session_info"

// ExtractCSRFToken reads the anti-forgery token from a login page.
// HTML bodies are tokenized for <input name="csrf_token">, falling back to
// an embedded session info object; JSON bodies are read with gjson.
func ExtractCSRFToken(resp *client.Response) (string, bool) {
	if isJSON(resp) {
		return firstString(gjson.ParseBytes(resp.Body), "csrf_token", "result.csrf_token")
	}

	if token, ok := csrfInput(string(resp.Body)); ok {
		return token, true
	}
	if info, ok := sessionInfo(string(resp.Body)); ok {
		return firstString(info, "csrf_token")
	}
	return "", false
}

// ExtractUserID reads the numeric uid from the web client's session info.
func ExtractUserID(resp *client.Response) (int, bool) {
	if isJSON(resp) {
		doc := gjson.ParseBytes(resp.Body)
		for _, path := range []string{"uid", "result.uid"} {
			if uid, ok := intValue(doc.Get(path)); ok {
				return uid, true
			}
		}
		return 0, false
	}

	info, ok := sessionInfo(string(resp.Body))
	if !ok {
		return 0, false
	}
	return intValue(info.Get("uid"))
}

func isJSON(resp *client.Response) bool {
	ct := resp.ContentType()
	return ct == "application/json" || strings.HasSuffix(ct, "+json")
}

// csrfInput scans the document for <input name="csrf_token" value="...">.
func csrfInput(doc string) (string, bool) {
	z := html.NewTokenizer(strings.NewReader(doc))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return "", false
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "input" {
				continue
			}
			var name, value string
			var hasValue bool
			for _, a := range tok.Attr {
				switch a.Key {
				case "name":
					name = a.Val
				case "value":
					value, hasValue = a.Val, true
				}
			}
			if name == "csrf_token" && hasValue && value != "" {
				return value, true
			}
		}
	}
}

// sessionInfo finds the script assigning the session info object and
// decodes the object literal that follows the "=".
func sessionInfo(doc string) (gjson.Result, bool) {
	z := html.NewTokenizer(strings.NewReader(doc))
	inScript := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return gjson.Result{}, false
		case html.StartTagToken:
			name, _ := z.TagName()
			inScript = string(name) == "script"
		case html.EndTagToken:
			inScript = false
		case html.TextToken:
			if !inScript {
				continue
			}
			if obj, ok := objectAfterAssignment(string(z.Text())); ok {
				return gjson.ParseBytes(obj), true
			}
		}
	}
}

func objectAfterAssignment(script string) (json.RawMessage, bool) {
	i := strings.Index(script, sessionInfoMarker)
	if i < 0 {
		return nil, false
	}
	rest := script[i+len(sessionInfoMarker):]
	eq := strings.IndexByte(rest, '=')
	if eq < 0 {
		return nil, false
	}
	rest = rest[eq+1:]
	brace := strings.IndexByte(rest, '{')
	if brace < 0 || strings.TrimSpace(rest[:brace]) != "" {
		return nil, false
	}

	var obj json.RawMessage
	if err := json.NewDecoder(strings.NewReader(rest[brace:])).Decode(&obj); err != nil {
		return nil, false
	}
	return obj, true
}

func firstString(doc gjson.Result, paths ...string) (string, bool) {
	for _, p := range paths {
		if v := doc.Get(p); v.Type == gjson.String && v.Str != "" {
			return v.Str, true
		}
	}
	return "", false
}

func intValue(v gjson.Result) (int, bool) {
	if v.Type != gjson.Number {
		return 0, false
	}
	n := v.Int()
	if float64(n) != v.Num {
		return 0, false
	}
	return int(n), true
}
