package client

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Response classification errors. The recorded failure detail is the
// wrapped error's message.
var (
	ErrUnexpectedStatus  = errors.New("unexpected status")
	ErrMalformedResponse = errors.New("malformed response")
	ErrRPCError          = errors.New("rpc error")
)

// ExpectStatus accepts only the given status code.
func ExpectStatus(code int) Check {
	return func(resp *Response) error {
		if resp.StatusCode != code {
			return fmt.Errorf("%w %d", ErrUnexpectedStatus, resp.StatusCode)
		}
		return nil
	}
}

// ExpectRPCResult accepts a 200 response carrying a JSON-RPC object without
// an error member. An error payload fails the request even with status 200.
func ExpectRPCResult() Check {
	status := ExpectStatus(200)
	return func(resp *Response) error {
		if err := status(resp); err != nil {
			return err
		}
		if !gjson.ValidBytes(resp.Body) {
			return fmt.Errorf("%w: body is not JSON", ErrMalformedResponse)
		}
		doc := gjson.ParseBytes(resp.Body)
		if !doc.IsObject() {
			return fmt.Errorf("%w: body is not a JSON object", ErrMalformedResponse)
		}
		if e := doc.Get("error"); e.Exists() {
			return fmt.Errorf("%w: %s", ErrRPCError, RPCErrorMessage(e))
		}
		return nil
	}
}

// RPCErrorMessage extracts the most specific message from a JSON-RPC error member.
func RPCErrorMessage(e gjson.Result) string {
	for _, path := range []string{"data.message", "message"} {
		if m := e.Get(path); m.Type == gjson.String && m.Str != "" {
			return m.Str
		}
	}
	if e.Type == gjson.String {
		return e.Str
	}
	return e.Raw
}

// Result returns the "result" member of a JSON-RPC response body.
func (r *Response) Result() gjson.Result {
	return gjson.GetBytes(r.Body, "result")
}

// IntResult returns the RPC result when it is an integer id.
// null, false, strings, fractions and missing results report ok=false.
func (r *Response) IntResult() (int, bool) {
	return asInt(r.Result())
}

// FirstIntResult returns the first element of a list result, as returned by search.
func (r *Response) FirstIntResult() (int, bool) {
	res := r.Result()
	if !res.IsArray() {
		return 0, false
	}
	return asInt(res.Get("0"))
}

func asInt(v gjson.Result) (int, bool) {
	if v.Type != gjson.Number {
		return 0, false
	}
	n := v.Int()
	if float64(n) != v.Num {
		return 0, false
	}
	return int(n), true
}
