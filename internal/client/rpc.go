package client

import (
	"context"
	"net/http"
)

// MaxRPCID is the upper bound of the random JSON-RPC request id.
const MaxRPCID = 1000000

// RPCParams is the params member of a call_kw request.
type RPCParams struct {
	Model  string         `json:"model"`
	Method string         `json:"method"`
	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs"`
}

// RPCRequest is the JSON-RPC 2.0 envelope posted to call_kw.
type RPCRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	Method  string    `json:"method"`
	Params  RPCParams `json:"params"`
	ID      int       `json:"id"`
}

// Call describes one model method invocation.
type Call struct {
	// Name is the reporting name.
	Name   string
	Model  string
	Method string
	Args   []any
	Kwargs map[string]any
	// ID is the request id, drawn from 1..MaxRPCID by the caller.
	ID int
}

// CallPath returns the endpoint path for model.method.
func CallPath(model, method string) string {
	return "/web/dataset/call_kw/" + model + "/" + method
}

// NewRPCRequest builds the envelope for a call. Nil args and kwargs are
// sent as [] and {}.
func NewRPCRequest(call Call) RPCRequest {
	args := call.Args
	if args == nil {
		args = []any{}
	}
	kwargs := call.Kwargs
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return RPCRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params: RPCParams{
			Model:  call.Model,
			Method: call.Method,
			Args:   args,
			Kwargs: kwargs,
		},
		ID: call.ID,
	}
}

// CallKW posts a JSON-RPC call and classifies it with ExpectRPCResult.
func (c *Client) CallKW(ctx context.Context, call Call) (*Response, error) {
	return c.Do(ctx, Request{
		Name:   call.Name,
		Method: http.MethodPost,
		Path:   CallPath(call.Model, call.Method),
		JSON:   NewRPCRequest(call),
		Check:  ExpectRPCResult(),
	})
}
