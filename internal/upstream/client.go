// Package upstream talks JSON-RPC to the Bitcoin Core node behind the proxy.
package upstream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/coreguard/coreguard/internal/version"
)

var (
	// ErrTimeout is returned when the per-call deadline passes before the node answers.
	ErrTimeout = errors.New("upstream timeout")
	// ErrTransport covers everything else that prevents a JSON-RPC answer.
	ErrTransport = errors.New("upstream unavailable")
)

// RPCError is an error object returned by the node, relayed verbatim.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Config describes how to reach the node.
type Config struct {
	URL        string // http://host:port, no trailing path
	User       string
	Password   string
	HTTPClient *http.Client // optional; shared by every call
}

// Client is safe for concurrent use. It holds no per-call state: the
// endpoint path is an argument of Call.
type Client struct {
	base string
	opts []rpc.ClientOption
	def  *rpc.Client
}

// New builds a client for the base endpoint. No connection is made until the first call.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("upstream URL is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	c := &Client{
		base: strings.TrimRight(cfg.URL, "/"),
		opts: []rpc.ClientOption{
			rpc.WithHTTPClient(hc),
			rpc.WithHTTPAuth(basicAuth(cfg.User, cfg.Password)),
			rpc.WithHeader("User-Agent", version.UserAgent()),
		},
	}
	def, err := rpc.DialOptions(ctx, c.base, c.opts...)
	if err != nil {
		return nil, fmt.Errorf("dial upstream %s: %w", c.base, err)
	}
	c.def = def
	return c, nil
}

func basicAuth(user, password string) rpc.HTTPAuth {
	token := base64.StdEncoding.EncodeToString([]byte(user + ":" + password))
	return func(h http.Header) error {
		h.Set("Authorization", "Basic "+token)
		return nil
	}
}

// Endpoint resolves the URL a call with the given path override is sent to.
func (c *Client) Endpoint(path string) string {
	path = strings.TrimLeft(path, "/")
	if path == "" {
		return c.base
	}
	return c.base + "/" + path
}

// Call forwards one JSON-RPC call to Endpoint(path). A missing result is
// returned as a nil RawMessage. Errors are *RPCError, or wrap ErrTimeout or ErrTransport.
func (c *Client) Call(ctx context.Context, path, method string, params []any) (json.RawMessage, error) {
	client := c.def
	if endpoint := c.Endpoint(path); endpoint != c.base {
		ephemeral, err := rpc.DialOptions(ctx, endpoint, c.opts...)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransport, err)
		}
		defer ephemeral.Close()
		client = ephemeral
	}

	var result json.RawMessage
	err := client.CallContext(ctx, &result, method, params...)
	if err != nil {
		if errors.Is(err, rpc.ErrNoResult) {
			return nil, nil
		}
		return nil, classify(ctx, err)
	}
	return result, nil
}

// Close releases the base client.
func (c *Client) Close() {
	if c.def != nil {
		c.def.Close()
	}
}

func classify(ctx context.Context, err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return &RPCError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
	}
	// bitcoind answers legacy requests with HTTP 500 and the error in the body.
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		if e := errorFromBody(httpErr.Body); e != nil {
			return e
		}
		return fmt.Errorf("%w: %s", ErrTransport, httpErr.Status)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}

func errorFromBody(body []byte) *RPCError {
	var resp struct {
		Error *RPCError `json:"error"`
	}
	if len(body) == 0 || json.Unmarshal(body, &resp) != nil || resp.Error == nil {
		return nil
	}
	return resp.Error
}
