package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// fakeNode mimics the bits of bitcoind's RPC server the client depends on.
func fakeNode(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "alice" || pass != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req fakeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		reply := func(status int, body string) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			fmt.Fprint(w, body)
		}
		switch req.Method {
		case "getblockcount":
			reply(200, fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"result":840000}`, req.ID))
		case "echo":
			reply(200, fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"result":%s}`, req.ID, req.Params))
		case "whereami":
			reply(200, fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"result":%q}`, req.ID, r.URL.Path))
		case "useragent":
			reply(200, fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"result":%q}`, req.ID, r.UserAgent()))
		case "getnull":
			reply(200, fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"result":null}`, req.ID))
		case "fail":
			reply(200, fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"error":{"code":-8,"message":"Invalid parameter"}}`, req.ID))
		case "legacy":
			reply(500, fmt.Sprintf(`{"result":null,"error":{"code":-18,"message":"Requested wallet does not exist or is not loaded"},"id":%s}`, req.ID))
		case "broken":
			reply(502, "bad gateway")
		case "slow":
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		default:
			reply(200, fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"error":{"code":-32601,"message":"Method not found"}}`, req.ID))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := New(context.Background(), Config{URL: url, User: "alice", Password: "hunter2"})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestEndpoint(t *testing.T) {
	c := &Client{base: "http://localhost:18332"}
	tests := []struct {
		path string
		want string
	}{
		{"", "http://localhost:18332"},
		{"/", "http://localhost:18332"},
		{"wallet/alice", "http://localhost:18332/wallet/alice"},
		{"/wallet/bob", "http://localhost:18332/wallet/bob"},
	}
	for _, tt := range tests {
		if got := c.Endpoint(tt.path); got != tt.want {
			t.Errorf("Endpoint(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}

func TestCall_Success(t *testing.T) {
	c := newTestClient(t, fakeNode(t).URL)

	got, err := c.Call(context.Background(), "", "getblockcount", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `840000`, string(got))
}

func TestCall_ParamsForwardedExactly(t *testing.T) {
	c := newTestClient(t, fakeNode(t).URL)

	params := []any{json.Number("0.00012345"), map[string]any{"rescan": false}, "x"}
	got, err := c.Call(context.Background(), "", "echo", params)
	require.NoError(t, err)
	assert.Equal(t, `[0.00012345,{"rescan":false},"x"]`, string(got))
}

func TestCall_NullResult(t *testing.T) {
	c := newTestClient(t, fakeNode(t).URL)

	got, err := c.Call(context.Background(), "", "getnull", nil)
	require.NoError(t, err)
	assert.Equal(t, "null", strings.TrimSpace(string(got)))
}

func TestCall_UserAgent(t *testing.T) {
	c := newTestClient(t, fakeNode(t).URL)

	got, err := c.Call(context.Background(), "", "useragent", nil)
	require.NoError(t, err)
	var ua string
	require.NoError(t, json.Unmarshal(got, &ua))
	assert.True(t, strings.HasPrefix(ua, "coreguard/"), "User-Agent = %q", ua)
}

func TestCall_RPCErrors(t *testing.T) {
	c := newTestClient(t, fakeNode(t).URL)

	tests := []struct {
		method string
		code   int
		msg    string
	}{
		{"fail", -8, "Invalid parameter"},
		{"legacy", -18, "Requested wallet does not exist or is not loaded"},
		{"nosuchmethod", -32601, "Method not found"},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			_, err := c.Call(context.Background(), "", tt.method, nil)
			var rpcErr *RPCError
			require.ErrorAs(t, err, &rpcErr)
			assert.Equal(t, tt.code, rpcErr.Code)
			assert.Equal(t, tt.msg, rpcErr.Message)
		})
	}
}

func TestCall_TransportErrors(t *testing.T) {
	srv := fakeNode(t)

	t.Run("non-json error body", func(t *testing.T) {
		c := newTestClient(t, srv.URL)
		_, err := c.Call(context.Background(), "", "broken", nil)
		assert.ErrorIs(t, err, ErrTransport)
	})

	t.Run("bad credentials", func(t *testing.T) {
		c, err := New(context.Background(), Config{URL: srv.URL, User: "alice", Password: "wrong"})
		require.NoError(t, err)
		defer c.Close()
		_, err = c.Call(context.Background(), "", "getblockcount", nil)
		assert.ErrorIs(t, err, ErrTransport)
	})

	t.Run("connection refused", func(t *testing.T) {
		dead := httptest.NewServer(http.NotFoundHandler())
		url := dead.URL
		dead.Close()
		c := newTestClient(t, url)
		_, err := c.Call(context.Background(), "", "getblockcount", nil)
		assert.ErrorIs(t, err, ErrTransport)
		assert.False(t, errors.Is(err, ErrTimeout))
	})
}

func TestCall_Timeout(t *testing.T) {
	c := newTestClient(t, fakeNode(t).URL)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Call(ctx, "", "slow", nil)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCall_PathOverride(t *testing.T) {
	c := newTestClient(t, fakeNode(t).URL)

	got, err := c.Call(context.Background(), "wallet/alice", "whereami", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `"/wallet/alice"`, string(got))

	got, err = c.Call(context.Background(), "", "whereami", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `"/"`, string(got))
}

func TestCall_ConcurrentPathsDoNotInterfere(t *testing.T) {
	c := newTestClient(t, fakeNode(t).URL)

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := ""
			want := "/"
			if i%2 == 0 {
				path = fmt.Sprintf("wallet/w%d", i)
				want = "/" + path
			}
			got, err := c.Call(context.Background(), path, "whereami", nil)
			if err != nil {
				errs <- err
				return
			}
			var where string
			if err := json.Unmarshal(got, &where); err != nil {
				errs <- err
				return
			}
			if where != want {
				errs <- fmt.Errorf("call %d reached %q, want %q", i, where, want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
