// mock_bitcoind answers a handful of Bitcoin Core RPC methods and appends every
// request it receives to a JSONL file so tests can see what reached the node.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
)

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type recorded struct {
	Path   string          `json:"path"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

func main() {
	addr := flag.String("addr", "127.0.0.1:0", "listen address")
	user := flag.String("user", "rpcuser", "RPC user")
	pass := flag.String("password", "rpcpass", "RPC password")
	record := flag.String("record", "", "append received calls to this file")
	flag.Parse()

	var mu sync.Mutex
	var recFile *os.File
	if *record != "" {
		f, err := os.OpenFile(*record, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer f.Close()
		recFile = f
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != *user || p != *pass {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if recFile != nil {
			line, _ := json.Marshal(recorded{Path: r.URL.Path, Method: req.Method, Params: req.Params})
			mu.Lock()
			_, _ = recFile.Write(append(line, '\n'))
			mu.Unlock()
		}

		w.Header().Set("Content-Type", "application/json")
		id := string(req.ID)
		if id == "" {
			id = "null"
		}
		switch req.Method {
		case "getblockcount":
			fmt.Fprintf(w, `{"result":840000,"error":null,"id":%s}`, id)
		case "getwalletinfo":
			wallet := strings.TrimPrefix(r.URL.Path, "/wallet/")
			if wallet == r.URL.Path || wallet == "" {
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprintf(w, `{"result":null,"error":{"code":-19,"message":"Wallet file not specified (must request wallet RPC through /wallet/<filename> uri-path)."},"id":%s}`, id)
				return
			}
			fmt.Fprintf(w, `{"result":{"walletname":%q,"txcount":3},"error":null,"id":%s}`, wallet, id)
		case "importmulti", "lockunspent":
			params := req.Params
			if len(params) == 0 {
				params = json.RawMessage("[]")
			}
			fmt.Fprintf(w, `{"result":%s,"error":null,"id":%s}`, params, id)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, `{"result":null,"error":{"code":-32601,"message":"Method not found"},"id":%s}`, id)
		}
	})

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("READY %s\n", ln.Addr())
	_ = http.Serve(ln, handler)
}
