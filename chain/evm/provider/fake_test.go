package provider

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeRPCServer is a JSON-RPC server answering each method from a fixed table. Unknown methods
// get a JSON-RPC error. Every received method is recorded in order.
type fakeRPCServer struct {
	*httptest.Server

	mu    sync.Mutex
	calls []string
}

// newFakeRPCServer starts a fakeRPCServer. results maps a method to its raw JSON result, errs
// maps a method to a JSON-RPC error message. The server is closed when the test ends.
func newFakeRPCServer(t *testing.T, results map[string]string, errs map[string]string) *fakeRPCServer {
	t.Helper()

	f := &fakeRPCServer{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		f.calls = append(f.calls, req.Method)
		f.mu.Unlock()

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		switch {
		case errs[req.Method] != "":
			resp["error"] = map[string]any{"code": -32000, "message": errs[req.Method]}
		case results[req.Method] != "":
			resp["result"] = json.RawMessage(results[req.Method])
		default:
			resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))

	t.Cleanup(f.Close)

	return f
}

// Calls returns the methods received so far.
func (f *fakeRPCServer) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.calls...)
}

// chainResults returns the results a healthy node of chain chainIDHex answers with.
func chainResults(chainIDHex string) map[string]string {
	return map[string]string{
		"eth_chainId":     `"` + chainIDHex + `"`,
		"eth_blockNumber": `"0x10"`,
	}
}

// forkResults returns the results of a healthy anvil node forking chain chainIDHex.
func forkResults(chainIDHex string) map[string]string {
	results := chainResults(chainIDHex)
	results["anvil_impersonateAccount"] = "null"
	results["anvil_stopImpersonatingAccount"] = "null"

	return results
}
