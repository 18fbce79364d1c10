package chain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/kelreel/sonichash/internal/errors"
)

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type callArg struct {
	To    string `json:"to"`
	Input string `json:"input"`
	Data  string `json:"data"`
}

const (
	owner = "0x1111111111111111111111111111111111111111"
	token = "0x29219dd400f2Bf60E5a23d13Be72B486D4038894"
)

func newMockRPCServer(t *testing.T) *httptest.Server {
	t.Helper()
	handler := func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		switch req.Method {
		case "eth_getBalance":
			writeRPCResult(w, req.ID, "0x8ac7230489e80000")
		case "eth_call":
			var arg callArg
			if err := json.Unmarshal(req.Params[0], &arg); err != nil {
				writeRPCError(w, req.ID, -32602, err.Error())
				return
			}
			input := arg.Input
			if input == "" {
				input = arg.Data
			}
			selector := strings.TrimPrefix(input, "0x")[:8]
			var out []byte
			var err error
			switch selector {
			case hex.EncodeToString(erc20ABI.Methods["balanceOf"].ID):
				out, err = erc20ABI.Methods["balanceOf"].Outputs.Pack(big.NewInt(5_000_000))
			case hex.EncodeToString(erc20ABI.Methods["decimals"].ID):
				out, err = erc20ABI.Methods["decimals"].Outputs.Pack(uint8(6))
			case hex.EncodeToString(erc20ABI.Methods["symbol"].ID):
				out, err = erc20ABI.Methods["symbol"].Outputs.Pack("USDC")
			default:
				writeRPCError(w, req.ID, -32000, "execution reverted")
				return
			}
			if err != nil {
				t.Fatalf("pack output: %v", err)
			}
			writeRPCResult(w, req.ID, "0x"+hex.EncodeToString(out))
		default:
			writeRPCError(w, req.ID, -32601, fmt.Sprintf("method not supported in test: %s", req.Method))
		}
	}
	return httptest.NewServer(http.HandlerFunc(handler))
}

func writeRPCResult(w http.ResponseWriter, id json.RawMessage, result any) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%q}`, rawIDOrDefault(id), result)
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":%d,"message":%q}}`, rawIDOrDefault(id), code, message)
}

func rawIDOrDefault(id json.RawMessage) string {
	if len(id) == 0 {
		return "1"
	}
	return string(id)
}

func TestNativeBalance(t *testing.T) {
	server := newMockRPCServer(t)
	defer server.Close()

	r := NewReader(server.URL)
	defer r.Close()
	got, err := r.NativeBalance(context.Background(), owner)
	if err != nil {
		t.Fatalf("NativeBalance failed: %v", err)
	}
	want, _ := new(big.Int).SetString("10000000000000000000", 10)
	if got.Cmp(want) != 0 {
		t.Fatalf("unexpected balance: %s", got)
	}
}

func TestTokenBalanceAndMetadata(t *testing.T) {
	server := newMockRPCServer(t)
	defer server.Close()

	r := NewReader(server.URL)
	defer r.Close()
	bal, err := r.TokenBalance(context.Background(), token, owner)
	if err != nil {
		t.Fatalf("TokenBalance failed: %v", err)
	}
	if bal.Int64() != 5_000_000 {
		t.Fatalf("unexpected token balance: %s", bal)
	}

	meta, err := r.TokenMetadata(context.Background(), token)
	if err != nil {
		t.Fatalf("TokenMetadata failed: %v", err)
	}
	if meta.Symbol != "USDC" || meta.Decimals != 6 || meta.Address != common.HexToAddress(token).Hex() {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

func TestRejectsInvalidAddressBeforeRPC(t *testing.T) {
	r := NewReader("http://127.0.0.1:1")
	_, err := r.NativeBalance(context.Background(), "0xnope")
	if clierr.CodeOf(err) != clierr.CodeUsage {
		t.Fatalf("expected usage error, got %v", err)
	}
	_, err = r.TokenBalance(context.Background(), "bad", owner)
	if clierr.CodeOf(err) != clierr.CodeUsage {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestMissingRPCURL(t *testing.T) {
	_, err := NewReader(" ").NativeBalance(context.Background(), owner)
	if clierr.CodeOf(err) != clierr.CodeUsage {
		t.Fatalf("expected usage error for missing rpc url, got %v", err)
	}
}
