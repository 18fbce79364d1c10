package chain

import (
	"context"
	"math/big"
	"strings"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	clierr "github.com/kelreel/sonichash/internal/errors"
	"github.com/kelreel/sonichash/internal/registry"
)

var erc20ABI = mustParseABI(registry.ERC20MinimalABI)

// Reader performs read-only calls against an EVM JSON-RPC endpoint. The
// connection is dialed on first use and shared afterwards.
type Reader struct {
	rpcURL string

	mu     sync.Mutex
	client *ethclient.Client
}

func NewReader(rpcURL string) *Reader {
	return &Reader{rpcURL: strings.TrimSpace(rpcURL)}
}

func (r *Reader) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		r.client.Close()
		r.client = nil
	}
}

func (r *Reader) dial(ctx context.Context) (*ethclient.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		return r.client, nil
	}
	if r.rpcURL == "" {
		return nil, clierr.New(clierr.CodeUsage, "rpc url is not configured")
	}
	client, err := ethclient.DialContext(ctx, r.rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	r.client = client
	return client, nil
}

func (r *Reader) NativeBalance(ctx context.Context, owner string) (*big.Int, error) {
	if !common.IsHexAddress(owner) {
		return nil, clierr.New(clierr.CodeUsage, "invalid owner address")
	}
	client, err := r.dial(ctx)
	if err != nil {
		return nil, err
	}
	balance, err := client.BalanceAt(ctx, common.HexToAddress(owner), nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read native balance", err)
	}
	return balance, nil
}

func (r *Reader) TokenBalance(ctx context.Context, token, owner string) (*big.Int, error) {
	if !common.IsHexAddress(token) || !common.IsHexAddress(owner) {
		return nil, clierr.New(clierr.CodeUsage, "invalid token or owner address")
	}
	out, err := r.call(ctx, token, "balanceOf", common.HexToAddress(owner))
	if err != nil {
		return nil, err
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, "invalid balanceOf response type")
	}
	return balance, nil
}

// TokenMetadata reads symbol and decimals for tokens missing from the
// static registry.
func (r *Reader) TokenMetadata(ctx context.Context, token string) (registry.Token, error) {
	if !common.IsHexAddress(token) {
		return registry.Token{}, clierr.New(clierr.CodeUsage, "invalid token address")
	}
	decOut, err := r.call(ctx, token, "decimals")
	if err != nil {
		return registry.Token{}, err
	}
	decimals, ok := decOut[0].(uint8)
	if !ok {
		return registry.Token{}, clierr.New(clierr.CodeUnavailable, "invalid decimals response type")
	}
	symOut, err := r.call(ctx, token, "symbol")
	if err != nil {
		return registry.Token{}, err
	}
	symbol, _ := symOut[0].(string)
	return registry.Token{
		Address:  common.HexToAddress(token).Hex(),
		Symbol:   symbol,
		Name:     symbol,
		Decimals: int(decimals),
	}, nil
}

func (r *Reader) call(ctx context.Context, target, method string, args ...any) ([]any, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack "+method+" call", err)
	}
	client, err := r.dial(ctx)
	if err != nil {
		return nil, err
	}
	to := common.HexToAddress(target)
	raw, err := client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "call "+method, err)
	}
	out, err := erc20ABI.Unpack(method, raw)
	if err != nil || len(out) == 0 {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode "+method, err)
	}
	return out, nil
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
