package api

import (
	"net/http"
	"strconv"
	"strings"

	clierr "github.com/kelreel/sonichash/internal/errors"
	"github.com/kelreel/sonichash/internal/persona"
	"github.com/kelreel/sonichash/internal/registry"
)

// Authenticator resolves the caller of a request. A nil caller with a nil
// error is an anonymous request.
type Authenticator interface {
	Authenticate(r *http.Request) (*persona.Caller, error)
}

type Anonymous struct{}

func (Anonymous) Authenticate(*http.Request) (*persona.Caller, error) { return nil, nil }

const (
	HeaderUserID        = "X-User-Id"
	HeaderWalletAddress = "X-Wallet-Address"
	HeaderChainID       = "X-Chain-Id"
)

// TrustedHeaders reads the caller from headers set by an authenticating
// reverse proxy. It must not be exposed directly to clients.
type TrustedHeaders struct{}

func (TrustedHeaders) Authenticate(r *http.Request) (*persona.Caller, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if id == "" {
		return nil, nil
	}
	caller := &persona.Caller{ID: id, ChainID: registry.SonicChainID}
	if wallet := strings.TrimSpace(r.Header.Get(HeaderWalletAddress)); wallet != "" {
		if !registry.IsAddress(wallet) {
			return nil, clierr.New(clierr.CodeAuth, "invalid wallet address header")
		}
		caller.WalletAddress = wallet
	}
	if raw := strings.TrimSpace(r.Header.Get(HeaderChainID)); raw != "" {
		chainID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || chainID <= 0 {
			return nil, clierr.New(clierr.CodeAuth, "invalid chain id header")
		}
		caller.ChainID = chainID
	}
	return caller, nil
}
