package registry

import (
	"fmt"
	"strings"
)

const (
	SonicChainID      int64 = 146
	SonicBlazeChainID int64 = 57054
)

const (
	DefaultSonicRPCURL = "https://rpc.soniclabs.com"
	SonicBlazeRPCURL   = "https://rpc.blaze.soniclabs.com"
)

// Default RPC endpoints by chain ID, used whenever no rpc_url is configured.
var defaultRPCByChainID = map[int64]string{
	SonicChainID:      DefaultSonicRPCURL,
	SonicBlazeChainID: SonicBlazeRPCURL,
}

func DefaultRPCURL(chainID int64) (string, bool) {
	value, ok := defaultRPCByChainID[chainID]
	return value, ok
}

func ResolveRPCURL(override string, chainID int64) (string, error) {
	if strings.TrimSpace(override) != "" {
		return strings.TrimSpace(override), nil
	}
	if value, ok := DefaultRPCURL(chainID); ok {
		return value, nil
	}
	return "", fmt.Errorf("no default rpc configured for chain id %d; provide --rpc-url", chainID)
}
