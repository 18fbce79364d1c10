package actions

import (
	"github.com/xeipuuv/gojsonschema"
)

// Spec describes one registered action type to the detector.
type Spec struct {
	Type        Type     `json:"type"`
	Description string   `json:"description"`
	Examples    []string `json:"examples"`
	Schema      string   `json:"schema"`
}

var specs = []Spec{
	{
		Type:        TypePredictPrice,
		Description: "Predict the price of a cryptocurrency in a given timeframe. The ticker is the symbol of the cryptocurrency. Timeframe can be 5m or 8 hour only.",
		Examples: []string{
			`predict price of BTC in 5 minutes -> {"type": "PREDICT_PRICE", "params": {"ticker": "BTC", "timeframe": "5m"}}`,
			`ETH (Ethereum) price in 1 hour -> {"type": "PREDICT_PRICE", "params": {"ticker": "ETH", "timeframe": "1h"}}`,
			`the price of a Solana (SOL) in an 8 hours -> {"type": "PREDICT_PRICE", "params": {"ticker": "SOL", "timeframe": "8h"}}`,
		},
		Schema: `{
			"type": "object",
			"required": ["ticker", "timeframe"],
			"properties": {
				"ticker": {"type": "string", "minLength": 1},
				"timeframe": {"type": "string", "minLength": 1}
			}
		}`,
	},
	{
		Type:        TypeGetPrice,
		Description: "Get the current USD price of one or more tokens on Sonic. Symbols are token tickers such as S, wS, WETH, USDC, USDT or EURC.",
		Examples: []string{
			`what is the price of S right now? -> {"type": "GET_PRICE", "params": {"symbols": ["S"]}}`,
			`how much are WETH and USDC trading for -> {"type": "GET_PRICE", "params": {"symbols": ["WETH", "USDC"]}}`,
		},
		Schema: `{
			"type": "object",
			"properties": {
				"symbols": {"type": "array", "items": {"type": "string", "minLength": 1}}
			}
		}`,
	},
	{
		Type:        TypeGetBalance,
		Description: "Show the token balances of a wallet. The address is optional; leave it empty to use the user's own wallet.",
		Examples: []string{
			`what's in my wallet? -> {"type": "GET_BALANCE", "params": {}}`,
			`show balances of 0x50c42dEAcD8Fc9773493ED674b675bE577f2634b -> {"type": "GET_BALANCE", "params": {"address": "0x50c42dEAcD8Fc9773493ED674b675bE577f2634b"}}`,
		},
		Schema: `{
			"type": "object",
			"properties": {
				"address": {"type": "string"}
			}
		}`,
	},
	{
		Type:        TypeSendTokens,
		Description: "Send tokens from the user's wallet to another address. Amount is in whole token units.",
		Examples: []string{
			`send 5 USDC to 0x50c42dEAcD8Fc9773493ED674b675bE577f2634b -> {"type": "SEND_TOKENS", "params": {"token": "USDC", "amount": "5", "to": "0x50c42dEAcD8Fc9773493ED674b675bE577f2634b"}}`,
		},
		Schema: `{
			"type": "object",
			"required": ["token", "amount", "to"],
			"properties": {
				"token": {"type": "string", "minLength": 1},
				"amount": {"type": "string", "pattern": "^[0-9]+(\\.[0-9]+)?$"},
				"to": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"}
			}
		}`,
	},
	{
		Type:        TypeSwapTokens,
		Description: "Swap one token for another on Sonic. Amount is in whole units of the input token. Slippage is optional, in basis points.",
		Examples: []string{
			`swap 10 S to USDC -> {"type": "SWAP_TOKENS", "params": {"token_in": "S", "token_out": "USDC", "amount": "10"}}`,
			`trade 100 USDC for WETH with 1% slippage -> {"type": "SWAP_TOKENS", "params": {"token_in": "USDC", "token_out": "WETH", "amount": "100", "slippage_bps": 100}}`,
		},
		Schema: `{
			"type": "object",
			"required": ["token_in", "token_out", "amount"],
			"properties": {
				"token_in": {"type": "string", "minLength": 1},
				"token_out": {"type": "string", "minLength": 1},
				"amount": {"type": "string", "pattern": "^[0-9]+(\\.[0-9]+)?$"},
				"slippage_bps": {"type": "integer", "minimum": 0, "maximum": 5000}
			}
		}`,
	},
}

var schemas = compileSchemas(specs)

func compileSchemas(list []Spec) map[Type]*gojsonschema.Schema {
	out := make(map[Type]*gojsonschema.Schema, len(list))
	for _, s := range list {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s.Schema))
		if err != nil {
			panic("action " + string(s.Type) + " schema: " + err.Error())
		}
		out[s.Type] = schema
	}
	return out
}

// Specs returns the registered action types in prompt order.
func Specs() []Spec {
	out := make([]Spec, len(specs))
	copy(out, specs)
	return out
}

// Lookup returns the registered spec for t.
func Lookup(t Type) (Spec, bool) {
	for _, s := range specs {
		if s.Type == t {
			return s, true
		}
	}
	return Spec{}, false
}
