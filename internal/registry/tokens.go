package registry

import (
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NativeAddress marks the chain's native asset in token tables.
const NativeAddress = "native"

const (
	NativeSymbol  = "S"
	WrappedNative = "wS"
)

type Token struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
}

func (t Token) IsNative() bool {
	return t.Address == NativeAddress
}

var sonicNative = Token{Address: NativeAddress, Symbol: NativeSymbol, Name: "Sonic", Decimals: 18}

// ERC-20 tokens read for every Sonic wallet snapshot, in display order.
var sonicTokens = []Token{
	{Address: "0x039e2fB66102314Ce7b64Ce5Ce3E5183bc94aD38", Symbol: WrappedNative, Name: "Wrapped Sonic", Decimals: 18},
	{Address: "0x50c42dEAcD8Fc9773493ED674b675bE577f2634b", Symbol: "WETH", Name: "Wrapped Ether", Decimals: 18},
	{Address: "0x29219dd400f2Bf60E5a23d13Be72B486D4038894", Symbol: "USDC", Name: "USD Coin", Decimals: 6},
	{Address: "0xe715cba7b5ccb33790cebff1436809d36cb17e57", Symbol: "EURC", Name: "Euro Coin", Decimals: 6},
	{Address: "0x6047828dc181963ba44974801ff68e538da5eaf9", Symbol: "USDT", Name: "Tether USD", Decimals: 6},
}

// CoinGecko ids by token symbol. Symbols missing here are never sent upstream.
var coinGeckoIDs = map[string]string{
	NativeSymbol:  "sonic-3",
	WrappedNative: "sonic-3",
	"WETH":        "weth",
	"USDC":        "usd-coin",
	"EURC":        "euro-coin",
	"USDT":        "tether",
}

var stablecoins = map[string]struct{}{
	"USDC": {},
	"USDT": {},
	"EURC": {},
}

// MarketSymbols are the symbols quoted in chat context price summaries.
var MarketSymbols = []string{NativeSymbol, "WETH", "USDC", "USDT", "EURC"}

func NativeToken() Token {
	return sonicNative
}

// Tokens returns a copy of the ERC-20 token table.
func Tokens() []Token {
	out := make([]Token, len(sonicTokens))
	copy(out, sonicTokens)
	return out
}

// ResolveToken finds a token by symbol (case-insensitive) or address,
// including the native asset.
func ResolveToken(input string) (Token, bool) {
	v := strings.TrimSpace(input)
	if v == "" {
		return Token{}, false
	}
	if strings.EqualFold(v, NativeSymbol) || strings.EqualFold(v, NativeAddress) {
		return sonicNative, true
	}
	for _, t := range sonicTokens {
		if strings.EqualFold(t.Symbol, v) || strings.EqualFold(t.Address, v) {
			return t, true
		}
	}
	return Token{}, false
}

func CoinGeckoID(symbol string) (string, bool) {
	id, ok := coinGeckoIDs[symbol]
	return id, ok
}

func IsStablecoin(symbol string) bool {
	_, ok := stablecoins[strings.ToUpper(symbol)]
	return ok
}

// HasFallbackPrice reports whether a missing quote may default to 1.0 USD.
func HasFallbackPrice(symbol string) bool {
	return symbol == NativeSymbol || symbol == WrappedNative
}

var addressPattern = regexp.MustCompile(`0x[a-fA-F0-9]{40}`)

// FindAddress returns the first EVM address embedded in free text.
func FindAddress(text string) (string, bool) {
	match := addressPattern.FindString(text)
	if match == "" {
		return "", false
	}
	return common.HexToAddress(match).Hex(), true
}

func IsAddress(value string) bool {
	return common.IsHexAddress(strings.TrimSpace(value))
}
