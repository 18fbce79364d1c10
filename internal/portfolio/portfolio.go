package portfolio

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"

	"github.com/kelreel/sonichash/internal/cache"
	clierr "github.com/kelreel/sonichash/internal/errors"
	"github.com/kelreel/sonichash/internal/prices"
	"github.com/kelreel/sonichash/internal/registry"
	"github.com/kelreel/sonichash/internal/units"
)

const (
	DefaultTTL  = time.Minute
	topHoldings = 5
)

// BalanceSource reads raw balances in base units.
type BalanceSource interface {
	NativeBalance(ctx context.Context, owner string) (*big.Int, error)
	TokenBalance(ctx context.Context, token, owner string) (*big.Int, error)
}

type Balance struct {
	Token    registry.Token `json:"token"`
	Balance  string         `json:"balance"`
	USDPrice *float64       `json:"usd_price,omitempty"`
	USDValue *float64       `json:"usd_value,omitempty"`
}

type Holding struct {
	Symbol     string  `json:"symbol"`
	USDValue   float64 `json:"usd_value"`
	Percentage float64 `json:"percentage"`
}

type Snapshot struct {
	Address              string    `json:"address"`
	Balances             []Balance `json:"balances"`
	TotalUSDValue        float64   `json:"total_usd_value"`
	TopHoldings          []Holding `json:"top_holdings"`
	StablecoinUSDValue   float64   `json:"stablecoin_usd_value"`
	StablecoinPercentage float64   `json:"stablecoin_percentage"`
	FetchedAt            time.Time `json:"fetched_at"`
}

type Reader struct {
	source BalanceSource
	prices prices.Oracle
	cache  *cache.Store
	ttl    time.Duration
	native registry.Token
	tokens []registry.Token
	now    func() time.Time
	log    zerolog.Logger
}

func New(source BalanceSource, oracle prices.Oracle, store *cache.Store, ttl time.Duration, logger zerolog.Logger) *Reader {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Reader{
		source: source,
		prices: oracle,
		cache:  store,
		ttl:    ttl,
		native: registry.NativeToken(),
		tokens: registry.Tokens(),
		now:    time.Now,
		log:    logger.With().Str("component", "portfolio").Logger(),
	}
}

// Snapshot returns balances, USD valuation and analytics for a wallet.
// Snapshots are cached per lower-cased address. Balance reads run
// concurrently and the first failure cancels the rest and fails the call.
func (r *Reader) Snapshot(ctx context.Context, address string) (*Snapshot, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid wallet address %q", address))
	}
	key := cache.WalletKey(address)
	if snap, ok := cache.Lookup[*Snapshot](r.cache, key); ok {
		r.log.Debug().Str("address", address).Msg("wallet snapshot served from cache")
		return snap, nil
	}

	assets := make([]registry.Token, 0, len(r.tokens)+1)
	assets = append(assets, r.native)
	assets = append(assets, r.tokens...)
	raw, err := r.readBalances(ctx, address, assets)
	if err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(assets))
	for _, a := range assets {
		symbols = append(symbols, a.Symbol)
	}
	quotes := r.prices.Prices(ctx, symbols)

	balances := make([]Balance, 0, len(assets))
	for i, asset := range assets {
		balances = append(balances, valueBalance(asset, raw[i], quotes))
	}
	snap := Analyze(balances)
	snap.Address = common.HexToAddress(address).Hex()
	snap.FetchedAt = r.now().UTC()

	r.cache.Set(key, snap, r.ttl)
	return snap, nil
}

func (r *Reader) readBalances(ctx context.Context, owner string, assets []registry.Token) ([]*big.Int, error) {
	raw := make([]*big.Int, len(assets))
	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for i, asset := range assets {
		p.Go(func(ctx context.Context) error {
			var (
				bal *big.Int
				err error
			)
			if asset.IsNative() {
				bal, err = r.source.NativeBalance(ctx, owner)
			} else {
				bal, err = r.source.TokenBalance(ctx, asset.Address, owner)
			}
			if err != nil {
				return fmt.Errorf("%s balance: %w", asset.Symbol, err)
			}
			raw[i] = bal
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		r.log.Warn().Err(err).Str("address", owner).Msg("wallet balance fan-out failed")
		return nil, clierr.Wrap(clierr.CodeUnavailable, "read wallet balances", err)
	}
	return raw, nil
}

func valueBalance(token registry.Token, raw *big.Int, quotes map[string]prices.Quote) Balance {
	amount := units.ToDecimal(raw, token.Decimals)
	b := Balance{Token: token, Balance: amount.String()}
	if q, ok := quotes[token.Symbol]; ok {
		price := q.USDPrice
		value := amount.Mul(decimal.NewFromFloat(price)).InexactFloat64()
		b.USDPrice = &price
		b.USDValue = &value
	}
	return b
}

// Analyze derives totals, top holdings and the stablecoin share. Balances
// without a USD value count as zero; with a zero total every percentage is
// zero.
func Analyze(balances []Balance) *Snapshot {
	total := decimal.Zero
	stable := decimal.Zero
	for _, b := range balances {
		v := usdValue(b)
		total = total.Add(v)
		if registry.IsStablecoin(b.Token.Symbol) {
			stable = stable.Add(v)
		}
	}

	holdings := make([]Holding, 0, len(balances))
	for _, b := range balances {
		v := usdValue(b)
		if !v.IsPositive() {
			continue
		}
		holdings = append(holdings, Holding{
			Symbol:     b.Token.Symbol,
			USDValue:   v.InexactFloat64(),
			Percentage: percentage(v, total),
		})
	}
	sort.SliceStable(holdings, func(i, j int) bool {
		return holdings[i].USDValue > holdings[j].USDValue
	})
	if len(holdings) > topHoldings {
		holdings = holdings[:topHoldings]
	}

	return &Snapshot{
		Balances:             balances,
		TotalUSDValue:        total.InexactFloat64(),
		TopHoldings:          holdings,
		StablecoinUSDValue:   stable.InexactFloat64(),
		StablecoinPercentage: percentage(stable, total),
	}
}

func usdValue(b Balance) decimal.Decimal {
	if b.USDValue == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*b.USDValue)
}

func percentage(part, total decimal.Decimal) float64 {
	if total.IsZero() {
		return 0
	}
	return part.Div(total).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// FormatForContext renders a snapshot as prompt text.
func FormatForContext(s *Snapshot) string {
	if s == nil {
		return ""
	}
	balances := make([]string, 0, len(s.Balances))
	for _, b := range s.Balances {
		line := b.Token.Symbol + ": " + b.Balance
		if b.USDValue != nil && *b.USDValue > 0 {
			line += fmt.Sprintf(" ($%.2f)", *b.USDValue)
		}
		balances = append(balances, line)
	}
	holdings := make([]string, 0, len(s.TopHoldings))
	for _, h := range s.TopHoldings {
		holdings = append(holdings, fmt.Sprintf("%s: $%.2f (%.1f%%)", h.Symbol, h.USDValue, h.Percentage))
	}
	return fmt.Sprintf("Wallet balances: %s. Total portfolio value: $%.2f. Top holdings: %s. Stablecoins: $%.2f (%.1f%%).",
		strings.Join(balances, ", "),
		s.TotalUSDValue,
		strings.Join(holdings, ", "),
		s.StablecoinUSDValue,
		s.StablecoinPercentage,
	)
}
