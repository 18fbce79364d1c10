package prices

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kelreel/sonichash/internal/cache"
	"github.com/kelreel/sonichash/internal/registry"
)

const DefaultTTL = 5 * time.Minute

type Quote struct {
	Symbol    string    `json:"symbol"`
	USDPrice  float64   `json:"usd_price"`
	Timestamp time.Time `json:"timestamp"`
}

// Source returns USD prices keyed by provider id.
type Source interface {
	SimplePrice(ctx context.Context, ids []string) (map[string]float64, error)
}

// Oracle is the read side used by the portfolio reader, the context builder
// and action handlers.
type Oracle interface {
	Prices(ctx context.Context, symbols []string) map[string]Quote
}

type Client struct {
	source Source
	cache  *cache.Store
	ttl    time.Duration
	now    func() time.Time
	ids    func(symbol string) (string, bool)
	log    zerolog.Logger
}

func New(source Source, store *cache.Store, ttl time.Duration, logger zerolog.Logger) *Client {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Client{
		source: source,
		cache:  store,
		ttl:    ttl,
		now:    time.Now,
		ids:    registry.CoinGeckoID,
		log:    logger.With().Str("component", "prices").Logger(),
	}
}

// Prices resolves USD quotes for symbols. Cache hits are served directly and
// all misses share a single upstream call. Upstream failure is absorbed: the
// result then holds only cache-resident quotes.
func (c *Client) Prices(ctx context.Context, symbols []string) map[string]Quote {
	out := make(map[string]Quote, len(symbols))
	misses := make([]string, 0, len(symbols))
	for _, symbol := range uniqueSymbols(symbols) {
		if q, ok := cache.Lookup[Quote](c.cache, cache.PriceKey(symbol)); ok {
			out[symbol] = q
			continue
		}
		misses = append(misses, symbol)
	}
	if len(misses) == 0 {
		c.log.Debug().Int("symbols", len(out)).Msg("all prices served from cache")
		return out
	}

	symbolsByID := make(map[string][]string, len(misses))
	ids := make([]string, 0, len(misses))
	for _, symbol := range misses {
		id, ok := c.ids(symbol)
		if !ok {
			continue
		}
		if _, seen := symbolsByID[id]; !seen {
			ids = append(ids, id)
		}
		symbolsByID[id] = append(symbolsByID[id], symbol)
	}
	if len(ids) == 0 {
		return out
	}

	c.log.Debug().Strs("ids", ids).Msg("fetching prices upstream")
	quotes, err := c.source.SimplePrice(ctx, ids)
	if err != nil {
		c.log.Warn().Err(err).Strs("symbols", misses).Msg("price lookup failed; serving cached quotes only")
		return out
	}

	now := c.now().UTC()
	for _, id := range ids {
		for _, symbol := range symbolsByID[id] {
			usd, ok := quotes[id]
			if !ok {
				if !registry.HasFallbackPrice(symbol) {
					continue
				}
				usd = 1.0
			}
			q := Quote{Symbol: symbol, USDPrice: usd, Timestamp: now}
			c.cache.Set(cache.PriceKey(symbol), q, c.ttl)
			out[symbol] = q
		}
	}
	return out
}

func uniqueSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		v := strings.TrimSpace(s)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Sorted returns quotes ordered by the given symbol order, skipping symbols
// without a quote.
func Sorted(quotes map[string]Quote, order []string) []Quote {
	out := make([]Quote, 0, len(quotes))
	seen := make(map[string]struct{}, len(order))
	for _, symbol := range order {
		if q, ok := quotes[symbol]; ok {
			if _, dup := seen[symbol]; !dup {
				out = append(out, q)
				seen[symbol] = struct{}{}
			}
		}
	}
	rest := make([]Quote, 0)
	for symbol, q := range quotes {
		if _, ok := seen[symbol]; !ok {
			rest = append(rest, q)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].Symbol < rest[j].Symbol })
	return append(out, rest...)
}

// FormatForContext renders quotes as a single prompt line, for example
// "Current prices: S: $0.52, USDC: $1.00." It returns "" when there is
// nothing to show.
func FormatForContext(quotes map[string]Quote, order []string) string {
	sorted := Sorted(quotes, order)
	if len(sorted) == 0 {
		return ""
	}
	parts := make([]string, 0, len(sorted))
	for _, q := range sorted {
		parts = append(parts, fmt.Sprintf("%s: $%.2f", q.Symbol, q.USDPrice))
	}
	return "Current prices: " + strings.Join(parts, ", ") + "."
}
