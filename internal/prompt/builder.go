package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kelreel/sonichash/internal/llm"
	"github.com/kelreel/sonichash/internal/persona"
	"github.com/kelreel/sonichash/internal/portfolio"
	"github.com/kelreel/sonichash/internal/prices"
	"github.com/kelreel/sonichash/internal/registry"
)

const excerptLines = 3

var tradeKeywords = []string{
	"buy", "sell", "trade", "price", "pricing", "dollars",
	"position", "portfolio", "portfolios", "leverage", "margin",
	"margin used", "unrealized", "pnl", "liquidation", "entry price",
	"size", "usd value", "max leverage", "funding", "short", "long",
	"btc", "eth", "цена", "asset", "$",
}

var walletKeywords = []string{
	"balance", "balances", "wallet", "holdings", "tokens",
	"portfolio", "assets", "funds", "deposit", "withdraw",
}

func HasTradeKeywords(text string) bool  { return containsAny(text, tradeKeywords) }
func HasWalletKeywords(text string) bool { return containsAny(text, walletKeywords) }

func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

type WalletReader interface {
	Snapshot(ctx context.Context, address string) (*portfolio.Snapshot, error)
}

// Input is everything one system prompt is assembled from.
type Input struct {
	Persona      *persona.Persona
	Caller       *persona.Caller
	Message      string
	ActionResult string
	History      []llm.Message
}

// Builder assembles the system prompt for a chat turn.
type Builder struct {
	wallets WalletReader
	prices  prices.Oracle
	sampler Sampler
	log     zerolog.Logger
}

// NewBuilder wires the data sources. A nil sampler shuffles randomly; nil
// data sources leave their segments out.
func NewBuilder(wallets WalletReader, oracle prices.Oracle, sampler Sampler, logger zerolog.Logger) *Builder {
	if sampler == nil {
		sampler = RandomSampler{}
	}
	return &Builder{
		wallets: wallets,
		prices:  oracle,
		sampler: sampler,
		log:     logger.With().Str("component", "prompt").Logger(),
	}
}

// Build returns the non-empty segments joined by blank lines. Data source
// failures drop their segment.
func (b *Builder) Build(ctx context.Context, in Input) string {
	p := in.Persona
	if p == nil {
		p = &persona.Persona{}
	}
	segments := []string{
		fmt.Sprintf("You are %s. You were created by SonicHash user.", p.Name),
		fmt.Sprintf("Roleplay and generate interesting dialogue on behalf of %s.", p.Name),
		"Never use emojis or hashtags or cringe stuff like that. Never act like an assistant.",
		b.excerpts(p),
		p.SystemPrompt,
		p.Knowledge,
		p.Style,
		callerLine(in.Caller),
		b.walletSegment(ctx, in),
		b.priceSegment(ctx, in),
		in.ActionResult,
		renderHistory(in.History),
	}
	out := segments[:0]
	for _, s := range segments {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "\n\n")
}

func (b *Builder) excerpts(p *persona.Persona) string {
	var parts []string
	if lore := b.sampler.Sample(p.Lore, excerptLines); len(lore) > 0 {
		parts = append(parts, "Lore: "+strings.Join(lore, ". ")+".")
	}
	if bio := b.sampler.Sample(p.Bio, excerptLines); len(bio) > 0 {
		parts = append(parts, "Biography: "+strings.Join(bio, ". ")+".")
	}
	return strings.Join(parts, " ")
}

func callerLine(c *persona.Caller) string {
	if !c.HasWallet() {
		return ""
	}
	return "User wallet address: " + c.WalletAddress
}

func (b *Builder) walletSegment(ctx context.Context, in Input) string {
	if b.wallets == nil || !in.Caller.HasWallet() {
		return ""
	}
	if !HasWalletKeywords(in.Message) && (in.Persona == nil || !in.Persona.ProvidePortfolioData) {
		return ""
	}
	snap, err := b.wallets.Snapshot(ctx, in.Caller.WalletAddress)
	if err != nil {
		b.log.Warn().Err(err).Str("address", in.Caller.WalletAddress).Msg("omitting wallet context")
		return ""
	}
	return portfolio.FormatForContext(snap)
}

func (b *Builder) priceSegment(ctx context.Context, in Input) string {
	if b.prices == nil {
		return ""
	}
	if !HasTradeKeywords(in.Message) && (in.Persona == nil || !in.Persona.ProvidePriceData) {
		return ""
	}
	quotes := b.prices.Prices(ctx, registry.MarketSymbols)
	if len(quotes) == 0 {
		b.log.Warn().Msg("omitting price context")
	}
	return prices.FormatForContext(quotes, registry.MarketSymbols)
}

func renderHistory(history []llm.Message) string {
	lines := make([]string, 0, len(history))
	for _, m := range history {
		lines = append(lines, string(m.Role)+": "+m.Content.PlainText())
	}
	return strings.Join(lines, "\n")
}
