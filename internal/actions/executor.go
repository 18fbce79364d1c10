package actions

import (
	"context"
	"fmt"
	"math/big"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kelreel/sonichash/internal/cache"
	clierr "github.com/kelreel/sonichash/internal/errors"
	"github.com/kelreel/sonichash/internal/execution"
	"github.com/kelreel/sonichash/internal/execution/planner"
	"github.com/kelreel/sonichash/internal/persona"
	"github.com/kelreel/sonichash/internal/portfolio"
	"github.com/kelreel/sonichash/internal/prices"
	"github.com/kelreel/sonichash/internal/providers/allora"
	"github.com/kelreel/sonichash/internal/registry"
	"github.com/kelreel/sonichash/internal/units"
)

const DefaultPredictionTTL = time.Minute

var (
	predictionTickers    = []string{"btc", "eth", "sol"}
	predictionTimeframes = []string{"5m", "8h"}
)

type Predictor interface {
	Predict(ctx context.Context, ticker, timeframe string) (allora.Prediction, error)
}

type WalletReader interface {
	Snapshot(ctx context.Context, address string) (*portfolio.Snapshot, error)
}

// TokenResolver reads ERC-20 metadata for tokens missing from the registry.
type TokenResolver interface {
	TokenMetadata(ctx context.Context, token string) (registry.Token, error)
}

type PlanRecorder interface {
	Save(ctx context.Context, plan execution.Plan) error
}

// Dependencies are the collaborators handlers may call. Plans and Tokens are
// optional.
type Dependencies struct {
	Predictor Predictor
	Prices    prices.Oracle
	Portfolio WalletReader
	Tokens    TokenResolver
	Plans     PlanRecorder
	Cache     *cache.Store
}

type ExecutorConfig struct {
	ChainID    int64
	SwapRouter string
	// SlippageBps applies when the user names none. Nil leaves the
	// planner default.
	SlippageBps   *int64
	PredictionTTL time.Duration
}

// Executor prepares action results. It never signs or submits transactions.
type Executor struct {
	deps Dependencies
	cfg  ExecutorConfig
	log  zerolog.Logger
}

func NewExecutor(deps Dependencies, cfg ExecutorConfig, logger zerolog.Logger) *Executor {
	if cfg.PredictionTTL <= 0 {
		cfg.PredictionTTL = DefaultPredictionTTL
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = registry.SonicChainID
	}
	if deps.Cache == nil {
		deps.Cache = cache.New()
	}
	return &Executor{deps: deps, cfg: cfg, log: logger.With().Str("component", "executor").Logger()}
}

// Execute dispatches action to its handler. Failures come back as a result
// with Success false.
func (e *Executor) Execute(ctx context.Context, action Action, p *persona.Persona, caller *persona.Caller) Result {
	logger := e.log.With().Str("type", string(action.Type)).Logger()
	if p != nil {
		logger = logger.With().Str("persona", p.ID).Logger()
	}
	var res Result
	switch params := action.Params.(type) {
	case PredictPriceParams:
		res = e.predictPrice(ctx, params)
	case GetPriceParams:
		res = e.getPrice(ctx, params)
	case GetBalanceParams:
		res = e.getBalance(ctx, params, caller)
	case SendTokensParams:
		res = e.sendTokens(ctx, params, caller)
	case SwapTokensParams:
		res = e.swapTokens(ctx, params, caller)
	default:
		res = failure(action.Type, fmt.Sprintf("Unsupported action type: %s", action.Type))
	}
	if res.Success {
		logger.Debug().Msg("action executed")
	} else {
		logger.Warn().Str("error", res.Error).Msg("action failed")
	}
	return res
}

type PredictionPayload struct {
	Ticker    string `json:"ticker"`
	Timeframe string `json:"timeframe"`
	Value     string `json:"value"`
	Cached    bool   `json:"cached"`
}

func (e *Executor) predictPrice(ctx context.Context, p PredictPriceParams) Result {
	ticker := strings.ToLower(strings.TrimSpace(p.Ticker))
	timeframe := strings.ToLower(strings.TrimSpace(p.Timeframe))
	if !slices.Contains(predictionTickers, ticker) {
		return failure(TypePredictPrice, fmt.Sprintf("Price prediction is not available for **%s**.\nOnly BTC, ETH and SOL are supported.", p.Ticker))
	}
	if !slices.Contains(predictionTimeframes, timeframe) {
		return failure(TypePredictPrice, fmt.Sprintf("Price prediction timeframe **%s** is not supported.\nOnly 5 minutes and 8 hours are supported.", p.Timeframe))
	}

	key := cache.PredictionKey(ticker, timeframe)
	if value, ok := cache.Lookup[string](e.deps.Cache, key); ok {
		return predictionResult(p, value, true)
	}
	if e.deps.Predictor == nil {
		return failure(TypePredictPrice, fmt.Sprintf("Error predicting price for **%s** in %s", p.Ticker, p.Timeframe))
	}
	prediction, err := e.deps.Predictor.Predict(ctx, ticker, timeframe)
	if err != nil {
		e.log.Warn().Err(err).Str("ticker", ticker).Str("timeframe", timeframe).Msg("prediction lookup failed")
		return failure(TypePredictPrice, fmt.Sprintf("Error predicting price for **%s** in %s", p.Ticker, p.Timeframe))
	}
	e.deps.Cache.Set(key, prediction.Value, e.cfg.PredictionTTL)
	return predictionResult(p, prediction.Value, false)
}

func predictionResult(p PredictPriceParams, value string, cached bool) Result {
	msg := fmt.Sprintf("Price prediction for **%s** (%s):\n`%s`", p.Ticker, p.Timeframe, value)
	if cached {
		msg += " (cached)"
	}
	return Result{
		Type:    TypePredictPrice,
		Success: true,
		Message: msg,
		Payload: PredictionPayload{Ticker: p.Ticker, Timeframe: p.Timeframe, Value: value, Cached: cached},
	}
}

func (e *Executor) getPrice(ctx context.Context, p GetPriceParams) Result {
	symbols := make([]string, 0, len(p.Symbols))
	for _, raw := range p.Symbols {
		if tok, ok := registry.ResolveToken(raw); ok {
			symbols = append(symbols, tok.Symbol)
		} else if s := strings.ToUpper(strings.TrimSpace(raw)); s != "" {
			symbols = append(symbols, s)
		}
	}
	if len(symbols) == 0 {
		symbols = registry.MarketSymbols
	}
	if e.deps.Prices == nil {
		return failure(TypeGetPrice, "Prices are not available right now.")
	}
	quotes := e.deps.Prices.Prices(ctx, symbols)
	if len(quotes) == 0 {
		return failure(TypeGetPrice, fmt.Sprintf("No USD price is available for %s.", strings.Join(symbols, ", ")))
	}
	return Result{
		Type:    TypeGetPrice,
		Success: true,
		Message: prices.FormatForContext(quotes, symbols),
		Payload: prices.Sorted(quotes, symbols),
	}
}

func (e *Executor) getBalance(ctx context.Context, p GetBalanceParams, caller *persona.Caller) Result {
	address := strings.TrimSpace(p.Address)
	if address == "" && caller.HasWallet() {
		address = caller.WalletAddress
	}
	if address == "" {
		return failure(TypeGetBalance, "A wallet address is required to read balances. Connect a wallet or mention an address.")
	}
	if !registry.IsAddress(address) {
		return failure(TypeGetBalance, fmt.Sprintf("**%s** is not a valid wallet address.", address))
	}
	if e.deps.Portfolio == nil {
		return failure(TypeGetBalance, "Wallet balances are not available right now.")
	}
	snap, err := e.deps.Portfolio.Snapshot(ctx, address)
	if err != nil {
		e.log.Warn().Err(err).Str("address", address).Msg("balance lookup failed")
		return failure(TypeGetBalance, fmt.Sprintf("Could not read wallet balances for %s.", address))
	}
	return Result{
		Type:    TypeGetBalance,
		Success: true,
		Message: portfolio.FormatForContext(snap),
		Payload: snap,
	}
}

func (e *Executor) sendTokens(ctx context.Context, p SendTokensParams, caller *persona.Caller) Result {
	if !caller.HasWallet() {
		return failure(TypeSendTokens, "Connect a wallet to prepare a transfer.")
	}
	token, ok := e.transferToken(ctx, p.Token)
	if !ok {
		return failure(TypeSendTokens, fmt.Sprintf("Token **%s** is not supported on Sonic.", p.Token))
	}
	plan, err := planner.BuildTransferPlan(planner.TransferRequest{
		ChainID: e.cfg.ChainID,
		Token:   token,
		Amount:  p.Amount,
		From:    caller.WalletAddress,
		To:      p.To,
	})
	if err != nil {
		return failure(TypeSendTokens, "Could not prepare transfer: "+userMessage(err))
	}
	msg := fmt.Sprintf("Prepared a transfer of %s %s to %s. Review and sign %s in your wallet.",
		p.Amount, token.Symbol, plan.To, pluralTx(len(plan.Steps)))
	return e.planResult(ctx, TypeSendTokens, plan, msg)
}

// transferToken resolves a registry token, or reads an unlisted ERC-20 from
// chain when the user gave its contract address.
func (e *Executor) transferToken(ctx context.Context, input string) (registry.Token, bool) {
	if token, ok := registry.ResolveToken(input); ok {
		return token, true
	}
	if e.deps.Tokens == nil || !registry.IsAddress(input) {
		return registry.Token{}, false
	}
	token, err := e.deps.Tokens.TokenMetadata(ctx, strings.TrimSpace(input))
	if err != nil {
		e.log.Warn().Err(err).Str("token", input).Msg("token metadata lookup failed")
		return registry.Token{}, false
	}
	if strings.TrimSpace(token.Symbol) == "" {
		token.Symbol = token.Address
	}
	return token, true
}

func (e *Executor) swapTokens(ctx context.Context, p SwapTokensParams, caller *persona.Caller) Result {
	if !caller.HasWallet() {
		return failure(TypeSwapTokens, "Connect a wallet to prepare a swap.")
	}
	in, ok := registry.ResolveToken(p.TokenIn)
	if !ok {
		return failure(TypeSwapTokens, fmt.Sprintf("Token **%s** is not supported on Sonic.", p.TokenIn))
	}
	out, ok := registry.ResolveToken(p.TokenOut)
	if !ok {
		return failure(TypeSwapTokens, fmt.Sprintf("Token **%s** is not supported on Sonic.", p.TokenOut))
	}
	if e.cfg.SwapRouter == "" {
		return failure(TypeSwapTokens, "Swaps are not available: no swap router is configured.")
	}
	var quotes map[string]prices.Quote
	if e.deps.Prices != nil {
		quotes = e.deps.Prices.Prices(ctx, []string{in.Symbol, out.Symbol})
	}
	slippage := e.cfg.SlippageBps
	if p.SlippageBps != nil {
		slippage = p.SlippageBps
	}
	plan, err := planner.BuildSwapPlan(planner.SwapRequest{
		ChainID:     e.cfg.ChainID,
		Router:      e.cfg.SwapRouter,
		From:        caller.WalletAddress,
		TokenIn:     in,
		TokenOut:    out,
		AmountIn:    p.Amount,
		PriceIn:     quotes[in.Symbol].USDPrice,
		PriceOut:    quotes[out.Symbol].USDPrice,
		SlippageBps: slippage,
	})
	if err != nil {
		return failure(TypeSwapTokens, "Could not prepare swap: "+userMessage(err))
	}
	msg := fmt.Sprintf("Prepared a swap of %s %s for at least %s %s. Review and sign %s in your wallet.",
		p.Amount, in.Symbol, formatMinOut(plan, out), out.Symbol, pluralTx(len(plan.Steps)))
	return e.planResult(ctx, TypeSwapTokens, plan, msg)
}

func (e *Executor) planResult(ctx context.Context, t Type, plan execution.Plan, msg string) Result {
	res := Result{
		Type:         t,
		Success:      true,
		Message:      msg,
		Payload:      plan,
		Transactions: plan.Steps,
	}
	if e.deps.Plans == nil {
		return res
	}
	if err := e.deps.Plans.Save(ctx, plan); err != nil {
		e.log.Warn().Err(err).Str("plan_id", plan.PlanID).Msg("failed to record plan")
		return res
	}
	res.PlanID = plan.PlanID
	return res
}

func userMessage(err error) string {
	if cErr, ok := clierr.As(err); ok {
		return cErr.Message
	}
	return err.Error()
}

func pluralTx(n int) string {
	if n == 1 {
		return "1 transaction"
	}
	return fmt.Sprintf("%d transactions", n)
}

func formatMinOut(plan execution.Plan, out registry.Token) string {
	minOut, ok := new(big.Int).SetString(plan.Constraints.MinAmountOut, 10)
	if !ok {
		return "0"
	}
	return units.FormatUnits(minOut, out.Decimals)
}
