package planner

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	clierr "github.com/kelreel/sonichash/internal/errors"
	"github.com/kelreel/sonichash/internal/execution"
	"github.com/kelreel/sonichash/internal/registry"
	"github.com/kelreel/sonichash/internal/units"
)

const (
	IntentSwap         = "SWAP_TOKENS"
	DefaultSlippageBps = 50
	DefaultDeadline    = 20 * time.Minute
	maxSlippageBps     = 5000
)

type SwapRequest struct {
	ChainID  int64
	Router   string
	From     string
	TokenIn  registry.Token
	TokenOut registry.Token
	// AmountIn is a decimal amount in whole TokenIn units.
	AmountIn string
	// USD unit prices used to derive the minimum output.
	PriceIn  float64
	PriceOut float64
	// SlippageBps nil means DefaultSlippageBps; an explicit 0 is kept.
	SlippageBps *int64
	Deadline    time.Time
}

// MinAmountOut converts amountIn to TokenOut base units at the given USD
// prices and discounts it by slippageBps.
func MinAmountOut(amountIn decimal.Decimal, priceIn, priceOut float64, outDecimals int, slippageBps int64) (*big.Int, error) {
	if priceIn <= 0 || priceOut <= 0 {
		return nil, clierr.New(clierr.CodeUnavailable, "price unavailable for minimum output")
	}
	if slippageBps < 0 || slippageBps > maxSlippageBps {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("slippage must be between 0 and %d bps", maxSlippageBps))
	}
	out := amountIn.
		Mul(decimal.NewFromFloat(priceIn)).
		Div(decimal.NewFromFloat(priceOut)).
		Mul(decimal.NewFromInt(10_000 - slippageBps)).
		Div(decimal.NewFromInt(10_000))
	minOut := units.FromDecimal(out, outDecimals)
	if minOut.Sign() <= 0 {
		return nil, clierr.New(clierr.CodeUsage, "swap amount too small")
	}
	if minOut.BitLen() > units.MaxUintBits {
		return nil, clierr.New(clierr.CodeUsage, "minimum output does not fit in uint256")
	}
	return minOut, nil
}

// BuildSwapPlan prepares an optional ERC-20 approval followed by a V2 router
// swap. Native legs route through the wrapped native token.
func BuildSwapPlan(req SwapRequest) (execution.Plan, error) {
	from, err := requireAddress("sender", req.From)
	if err != nil {
		return execution.Plan{}, err
	}
	if strings.TrimSpace(req.Router) == "" {
		return execution.Plan{}, clierr.New(clierr.CodeUnsupported, "no swap router configured")
	}
	router, err := requireAddress("swap router", req.Router)
	if err != nil {
		return execution.Plan{}, err
	}
	if strings.EqualFold(req.TokenIn.Address, req.TokenOut.Address) {
		return execution.Plan{}, clierr.New(clierr.CodeUsage, "swap input and output tokens must differ")
	}
	amountIn, err := units.ParseAmount(req.AmountIn, req.TokenIn.Decimals)
	if err != nil {
		return execution.Plan{}, err
	}
	slippage := int64(DefaultSlippageBps)
	if req.SlippageBps != nil {
		slippage = *req.SlippageBps
	}
	minOut, err := MinAmountOut(units.ToDecimal(amountIn, req.TokenIn.Decimals), req.PriceIn, req.PriceOut, req.TokenOut.Decimals, slippage)
	if err != nil {
		return execution.Plan{}, err
	}
	deadline := req.Deadline
	if deadline.IsZero() {
		deadline = time.Now().Add(DefaultDeadline)
	}
	deadlineUnix := big.NewInt(deadline.Unix())

	wrapped, _ := registry.ResolveToken(registry.WrappedNative)
	path := []common.Address{swapLeg(req.TokenIn, wrapped), swapLeg(req.TokenOut, wrapped)}
	if path[0] == path[1] {
		return execution.Plan{}, clierr.New(clierr.CodeUsage, "swap between native and wrapped native is a wrap, not a swap")
	}

	plan := execution.NewPlan(IntentSwap, req.ChainID)
	plan.From = from.Hex()
	plan.To = router.Hex()
	plan.InputAmount = amountIn.String()
	plan.Constraints = execution.Constraints{
		SlippageBps:  slippage,
		Deadline:     deadline.UTC().Format(time.RFC3339),
		MinAmountOut: minOut.String(),
	}
	plan.Metadata = map[string]any{
		"token_in":  req.TokenIn.Symbol,
		"token_out": req.TokenOut.Symbol,
	}

	var (
		data  []byte
		value = "0"
	)
	switch {
	case req.TokenIn.IsNative():
		data, err = plannerRouterABI.Pack("swapExactETHForTokens", minOut, path, from, deadlineUnix)
		value = amountIn.String()
	case req.TokenOut.IsNative():
		data, err = plannerRouterABI.Pack("swapExactTokensForETH", amountIn, minOut, path, from, deadlineUnix)
	default:
		data, err = plannerRouterABI.Pack("swapExactTokensForTokens", amountIn, minOut, path, from, deadlineUnix)
	}
	if err != nil {
		return execution.Plan{}, clierr.Wrap(clierr.CodeInternal, "pack swap calldata", err)
	}

	if !req.TokenIn.IsNative() {
		approval, err := BuildApprovalStep(req.ChainID, req.TokenIn, router.Hex(), amountIn)
		if err != nil {
			return execution.Plan{}, err
		}
		plan.Steps = append(plan.Steps, approval)
	}
	plan.Steps = append(plan.Steps, execution.Step{
		StepID:      "swap",
		Type:        execution.StepTypeSwap,
		ChainID:     req.ChainID,
		Description: fmt.Sprintf("Swap %s %s for at least %s %s", req.AmountIn, req.TokenIn.Symbol, units.FormatUnits(minOut, req.TokenOut.Decimals), req.TokenOut.Symbol),
		Target:      router.Hex(),
		Data:        "0x" + common.Bytes2Hex(data),
		Value:       value,
	})
	return plan, nil
}

func swapLeg(token, wrapped registry.Token) common.Address {
	if token.IsNative() {
		return common.HexToAddress(wrapped.Address)
	}
	return common.HexToAddress(token.Address)
}
