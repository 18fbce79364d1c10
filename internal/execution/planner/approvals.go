package planner

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/kelreel/sonichash/internal/errors"
	"github.com/kelreel/sonichash/internal/execution"
	"github.com/kelreel/sonichash/internal/registry"
	"github.com/kelreel/sonichash/internal/units"
)

// BuildApprovalStep returns an ERC-20 approve descriptor letting spender pull
// amount base units of token.
func BuildApprovalStep(chainID int64, token registry.Token, spender string, amount *big.Int) (execution.Step, error) {
	if token.IsNative() || !common.IsHexAddress(token.Address) {
		return execution.Step{}, clierr.New(clierr.CodeUsage, "approval requires ERC20 token address")
	}
	spender = strings.TrimSpace(spender)
	if !common.IsHexAddress(spender) {
		return execution.Step{}, clierr.New(clierr.CodeUsage, "approval spender must be a valid EVM address")
	}
	if amount == nil || amount.Sign() <= 0 {
		return execution.Step{}, clierr.New(clierr.CodeUsage, "approval amount must be a positive integer in base units")
	}
	if amount.BitLen() > units.MaxUintBits {
		return execution.Step{}, clierr.New(clierr.CodeUsage, "approval amount does not fit in uint256")
	}
	data, err := plannerERC20ABI.Pack("approve", common.HexToAddress(spender), amount)
	if err != nil {
		return execution.Step{}, clierr.Wrap(clierr.CodeInternal, "pack approval calldata", err)
	}
	return execution.Step{
		StepID:      "approve-token",
		Type:        execution.StepTypeApproval,
		ChainID:     chainID,
		Description: fmt.Sprintf("Approve %s for spender", strings.ToUpper(token.Symbol)),
		Target:      common.HexToAddress(token.Address).Hex(),
		Data:        "0x" + common.Bytes2Hex(data),
		Value:       "0",
	}, nil
}

var (
	plannerERC20ABI  = mustPlannerABI(registry.ERC20MinimalABI)
	plannerRouterABI = mustPlannerABI(registry.UniswapV2RouterABI)
)

func mustPlannerABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

func requireAddress(field, value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return common.Address{}, clierr.New(clierr.CodeUsage, field+" address is required")
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, clierr.New(clierr.CodeUsage, field+" must be a valid EVM address")
	}
	return common.HexToAddress(value), nil
}
