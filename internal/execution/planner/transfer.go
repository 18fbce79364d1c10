package planner

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/kelreel/sonichash/internal/errors"
	"github.com/kelreel/sonichash/internal/execution"
	"github.com/kelreel/sonichash/internal/registry"
	"github.com/kelreel/sonichash/internal/units"
)

const IntentTransfer = "SEND_TOKENS"

type TransferRequest struct {
	ChainID int64
	Token   registry.Token
	// Amount is a decimal amount in whole token units.
	Amount string
	From   string
	To     string
}

// BuildTransferPlan prepares a native value transfer or an ERC-20 transfer
// call from the sender's wallet.
func BuildTransferPlan(req TransferRequest) (execution.Plan, error) {
	from, err := requireAddress("sender", req.From)
	if err != nil {
		return execution.Plan{}, err
	}
	to, err := requireAddress("recipient", req.To)
	if err != nil {
		return execution.Plan{}, err
	}
	amount, err := units.ParseAmount(req.Amount, req.Token.Decimals)
	if err != nil {
		return execution.Plan{}, err
	}

	step := execution.Step{
		StepID:      "transfer",
		Type:        execution.StepTypeTransfer,
		ChainID:     req.ChainID,
		Description: fmt.Sprintf("Send %s %s to %s", req.Amount, req.Token.Symbol, to.Hex()),
	}
	if req.Token.IsNative() {
		step.Target = to.Hex()
		step.Data = "0x"
		step.Value = amount.String()
	} else {
		if !common.IsHexAddress(req.Token.Address) {
			return execution.Plan{}, clierr.New(clierr.CodeUsage, "transfer requires ERC20 token address")
		}
		data, err := plannerERC20ABI.Pack("transfer", to, amount)
		if err != nil {
			return execution.Plan{}, clierr.Wrap(clierr.CodeInternal, "pack transfer calldata", err)
		}
		step.Target = common.HexToAddress(req.Token.Address).Hex()
		step.Data = "0x" + common.Bytes2Hex(data)
		step.Value = "0"
	}

	plan := execution.NewPlan(IntentTransfer, req.ChainID)
	plan.From = from.Hex()
	plan.To = to.Hex()
	plan.InputAmount = amount.String()
	plan.Metadata = map[string]any{"token": req.Token.Symbol}
	plan.Steps = append(plan.Steps, step)
	return plan, nil
}
