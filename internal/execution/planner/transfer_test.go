package planner

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/kelreel/sonichash/internal/errors"
	"github.com/kelreel/sonichash/internal/registry"
	"github.com/kelreel/sonichash/internal/units"
)

const (
	sender    = "0x00000000000000000000000000000000000000AA"
	recipient = "0x00000000000000000000000000000000000000bb"
	router    = "0x00000000000000000000000000000000000000CC"
)

func TestBuildTransferPlanNative(t *testing.T) {
	plan, err := BuildTransferPlan(TransferRequest{
		ChainID: 146,
		Token:   registry.NativeToken(),
		Amount:  "1.5",
		From:    sender,
		To:      recipient,
	})
	if err != nil {
		t.Fatalf("BuildTransferPlan failed: %v", err)
	}
	if plan.Intent != IntentTransfer || len(plan.Steps) != 1 {
		t.Fatalf("unexpected plan: %+v", plan)
	}
	step := plan.Steps[0]
	if !strings.EqualFold(step.Target, recipient) || step.Data != "0x" {
		t.Fatalf("native transfer must be a plain value send, got %+v", step)
	}
	if step.Value != "1500000000000000000" {
		t.Fatalf("unexpected value: %s", step.Value)
	}
}

func TestBuildTransferPlanERC20(t *testing.T) {
	usdc := mustToken(t, "USDC")
	plan, err := BuildTransferPlan(TransferRequest{ChainID: 146, Token: usdc, Amount: "2", From: sender, To: recipient})
	if err != nil {
		t.Fatalf("BuildTransferPlan failed: %v", err)
	}
	step := plan.Steps[0]
	if !strings.EqualFold(step.Target, usdc.Address) || step.Value != "0" {
		t.Fatalf("erc20 transfer must call the token, got %+v", step)
	}
	// transfer(address,uint256)
	if !strings.HasPrefix(step.Data, "0xa9059cbb") {
		t.Fatalf("unexpected transfer selector: %s", step.Data[:10])
	}
	if plan.InputAmount != "2000000" {
		t.Fatalf("unexpected input amount: %s", plan.InputAmount)
	}
}

func TestBuildTransferPlanRejectsBadInput(t *testing.T) {
	cases := []TransferRequest{
		{Token: registry.NativeToken(), Amount: "1", From: "", To: recipient},
		{Token: registry.NativeToken(), Amount: "1", From: sender, To: "0x12"},
		{Token: registry.NativeToken(), Amount: "0", From: sender, To: recipient},
		{Token: mustToken(t, "USDC"), Amount: "0.0000001", From: sender, To: recipient},
	}
	for _, req := range cases {
		_, err := BuildTransferPlan(req)
		if clierr.CodeOf(err) != clierr.CodeUsage {
			t.Fatalf("expected usage error for %+v, got %v", req, err)
		}
	}
}

func TestBuildTransferPlanRejectsAmountBeyondUint256(t *testing.T) {
	usdc := mustToken(t, "USDC")
	_, err := BuildTransferPlan(TransferRequest{
		ChainID: 146,
		Token:   usdc,
		Amount:  "1" + strings.Repeat("0", 72),
		From:    sender,
		To:      recipient,
	})
	if clierr.CodeOf(err) != clierr.CodeUsage {
		t.Fatalf("expected usage error for oversized amount, got %v", err)
	}
}

func TestBuildTransferPlanCalldataMatchesInputAmount(t *testing.T) {
	usdc := mustToken(t, "USDC")
	// 2^256-1 base units is the largest amount that still encodes exactly.
	maxAmount := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	amount := units.FormatUnits(maxAmount, usdc.Decimals)
	plan, err := BuildTransferPlan(TransferRequest{ChainID: 146, Token: usdc, Amount: amount, From: sender, To: recipient})
	if err != nil {
		t.Fatalf("BuildTransferPlan failed: %v", err)
	}
	data := common.FromHex(plan.Steps[0].Data)
	encoded := new(big.Int).SetBytes(data[len(data)-32:])
	if encoded.String() != plan.InputAmount {
		t.Fatalf("calldata amount %s != input amount %s", encoded, plan.InputAmount)
	}
}
