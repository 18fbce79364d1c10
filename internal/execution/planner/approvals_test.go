package planner

import (
	"math/big"
	"strings"
	"testing"

	"github.com/kelreel/sonichash/internal/registry"
)

func mustToken(t *testing.T, symbol string) registry.Token {
	t.Helper()
	tok, ok := registry.ResolveToken(symbol)
	if !ok {
		t.Fatalf("unknown token %s", symbol)
	}
	return tok
}

func TestBuildApprovalStep(t *testing.T) {
	usdc := mustToken(t, "USDC")
	step, err := BuildApprovalStep(146, usdc, "0x00000000000000000000000000000000000000BB", big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("BuildApprovalStep failed: %v", err)
	}
	if step.Type != "approval" {
		t.Fatalf("unexpected step type: %s", step.Type)
	}
	if !strings.EqualFold(step.Target, usdc.Address) {
		t.Fatalf("approval must target the token, got %s", step.Target)
	}
	// approve(address,uint256)
	if !strings.HasPrefix(step.Data, "0x095ea7b3") {
		t.Fatalf("unexpected approve selector: %s", step.Data[:10])
	}
	if step.Value != "0" {
		t.Fatalf("approval must not carry value, got %s", step.Value)
	}
}

func TestBuildApprovalStepRejectsInvalidInput(t *testing.T) {
	usdc := mustToken(t, "USDC")
	if _, err := BuildApprovalStep(146, usdc, "0x00000000000000000000000000000000000000BB", big.NewInt(0)); err == nil {
		t.Fatal("expected invalid amount error")
	}
	if _, err := BuildApprovalStep(146, usdc, "nope", big.NewInt(1)); err == nil {
		t.Fatal("expected invalid spender error")
	}
	if _, err := BuildApprovalStep(146, registry.NativeToken(), "0x00000000000000000000000000000000000000BB", big.NewInt(1)); err == nil {
		t.Fatal("expected native token approval to be rejected")
	}
}
