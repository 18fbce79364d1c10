package execution

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	clierr "github.com/kelreel/sonichash/internal/errors"
)

type BlockTag string

const (
	BlockTagLatest  BlockTag = "latest"
	BlockTagPending BlockTag = "pending"
)

var (
	fallbackBaseFee = big.NewInt(1_000_000_000)
	fallbackTipCap  = big.NewInt(2_000_000_000)
)

type EstimateOptions struct {
	StepIDs            []string
	GasMultiplier      float64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
	BlockTag           BlockTag
}

func DefaultEstimateOptions() EstimateOptions {
	return EstimateOptions{
		GasMultiplier: 1.2,
		BlockTag:      BlockTagPending,
	}
}

// FeeEstimate prices the steps of a recorded plan. Steps that fail to
// estimate, typically swaps whose approval has not been mined yet, carry an
// error and are left out of the totals.
type FeeEstimate struct {
	PlanID          string         `json:"plan_id"`
	ChainID         int64          `json:"chain_id"`
	EstimatedAt     string         `json:"estimated_at"`
	BlockTag        string         `json:"block_tag"`
	Steps           []StepEstimate `json:"steps"`
	LikelyFeeWei    string         `json:"likely_fee_wei"`
	WorstCaseFeeWei string         `json:"worst_case_fee_wei"`
	LikelyFee       string         `json:"likely_fee"`
}

type StepEstimate struct {
	StepID                  string   `json:"step_id"`
	Type                    StepType `json:"type"`
	GasEstimateRaw          string   `json:"gas_estimate_raw,omitempty"`
	GasLimit                string   `json:"gas_limit,omitempty"`
	MaxPriorityFeePerGasWei string   `json:"max_priority_fee_per_gas_wei,omitempty"`
	MaxFeePerGasWei         string   `json:"max_fee_per_gas_wei,omitempty"`
	LikelyFeeWei            string   `json:"likely_fee_wei,omitempty"`
	WorstCaseFeeWei         string   `json:"worst_case_fee_wei,omitempty"`
	Error                   string   `json:"error,omitempty"`
}

// FeeEstimator estimates plan fees against one JSON-RPC endpoint. It only
// issues read calls.
type FeeEstimator struct {
	rpcURL string
	now    func() time.Time
}

func NewFeeEstimator(rpcURL string) *FeeEstimator {
	return &FeeEstimator{rpcURL: strings.TrimSpace(rpcURL), now: time.Now}
}

func (e *FeeEstimator) Estimate(ctx context.Context, plan Plan, opts EstimateOptions) (FeeEstimate, error) {
	if len(plan.Steps) == 0 {
		return FeeEstimate{}, clierr.New(clierr.CodeUsage, "plan has no steps")
	}
	if opts.GasMultiplier <= 1 {
		return FeeEstimate{}, clierr.New(clierr.CodeUsage, "--gas-multiplier must be > 1")
	}
	blockTag, err := normalizeBlockTag(opts.BlockTag)
	if err != nil {
		return FeeEstimate{}, err
	}
	from := common.Address{}
	if plan.From != "" {
		if !common.IsHexAddress(plan.From) {
			return FeeEstimate{}, clierr.New(clierr.CodeUsage, "plan has invalid from address")
		}
		from = common.HexToAddress(plan.From)
	}
	selected := filterSteps(plan.Steps, opts.StepIDs)
	if len(selected) == 0 {
		return FeeEstimate{}, clierr.New(clierr.CodeUsage, "no plan steps matched the requested --step-ids filter")
	}

	client, err := ethclient.DialContext(ctx, e.rpcURL)
	if err != nil {
		return FeeEstimate{}, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return FeeEstimate{}, clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	if plan.ChainID != 0 && chainID.Int64() != plan.ChainID {
		return FeeEstimate{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("rpc chain %d does not match plan chain %d", chainID.Int64(), plan.ChainID))
	}

	tipCap, err := resolveTipCap(ctx, client, opts.MaxPriorityFeeGwei)
	if err != nil {
		return FeeEstimate{}, err
	}
	baseFee, err := baseFeeAt(ctx, client, blockTag)
	if err != nil {
		return FeeEstimate{}, err
	}
	feeCap, err := resolveFeeCap(baseFee, tipCap, opts.MaxFeeGwei)
	if err != nil {
		return FeeEstimate{}, err
	}
	price := new(big.Int).Add(baseFee, tipCap)
	if price.Cmp(feeCap) > 0 {
		price = new(big.Int).Set(feeCap)
	}

	likelyTotal := new(big.Int)
	worstTotal := new(big.Int)
	estimated := 0
	steps := make([]StepEstimate, 0, len(selected))
	for _, step := range selected {
		out := StepEstimate{StepID: step.StepID, Type: step.Type}
		msg, err := callMsg(step, from)
		if err != nil {
			return FeeEstimate{}, err
		}
		rawGas, err := estimateGas(ctx, client, msg, blockTag)
		if err != nil {
			out.Error = err.Error()
			steps = append(steps, out)
			continue
		}
		gasLimit := new(big.Int).SetUint64(uint64(float64(rawGas) * opts.GasMultiplier))
		likely := new(big.Int).Mul(gasLimit, price)
		worst := new(big.Int).Mul(gasLimit, feeCap)

		out.GasEstimateRaw = new(big.Int).SetUint64(rawGas).String()
		out.GasLimit = gasLimit.String()
		out.MaxPriorityFeePerGasWei = tipCap.String()
		out.MaxFeePerGasWei = feeCap.String()
		out.LikelyFeeWei = likely.String()
		out.WorstCaseFeeWei = worst.String()
		steps = append(steps, out)

		likelyTotal.Add(likelyTotal, likely)
		worstTotal.Add(worstTotal, worst)
		estimated++
	}
	if estimated == 0 {
		return FeeEstimate{}, clierr.New(clierr.CodeUnavailable, "gas estimation failed for every step: "+steps[0].Error)
	}

	return FeeEstimate{
		PlanID:          plan.PlanID,
		ChainID:         chainID.Int64(),
		EstimatedAt:     e.now().UTC().Format(time.RFC3339),
		BlockTag:        string(blockTag),
		Steps:           steps,
		LikelyFeeWei:    likelyTotal.String(),
		WorstCaseFeeWei: worstTotal.String(),
		LikelyFee:       decimal.NewFromBigInt(likelyTotal, -18).String(),
	}, nil
}

func filterSteps(steps []Step, ids []string) []Step {
	want := map[string]struct{}{}
	for _, id := range ids {
		if id = strings.ToLower(strings.TrimSpace(id)); id != "" {
			want[id] = struct{}{}
		}
	}
	if len(want) == 0 {
		return steps
	}
	out := make([]Step, 0, len(steps))
	for _, step := range steps {
		if _, ok := want[strings.ToLower(step.StepID)]; ok {
			out = append(out, step)
		}
	}
	return out
}

func callMsg(step Step, from common.Address) (ethereum.CallMsg, error) {
	if !common.IsHexAddress(step.Target) {
		return ethereum.CallMsg{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("step %s has invalid target address", step.StepID))
	}
	target := common.HexToAddress(step.Target)
	data, err := decodeHex(step.Data)
	if err != nil {
		return ethereum.CallMsg{}, clierr.Wrap(clierr.CodeUsage, "decode step calldata", err)
	}
	value := big.NewInt(0)
	if v := strings.TrimSpace(step.Value); v != "" {
		parsed, ok := new(big.Int).SetString(v, 10)
		if !ok || parsed.Sign() < 0 {
			return ethereum.CallMsg{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("step %s has invalid value %q", step.StepID, step.Value))
		}
		value = parsed
	}
	return ethereum.CallMsg{From: from, To: &target, Value: value, Data: data}, nil
}

func normalizeBlockTag(input BlockTag) (BlockTag, error) {
	switch strings.ToLower(strings.TrimSpace(string(input))) {
	case "", string(BlockTagPending):
		return BlockTagPending, nil
	case string(BlockTagLatest):
		return BlockTagLatest, nil
	default:
		return "", clierr.New(clierr.CodeUsage, "--block-tag must be one of: pending,latest")
	}
}

// estimateGas asks for an estimate at blockTag, retrying at latest for
// nodes without pending state support.
func estimateGas(ctx context.Context, client *ethclient.Client, msg ethereum.CallMsg, blockTag BlockTag) (uint64, error) {
	arg := map[string]any{"from": msg.From.Hex(), "to": msg.To.Hex()}
	if len(msg.Data) > 0 {
		arg["data"] = hexutil.Bytes(msg.Data)
	}
	if msg.Value != nil && msg.Value.Sign() > 0 {
		arg["value"] = (*hexutil.Big)(msg.Value)
	}
	var estimated hexutil.Uint64
	err := client.Client().CallContext(ctx, &estimated, "eth_estimateGas", arg, string(blockTag))
	if err != nil && blockTag == BlockTagPending {
		err = client.Client().CallContext(ctx, &estimated, "eth_estimateGas", arg, string(BlockTagLatest))
	}
	if err != nil {
		return 0, fmt.Errorf("estimate gas: %w", err)
	}
	if estimated == 0 {
		return 0, fmt.Errorf("estimate gas returned zero")
	}
	return uint64(estimated), nil
}

func baseFeeAt(ctx context.Context, client *ethclient.Client, blockTag BlockTag) (*big.Int, error) {
	var block struct {
		BaseFeePerGas *hexutil.Big `json:"baseFeePerGas"`
	}
	err := client.Client().CallContext(ctx, &block, "eth_getBlockByNumber", string(blockTag), false)
	if err != nil && blockTag == BlockTagPending {
		err = client.Client().CallContext(ctx, &block, "eth_getBlockByNumber", string(BlockTagLatest), false)
	}
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "fetch block base fee", err)
	}
	if block.BaseFeePerGas == nil {
		return new(big.Int).Set(fallbackBaseFee), nil
	}
	return new(big.Int).Set((*big.Int)(block.BaseFeePerGas)), nil
}

func resolveTipCap(ctx context.Context, client *ethclient.Client, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := parseGwei(overrideGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse --max-priority-fee-gwei", err)
		}
		return v, nil
	}
	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		return new(big.Int).Set(fallbackTipCap), nil
	}
	return tipCap, nil
}

func resolveFeeCap(baseFee, tipCap *big.Int, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := parseGwei(overrideGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse --max-fee-gwei", err)
		}
		if v.Cmp(tipCap) < 0 {
			return nil, clierr.New(clierr.CodeUsage, "--max-fee-gwei must be >= --max-priority-fee-gwei")
		}
		return v, nil
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	return feeCap.Add(feeCap, tipCap), nil
}

func parseGwei(v string) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return nil, fmt.Errorf("invalid numeric value %q", v)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("value must be non-negative")
	}
	wei := d.Shift(9)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, fmt.Errorf("value must resolve to an integer wei amount")
	}
	return wei.BigInt(), nil
}

func decodeHex(v string) ([]byte, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(v), "0x")
	if clean == "" {
		return []byte{}, nil
	}
	if len(clean)%2 != 0 {
		clean = "0" + clean
	}
	buf, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return buf, nil
}
