package execution

import (
	"time"

	"github.com/google/uuid"
)

type StepType string

const (
	StepTypeApproval StepType = "approval"
	StepTypeTransfer StepType = "transfer"
	StepTypeSwap     StepType = "swap"
)

// Step is an unsigned transaction descriptor. It is never signed or
// submitted by this module.
type Step struct {
	StepID      string   `json:"step_id"`
	Type        StepType `json:"type"`
	ChainID     int64    `json:"chain_id"`
	Description string   `json:"description,omitempty"`
	Target      string   `json:"target"`
	Data        string   `json:"data"`
	Value       string   `json:"value"`
}

type Constraints struct {
	SlippageBps  int64  `json:"slippage_bps"`
	Deadline     string `json:"deadline,omitempty"`
	MinAmountOut string `json:"min_amount_out,omitempty"`
}

// Plan groups the steps prepared for one detected action.
type Plan struct {
	PlanID      string         `json:"plan_id"`
	Intent      string         `json:"intent"`
	ChainID     int64          `json:"chain_id"`
	From        string         `json:"from,omitempty"`
	To          string         `json:"to,omitempty"`
	InputAmount string         `json:"input_amount,omitempty"`
	CreatedAt   string         `json:"created_at"`
	Constraints Constraints    `json:"constraints"`
	Steps       []Step         `json:"steps"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewPlan(intent string, chainID int64) Plan {
	return Plan{
		PlanID:    NewPlanID(),
		Intent:    intent,
		ChainID:   chainID,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Steps:     []Step{},
	}
}

func NewPlanID() string {
	return "plan_" + uuid.NewString()
}
