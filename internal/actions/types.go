package actions

import (
	"encoding/json"
	"fmt"

	"github.com/kelreel/sonichash/internal/execution"
)

type Type string

const (
	TypePredictPrice Type = "PREDICT_PRICE"
	TypeGetPrice     Type = "GET_PRICE"
	TypeGetBalance   Type = "GET_BALANCE"
	TypeSendTokens   Type = "SEND_TOKENS"
	TypeSwapTokens   Type = "SWAP_TOKENS"
)

// Params is the closed set of per-type action parameters.
type Params interface {
	ActionType() Type
}

type PredictPriceParams struct {
	Ticker    string `json:"ticker"`
	Timeframe string `json:"timeframe"`
}

type GetPriceParams struct {
	Symbols []string `json:"symbols,omitempty"`
}

type GetBalanceParams struct {
	Address string `json:"address,omitempty"`
}

type SendTokensParams struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
	To     string `json:"to"`
}

type SwapTokensParams struct {
	TokenIn  string `json:"token_in"`
	TokenOut string `json:"token_out"`
	Amount   string `json:"amount"`
	// SlippageBps is nil when the user named no slippage.
	SlippageBps *int64 `json:"slippage_bps,omitempty"`
}

func (PredictPriceParams) ActionType() Type { return TypePredictPrice }
func (GetPriceParams) ActionType() Type     { return TypeGetPrice }
func (GetBalanceParams) ActionType() Type   { return TypeGetBalance }
func (SendTokensParams) ActionType() Type   { return TypeSendTokens }
func (SwapTokensParams) ActionType() Type   { return TypeSwapTokens }

// Action is a structured intent detected in a user message.
type Action struct {
	Type   Type
	Params Params
}

func New(p Params) *Action {
	return &Action{Type: p.ActionType(), Params: p}
}

type wireAction struct {
	Type   Type            `json:"type"`
	Params json.RawMessage `json:"params"`
}

func (a Action) MarshalJSON() ([]byte, error) {
	params, err := json.Marshal(a.Params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireAction{Type: a.Type, Params: params})
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var w wireAction
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	params, err := decodeParams(w.Type, w.Params)
	if err != nil {
		return err
	}
	a.Type = w.Type
	a.Params = params
	return nil
}

func decodeParams(t Type, raw json.RawMessage) (Params, error) {
	var p Params
	switch t {
	case TypePredictPrice:
		p = &PredictPriceParams{}
	case TypeGetPrice:
		p = &GetPriceParams{}
	case TypeGetBalance:
		p = &GetBalanceParams{}
	case TypeSendTokens:
		p = &SendTokensParams{}
	case TypeSwapTokens:
		p = &SwapTokensParams{}
	default:
		return nil, fmt.Errorf("unknown action type %q", t)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, fmt.Errorf("decode %s params: %w", t, err)
		}
	}
	return deref(p), nil
}

func deref(p Params) Params {
	switch v := p.(type) {
	case *PredictPriceParams:
		return *v
	case *GetPriceParams:
		return *v
	case *GetBalanceParams:
		return *v
	case *SendTokensParams:
		return *v
	case *SwapTokensParams:
		return *v
	}
	return p
}

// Result is the outcome of executing one action. Handler failures are
// reported through Success and Error, never as Go errors.
type Result struct {
	Type         Type             `json:"type"`
	Success      bool             `json:"success"`
	Message      string           `json:"message,omitempty"`
	Payload      any              `json:"payload,omitempty"`
	Error        string           `json:"error,omitempty"`
	Transactions []execution.Step `json:"transactions,omitempty"`
	PlanID       string           `json:"plan_id,omitempty"`
}

func failure(t Type, msg string) Result {
	return Result{Type: t, Success: false, Error: msg}
}

// Render returns the text folded into the chat context.
func (r Result) Render() string {
	if !r.Success {
		return r.Error
	}
	return r.Message
}
