package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kelreel/sonichash/internal/actions"
	clierr "github.com/kelreel/sonichash/internal/errors"
	"github.com/kelreel/sonichash/internal/execution"
	"github.com/kelreel/sonichash/internal/llm"
	"github.com/kelreel/sonichash/internal/persona"
	"github.com/kelreel/sonichash/internal/prompt"
	"github.com/kelreel/sonichash/internal/registry"
)

const (
	MaxHistory      = 20
	FallbackReply   = "I apologize, but I couldn't generate a response."
	chatTemperature = 0.7
)

type Detector interface {
	Detect(ctx context.Context, text string) *actions.Action
}

type Executor interface {
	Execute(ctx context.Context, action actions.Action, p *persona.Persona, caller *persona.Caller) actions.Result
}

type ContextBuilder interface {
	Build(ctx context.Context, in prompt.Input) string
}

type Config struct {
	Model       string
	TurnTimeout time.Duration
}

// Orchestrator runs one chat turn: detect, execute, build context, complete.
type Orchestrator struct {
	detector Detector
	executor Executor
	builder  ContextBuilder
	llm      llm.Completer
	cfg      Config
	log      zerolog.Logger
}

func New(detector Detector, executor Executor, builder ContextBuilder, completer llm.Completer, cfg Config, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		detector: detector,
		executor: executor,
		builder:  builder,
		llm:      completer,
		cfg:      cfg,
		log:      logger.With().Str("component", "chat").Logger(),
	}
}

type Request struct {
	Persona *persona.Persona
	Message llm.Message
	History []llm.Message
	Caller  *persona.Caller
}

// ActionEcho reports the detected action back to the client for review.
type ActionEcho struct {
	Type         actions.Type     `json:"type"`
	Params       actions.Params   `json:"params"`
	Success      bool             `json:"success"`
	Error        string           `json:"error,omitempty"`
	Transactions []execution.Step `json:"transactions,omitempty"`
	PlanID       string           `json:"plan_id,omitempty"`
}

type Response struct {
	RequestID string        `json:"request_id"`
	Response  string        `json:"response"`
	Messages  []llm.Message `json:"messages"`
	Action    *ActionEcho   `json:"action,omitempty"`
}

func (r Response) PlainText() string {
	return r.Response
}

// ValidateHistory rejects histories longer than MaxHistory or with unknown
// roles.
func ValidateHistory(history []llm.Message) error {
	if len(history) > MaxHistory {
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("Maximum of %d previous messages allowed", MaxHistory))
	}
	for i, m := range history {
		if !m.Role.Valid() {
			return clierr.New(clierr.CodeUsage, fmt.Sprintf("message %d has invalid role %q", i, m.Role))
		}
	}
	return nil
}

// Respond produces the persona's reply. Detection, action and data source
// failures degrade the context; only a failed completion fails the turn.
func (o *Orchestrator) Respond(ctx context.Context, req Request) (Response, error) {
	if err := ValidateHistory(req.History); err != nil {
		return Response{}, err
	}
	if req.Persona == nil {
		return Response{}, clierr.New(clierr.CodeUsage, "persona is required")
	}
	message := req.Message
	if message.Role == "" {
		message.Role = llm.RoleUser
	}
	if message.Role != llm.RoleUser {
		return Response{}, clierr.New(clierr.CodeUsage, "current message must have role user")
	}
	if o.cfg.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.TurnTimeout)
		defer cancel()
	}

	requestID := uuid.NewString()
	logger := o.log.With().Str("request_id", requestID).Str("persona", req.Persona.ID).Logger()
	text := message.Content.PlainText()

	var (
		echo       *ActionEcho
		actionText string
	)
	if o.detector != nil {
		if action := o.detector.Detect(ctx, text); action != nil {
			action = withAddressFromText(action, text)
			result := actions.Result{Type: action.Type, Error: "Actions are not available right now."}
			if o.executor != nil {
				result = o.executor.Execute(ctx, *action, req.Persona, req.Caller)
			}
			actionText = result.Render()
			echo = &ActionEcho{
				Type:         action.Type,
				Params:       action.Params,
				Success:      result.Success,
				Error:        result.Error,
				Transactions: result.Transactions,
				PlanID:       result.PlanID,
			}
		}
	}

	system := o.builder.Build(ctx, prompt.Input{
		Persona:      req.Persona,
		Caller:       req.Caller,
		Message:      text,
		ActionResult: actionText,
		History:      req.History,
	})

	messages := make([]llm.Message, 0, len(req.History)+2)
	messages = append(messages, req.History...)
	messages = append(messages, message)

	reply, err := o.llm.Complete(ctx, llm.Request{
		Model:       o.cfg.Model,
		System:      system,
		Messages:    messages,
		Format:      llm.FormatText,
		Temperature: chatTemperature,
	})
	if err != nil {
		logger.Error().Err(err).Msg("completion failed")
		return Response{}, clierr.Wrap(clierr.CodeUnavailable, "could not generate a response", err)
	}
	if strings.TrimSpace(reply) == "" {
		logger.Warn().Msg("empty completion, using fallback reply")
		reply = FallbackReply
	}

	return Response{
		RequestID: requestID,
		Response:  reply,
		Messages:  append(messages, llm.AssistantMessage(reply)),
		Action:    echo,
	}, nil
}

// withAddressFromText fills an empty balance lookup address from an address
// mentioned in the message.
func withAddressFromText(action *actions.Action, text string) *actions.Action {
	params, ok := action.Params.(actions.GetBalanceParams)
	if !ok || params.Address != "" {
		return action
	}
	addr, ok := registry.FindAddress(text)
	if !ok {
		return action
	}
	params.Address = addr
	return actions.New(params)
}
