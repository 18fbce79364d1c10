package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/kelreel/sonichash/internal/llm"
	"github.com/kelreel/sonichash/internal/policy"
)

const detectorTemperature = 0.1

var errNoAction = errors.New("no action")

// Detector classifies a message into at most one registered action with a
// single JSON-constrained completion.
type Detector struct {
	llm     llm.Completer
	model   string
	enabled map[Type]bool
	prompt  string
	log     zerolog.Logger
}

// NewDetector builds a detector for the action types that pass allowlist.
// An empty allowlist enables every registered type.
func NewDetector(completer llm.Completer, model string, allowlist []string, logger zerolog.Logger) *Detector {
	enabled := make(map[Type]bool)
	var active []Spec
	for _, s := range specs {
		if policy.CheckActionAllowed(allowlist, string(s.Type)) != nil {
			continue
		}
		enabled[s.Type] = true
		active = append(active, s)
	}
	return &Detector{
		llm:     completer,
		model:   model,
		enabled: enabled,
		prompt:  detectorPrompt(active),
		log:     logger.With().Str("component", "detector").Logger(),
	}
}

func detectorPrompt(active []Spec) string {
	var b strings.Builder
	b.WriteString("You are an action detector. Analyze the user's message and determine if it contains any related actions.\n")
	b.WriteString("If an action is detected, return a JSON object with the following structure as example:\n")
	b.WriteString("{\n  \"type\": \"PREDICT_PRICE\",\n  \"params\": {\n    // Parameters specific to the action type\n  }\n}\n")
	b.WriteString("If no action is detected, return null (it's important!).\n\n")
	b.WriteString("Example actions:\n")
	blocks := make([]string, 0, len(active))
	for _, s := range active {
		blocks = append(blocks, s.Description+"\nExamples:\n"+strings.Join(s.Examples, "\n"))
	}
	b.WriteString(strings.Join(blocks, "\n\n"))
	return b.String()
}

// Detect returns the action found in text, or nil. Transport errors and
// malformed or unregistered output are logged and read as no action.
func (d *Detector) Detect(ctx context.Context, text string) *Action {
	if strings.TrimSpace(text) == "" || len(d.enabled) == 0 {
		return nil
	}
	raw, err := d.llm.Complete(ctx, llm.Request{
		Model:       d.model,
		System:      d.prompt,
		Messages:    []llm.Message{llm.UserMessage(llm.Text(text))},
		Format:      llm.FormatJSON,
		Temperature: detectorTemperature,
	})
	if err != nil {
		d.log.Warn().Err(err).Msg("action detection failed")
		return nil
	}
	action, err := d.parse(raw)
	if err != nil {
		if !errors.Is(err, errNoAction) {
			d.log.Warn().Err(err).Str("output", raw).Msg("discarding detector output")
		}
		return nil
	}
	d.log.Debug().Str("type", string(action.Type)).Msg("action detected")
	return action
}

func (d *Detector) parse(raw string) (*Action, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, errNoAction
	}
	var shape struct {
		Type   *string         `json:"type"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal([]byte(raw), &shape); err != nil {
		return nil, fmt.Errorf("parse detector output: %w", err)
	}
	if shape.Type == nil || *shape.Type == "" || len(shape.Params) == 0 || string(shape.Params) == "null" {
		return nil, errNoAction
	}
	t := Type(strings.ToUpper(strings.TrimSpace(*shape.Type)))
	if _, ok := Lookup(t); !ok {
		return nil, fmt.Errorf("unregistered action type %q", t)
	}
	if !d.enabled[t] {
		return nil, fmt.Errorf("action type %q is disabled by policy", t)
	}
	result, err := schemas[t].Validate(gojsonschema.NewBytesLoader(shape.Params))
	if err != nil {
		return nil, fmt.Errorf("validate %s params: %w", t, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("invalid %s params: %s", t, strings.Join(msgs, "; "))
	}
	params, err := decodeParams(t, shape.Params)
	if err != nil {
		return nil, err
	}
	return &Action{Type: t, Params: params}, nil
}
