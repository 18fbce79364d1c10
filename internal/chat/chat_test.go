package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kelreel/sonichash/internal/actions"
	clierr "github.com/kelreel/sonichash/internal/errors"
	"github.com/kelreel/sonichash/internal/llm"
	"github.com/kelreel/sonichash/internal/persona"
	"github.com/kelreel/sonichash/internal/prompt"
)

type stubDetector struct {
	action *actions.Action
	calls  int
	got    string
}

func (d *stubDetector) Detect(_ context.Context, text string) *actions.Action {
	d.calls++
	d.got = text
	return d.action
}

type stubExecutor struct {
	result actions.Result
	got    []actions.Action
}

func (e *stubExecutor) Execute(_ context.Context, action actions.Action, _ *persona.Persona, _ *persona.Caller) actions.Result {
	e.got = append(e.got, action)
	return e.result
}

type stubCompleter struct {
	reply    string
	err      error
	requests []llm.Request
}

func (c *stubCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	c.requests = append(c.requests, req)
	return c.reply, c.err
}

type fixture struct {
	detector  *stubDetector
	executor  *stubExecutor
	completer *stubCompleter
	orch      *Orchestrator
}

func newFixture() *fixture {
	f := &fixture{
		detector:  &stubDetector{},
		executor:  &stubExecutor{},
		completer: &stubCompleter{reply: "gm, fren"},
	}
	builder := prompt.NewBuilder(nil, nil, prompt.FirstN, zerolog.Nop())
	f.orch = New(f.detector, f.executor, builder, f.completer, Config{Model: "gpt-4o"}, zerolog.Nop())
	return f
}

func testPersona() *persona.Persona {
	return &persona.Persona{
		ID:   "sage",
		Name: "Sonic Sage",
		Lore: persona.Lines{"l1", "l2", "l3", "l4"},
		Bio:  persona.Lines{"b1", "b2"},
	}
}

func history(n int) []llm.Message {
	out := make([]llm.Message, 0, n)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			out = append(out, llm.UserMessage(llm.Text("q")))
		} else {
			out = append(out, llm.AssistantMessage("a"))
		}
	}
	return out
}

func TestRespondRejectsLongHistoryBeforeAnyWork(t *testing.T) {
	f := newFixture()
	_, err := f.orch.Respond(context.Background(), Request{
		Persona: testPersona(),
		Message: llm.UserMessage(llm.Text("hi")),
		History: history(21),
	})
	require.Error(t, err)
	assert.Equal(t, clierr.CodeUsage, clierr.CodeOf(err))
	assert.Equal(t, "Maximum of 20 previous messages allowed", err.Error())
	assert.Zero(t, f.detector.calls)
	assert.Empty(t, f.completer.requests)
}

func TestRespondAcceptsTwentyTurnsAndAppendsHistory(t *testing.T) {
	f := newFixture()
	prev := history(20)
	before := append([]llm.Message(nil), prev...)
	msg := llm.UserMessage(llm.Text("hello, how are you"))

	resp, err := f.orch.Respond(context.Background(), Request{Persona: testPersona(), Message: msg, History: prev})
	require.NoError(t, err)

	assert.Equal(t, "gm, fren", resp.Response)
	require.Len(t, resp.Messages, 22)
	assert.Equal(t, prev, resp.Messages[:20])
	assert.Equal(t, msg, resp.Messages[20])
	assert.Equal(t, llm.AssistantMessage("gm, fren"), resp.Messages[21])
	assert.Equal(t, before, prev, "input history must not be mutated")
	assert.Nil(t, resp.Action)
	assert.NotEmpty(t, resp.RequestID)

	require.Len(t, f.completer.requests, 1)
	req := f.completer.requests[0]
	assert.Equal(t, 0.7, req.Temperature)
	assert.Equal(t, llm.FormatText, req.Format)
	assert.Len(t, req.Messages, 21)
	assert.Contains(t, req.System, "You are Sonic Sage.")
}

func TestRespondIsDeterministicWithPinnedSampler(t *testing.T) {
	f := newFixture()
	req := Request{Persona: testPersona(), Message: llm.UserMessage(llm.Text("tell me about yourself")), History: history(2)}

	first, err := f.orch.Respond(context.Background(), req)
	require.NoError(t, err)
	second, err := f.orch.Respond(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Response, second.Response)
	assert.Equal(t, first.Messages, second.Messages)
	require.Len(t, f.completer.requests, 2)
	assert.Equal(t, f.completer.requests[0].System, f.completer.requests[1].System)
	assert.Contains(t, f.completer.requests[0].System, "Lore: l1. l2. l3. Biography: b1. b2.")
}

func TestRespondFoldsActionResultIntoContext(t *testing.T) {
	f := newFixture()
	f.detector.action = actions.New(actions.PredictPriceParams{Ticker: "DOGE", Timeframe: "5m"})
	f.executor.result = actions.Result{
		Type:  actions.TypePredictPrice,
		Error: "Price prediction is not available for **DOGE**.\nOnly BTC, ETH and SOL are supported.",
	}

	resp, err := f.orch.Respond(context.Background(), Request{
		Persona: testPersona(),
		Message: llm.UserMessage(llm.Multipart(llm.TextPart("predict DOGE "), llm.ImagePart("https://img.example/x.png"), llm.TextPart("in 5m"))),
	})
	require.NoError(t, err)

	assert.Equal(t, "predict DOGE in 5m", f.detector.got)
	require.NotNil(t, resp.Action)
	assert.Equal(t, actions.TypePredictPrice, resp.Action.Type)
	assert.False(t, resp.Action.Success)
	assert.Contains(t, f.completer.requests[0].System, "Only BTC, ETH and SOL are supported.")
}

func TestRespondFillsBalanceAddressFromText(t *testing.T) {
	f := newFixture()
	f.detector.action = actions.New(actions.GetBalanceParams{})
	f.executor.result = actions.Result{Type: actions.TypeGetBalance, Success: true, Message: "Wallet balances: S: 1."}

	_, err := f.orch.Respond(context.Background(), Request{
		Persona: testPersona(),
		Message: llm.UserMessage(llm.Text("balances of 0x50c42deacd8fc9773493ed674b675be577f2634b")),
	})
	require.NoError(t, err)
	require.Len(t, f.executor.got, 1)
	params := f.executor.got[0].Params.(actions.GetBalanceParams)
	assert.Equal(t, "0x50c42dEAcD8Fc9773493ED674b675bE577f2634b", params.Address)
}

func TestRespondCompletionFailureIsTerminal(t *testing.T) {
	f := newFixture()
	f.completer.err = errors.New("502 from upstream")

	_, err := f.orch.Respond(context.Background(), Request{Persona: testPersona(), Message: llm.UserMessage(llm.Text("hi"))})
	require.Error(t, err)
	assert.Equal(t, clierr.CodeUnavailable, clierr.CodeOf(err))
	cErr, ok := clierr.As(err)
	require.True(t, ok)
	assert.Equal(t, "could not generate a response", cErr.Message)
}

func TestRespondEmptyCompletionUsesFallback(t *testing.T) {
	f := newFixture()
	f.completer.reply = ""

	resp, err := f.orch.Respond(context.Background(), Request{Persona: testPersona(), Message: llm.UserMessage(llm.Text("hi"))})
	require.NoError(t, err)
	assert.Equal(t, FallbackReply, resp.Response)
	assert.Equal(t, FallbackReply, resp.PlainText())
}

func TestValidateHistoryRejectsUnknownRole(t *testing.T) {
	err := ValidateHistory([]llm.Message{{Role: "tool", Content: llm.Text("x")}})
	assert.Equal(t, clierr.CodeUsage, clierr.CodeOf(err))
	assert.NoError(t, ValidateHistory(history(MaxHistory)))
}
