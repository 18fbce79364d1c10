package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	clierr "github.com/kelreel/sonichash/internal/errors"
	"github.com/kelreel/sonichash/internal/httpx"
	"github.com/kelreel/sonichash/internal/model"
	"github.com/kelreel/sonichash/internal/registry"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Request is one completion call. System is sent as the leading system
// message, followed by Messages in order.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Format      Format
	Temperature float64
}

type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
	model   string
}

func New(httpClient *httpx.Client, baseURL, apiKey, model string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = registry.OpenAIBaseURL
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
	}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:          "llm",
		Type:          "chat-completions",
		RequiresKey:   true,
		Capabilities:  []string{"chat.reply", "actions.detect"},
		KeyEnvVarName: "OPENAI_API_KEY",
	}
}

type completionRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete returns the first choice's text. A response without choices or
// with null content yields an empty string.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	modelName := req.Model
	if modelName == "" {
		modelName = c.model
	}
	messages := make([]Message, 0, len(req.Messages)+1)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: Text(req.System)})
	}
	messages = append(messages, req.Messages...)

	body := completionRequest{
		Model:       modelName,
		Messages:    messages,
		Temperature: req.Temperature,
	}
	if req.Format == FormatJSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "encode completion request", err)
	}

	headers := map[string]string{}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}
	var resp completionResponse
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodPost, c.baseURL+"/chat/completions", buf, headers, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == nil {
		return "", nil
	}
	return *resp.Choices[0].Message.Content, nil
}
