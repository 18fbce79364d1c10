// Package model holds the output envelope shared by every CLI command.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	clierr "github.com/kelreel/sonichash/internal/errors"
)

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string           `json:"request_id"`
	Timestamp time.Time        `json:"timestamp"`
	Command   string           `json:"command"`
	Providers []ProviderStatus `json:"providers,omitempty"`
}

// Upstream call outcomes reported in EnvelopeMeta.Providers.
const (
	StatusOK          = "ok"
	StatusError       = "error"
	StatusAuthError   = "auth_error"
	StatusRateLimited = "rate_limited"
	StatusUnavailable = "unavailable"
)

type ProviderStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

// Observe records one upstream call that started at start and ended with err.
func Observe(name string, start time.Time, err error) ProviderStatus {
	return ProviderStatus{
		Name:      name,
		Status:    StatusOf(err),
		LatencyMS: time.Since(start).Milliseconds(),
	}
}

func StatusOf(err error) string {
	if err == nil {
		return StatusOK
	}
	cErr, ok := clierr.As(err)
	if !ok {
		return StatusError
	}
	switch cErr.Code {
	case clierr.CodeAuth:
		return StatusAuthError
	case clierr.CodeRateLimited:
		return StatusRateLimited
	case clierr.CodeUnavailable:
		return StatusUnavailable
	default:
		return StatusError
	}
}

// ProviderInfo describes an upstream the agent talks to. Keys are read from
// KeyEnvVarName and never echoed.
type ProviderInfo struct {
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	RequiresKey   bool     `json:"requires_key"`
	Capabilities  []string `json:"capabilities"`
	KeyEnvVarName string   `json:"key_env_var,omitempty"`
}

// Success wraps a command result.
func Success(command string, at time.Time, data any, warnings []string, providers []ProviderStatus) Envelope {
	return Envelope{
		Version:  EnvelopeVersion,
		Success:  true,
		Data:     data,
		Warnings: warnings,
		Meta:     newMeta(command, at, providers),
	}
}

// Failure wraps err. Errors without a code are reported as internal.
func Failure(command string, at time.Time, err error, providers []ProviderStatus) Envelope {
	body := &ErrorBody{
		Code:    clierr.ExitCode(err),
		Type:    clierr.TypeName(clierr.CodeInternal),
		Message: err.Error(),
	}
	if cErr, ok := clierr.As(err); ok {
		body.Type = clierr.TypeName(cErr.Code)
		body.Message = cErr.Message
		if cErr.Cause != nil {
			body.Message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
	}
	return Envelope{
		Version: EnvelopeVersion,
		Data:    []any{},
		Error:   body,
		Meta:    newMeta(command, at, providers),
	}
}

func newMeta(command string, at time.Time, providers []ProviderStatus) EnvelopeMeta {
	return EnvelopeMeta{
		RequestID: uuid.NewString(),
		Timestamp: at.UTC(),
		Command:   command,
		Providers: providers,
	}
}
