package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	clierr "github.com/kelreel/sonichash/internal/errors"
)

func TestStatusOf(t *testing.T) {
	assert.Equal(t, StatusOK, StatusOf(nil))
	assert.Equal(t, StatusError, StatusOf(errors.New("boom")))
	assert.Equal(t, StatusAuthError, StatusOf(clierr.New(clierr.CodeAuth, "bad key")))
	assert.Equal(t, StatusRateLimited, StatusOf(clierr.New(clierr.CodeRateLimited, "slow down")))
	assert.Equal(t, StatusUnavailable, StatusOf(clierr.Wrap(clierr.CodeUnavailable, "down", errors.New("503"))))
	assert.Equal(t, StatusError, StatusOf(clierr.New(clierr.CodeNotFound, "missing")))
}

func TestObserve(t *testing.T) {
	st := Observe("coingecko", time.Now().Add(-50*time.Millisecond), nil)
	assert.Equal(t, "coingecko", st.Name)
	assert.Equal(t, StatusOK, st.Status)
	assert.GreaterOrEqual(t, st.LatencyMS, int64(50))
}

func TestFailureEnvelope(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	env := Failure("chat", at, clierr.Wrap(clierr.CodeNotFound, "persona not found", errors.New("ghost")), nil)

	assert.False(t, env.Success)
	assert.Equal(t, []any{}, env.Data)
	if assert.NotNil(t, env.Error) {
		assert.Equal(t, 14, env.Error.Code)
		assert.Equal(t, "not_found", env.Error.Type)
		assert.Equal(t, "persona not found: ghost", env.Error.Message)
	}
	assert.Equal(t, at.UTC(), env.Meta.Timestamp)
	assert.NotEmpty(t, env.Meta.RequestID)
}

func TestFailureEnvelopeUncodedError(t *testing.T) {
	env := Failure("prices", time.Now(), errors.New("boom"), nil)
	assert.Equal(t, "internal_error", env.Error.Type)
	assert.Equal(t, "boom", env.Error.Message)
}

func TestSuccessEnvelope(t *testing.T) {
	env := Success("prices", time.Now(), map[string]string{"S": "0.5"}, []string{"stale"}, nil)
	assert.True(t, env.Success)
	assert.Nil(t, env.Error)
	assert.Equal(t, EnvelopeVersion, env.Version)
	assert.Equal(t, []string{"stale"}, env.Warnings)
}
