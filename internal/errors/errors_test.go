package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestExitCodeUnwrapsWrappedErrors(t *testing.T) {
	base := New(CodeUnavailable, "price oracle unavailable")
	wrapped := fmt.Errorf("build context: %w", base)
	if got := ExitCode(wrapped); got != int(CodeUnavailable) {
		t.Fatalf("expected exit %d, got %d", CodeUnavailable, got)
	}
	if got := ExitCode(stderrors.New("boom")); got != int(CodeInternal) {
		t.Fatalf("expected internal exit code for untyped error, got %d", got)
	}
	if got := ExitCode(nil); got != 0 {
		t.Fatalf("expected 0 for nil error, got %d", got)
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[Code]int{
		CodeUsage:       http.StatusBadRequest,
		CodeAuth:        http.StatusForbidden,
		CodeNotFound:    http.StatusNotFound,
		CodeRateLimited: http.StatusTooManyRequests,
		CodeUnavailable: http.StatusBadGateway,
		CodeInternal:    http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := HTTPStatus(New(code, "x")); got != want {
			t.Fatalf("code %d: expected status %d, got %d", code, want, got)
		}
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Wrap(CodeUnavailable, "could not generate a response", stderrors.New("timeout"))
	if err.Error() != "could not generate a response: timeout" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if !stderrors.Is(err, err.Cause) {
		t.Fatal("expected Unwrap to expose the cause")
	}
}
