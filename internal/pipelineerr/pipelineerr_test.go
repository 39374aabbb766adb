package pipelineerr

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestCodeOfExtractsWrappedCode(t *testing.T) {
	base := New(BudgetExceeded, "features", "timed out", errors.New("deadline exceeded"))
	wrapped := errors.New("outer: " + base.Error())

	if CodeOf(base) != BudgetExceeded {
		t.Fatalf("CodeOf(base) = %s, want BUDGET_EXCEEDED", CodeOf(base))
	}
	// A plain wrapped string error (not errors.Is/As compatible) defaults
	// to Internal since it was never chained via %w.
	if CodeOf(wrapped) != Internal {
		t.Fatalf("CodeOf(plain error) = %s, want INTERNAL", CodeOf(wrapped))
	}
}

func TestCodeOfThroughFmtErrorfWrap(t *testing.T) {
	base := New(ModelUnavailable, "ml", "champion down", nil)
	outer := errorfWrap(base)

	if CodeOf(outer) != ModelUnavailable {
		t.Fatalf("CodeOf(outer) = %s, want MODEL_UNAVAILABLE", CodeOf(outer))
	}
}

func errorfWrap(err error) error {
	return &wrapper{err}
}

type wrapper struct{ err error }

func (w *wrapper) Error() string { return "wrapped: " + w.err.Error() }
func (w *wrapper) Unwrap() error { return w.err }

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		code Code
		want int
	}{
		{Validation, http.StatusBadRequest},
		{DependencyUnavailable, http.StatusServiceUnavailable},
		{BudgetExceeded, http.StatusGatewayTimeout},
		{ModelUnavailable, http.StatusServiceUnavailable},
		{PolicyUndefined, http.StatusUnprocessableEntity},
		{Internal, http.StatusInternalServerError},
		{Code("unknown"), http.StatusInternalServerError},
	}

	for _, c := range cases {
		if got := HTTPStatus(c.code); got != c.want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", c.code, got, c.want)
		}
	}
}

func TestErrorStringIncludesStageAndCause(t *testing.T) {
	err := New(Internal, "policy", "no active policy", errors.New("boom"))
	msg := err.Error()
	if !strings.Contains(msg, "[policy]") || !strings.Contains(msg, "boom") {
		t.Fatalf("error message %q does not include stage %q and cause %q", msg, "policy", "boom")
	}
}
