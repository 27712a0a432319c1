package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
		code string
	}{
		{Validation("goal %d out of range", 120), http.StatusBadRequest, CodeInvalidInput},
		{Conflict("already taken"), http.StatusConflict, CodeConflict},
		{NotFound("home", 7), http.StatusNotFound, CodeNotFound},
		{Forbidden("member %d not in home", 3), http.StatusForbidden, CodeForbidden},
		{errors.New("disk I/O error"), http.StatusInternalServerError, CodeInternalError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
		if got := Code(tt.err); got != tt.code {
			t.Errorf("Code(%v) = %q, want %q", tt.err, got, tt.code)
		}
	}
}

func TestWrappedDomainErrors(t *testing.T) {
	errTaken := fmt.Errorf("%w: cancellation already taken", ErrConflict)
	wrapped := fmt.Errorf("take: %w", errTaken)

	if !errors.Is(wrapped, errTaken) {
		t.Error("expected wrapped error to match specific sentinel")
	}
	if !errors.Is(wrapped, ErrConflict) {
		t.Error("expected wrapped error to match ErrConflict")
	}
	if !IsDomain(wrapped) {
		t.Error("expected IsDomain = true")
	}
	if IsDomain(errors.New("connection refused")) {
		t.Error("expected IsDomain = false for dependency error")
	}
}

func TestNotFoundMessage(t *testing.T) {
	err := NotFound("task", 42)
	if err.Error() != "not found: task 42" {
		t.Errorf("message = %q", err.Error())
	}
}
