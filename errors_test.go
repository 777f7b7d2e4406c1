package uow

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorError(t *testing.T) {
	err := NewError(ErrorKindNotFound, "user not found")

	expected := "not_found: user not found"
	if err.Error() != expected {
		t.Errorf("Expected error message '%s', got '%s'", expected, err.Error())
	}
}

func TestErrorWithCause(t *testing.T) {
	cause := errors.New("database connection failed")
	err := NewErrorWithCause(ErrorKindResource, "failed to open connection", cause)

	if err.Cause != cause {
		t.Error("Expected cause to be set")
	}

	expectedMsg := "resource: failed to open connection (caused by: database connection failed)"
	if err.Error() != expectedMsg {
		t.Errorf("Expected error message '%s', got '%s'", expectedMsg, err.Error())
	}

	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to find the cause")
	}
}

func TestErrorWithCode(t *testing.T) {
	err := NewErrorWithCode(ErrorKindDuplicate, "duplicate key", "23505")
	if err.Code != "23505" {
		t.Errorf("Expected code '23505', got '%s'", err.Code)
	}
}

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("commit provider 1 of 2: %w", NewError(ErrorKindResource, "boom"))

	if !errors.Is(err, NewError(ErrorKindResource, "")) {
		t.Error("Expected wrapped error to match its kind")
	}
	if errors.Is(err, NewError(ErrorKindDisposed, "")) {
		t.Error("Expected wrapped error not to match another kind")
	}
}

func TestErrorKindPredicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"configuration", NewError(ErrorKindConfiguration, "x"), IsConfiguration},
		{"not found", NewError(ErrorKindNotFound, "x"), IsNotFound},
		{"multiple results", NewError(ErrorKindMultipleResults, "x"), IsMultipleResults},
		{"resource", NewError(ErrorKindResource, "x"), IsResource},
		{"disposed", errUnitOfWorkClosed, IsDisposed},
		{"wrapped", fmt.Errorf("outer: %w", errProviderClosed), IsDisposed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(tt.err) {
				t.Errorf("Expected predicate to match %v", tt.err)
			}
		})
	}

	if IsNotFound(errors.New("plain")) {
		t.Error("Expected plain error not to be classified")
	}
	if IsNotFound(nil) {
		t.Error("Expected nil not to be classified")
	}
}
