package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_ErrorString(t *testing.T) {
	err := New(KindAuth, "invalid_credentials", "invalid email or password")
	if err.Error() != "auth (invalid_credentials): invalid email or password" {
		t.Fatalf("unexpected error string: %q", err.Error())
	}

	root := errors.New("root cause")
	wrapped := Wrap(KindInternal, "hash_failed", "hash failed", root)
	if !errors.Is(wrapped, root) {
		t.Fatalf("expected errors.Is to match cause")
	}
	if errors.Unwrap(wrapped) != root {
		t.Fatalf("unwrap did not return cause")
	}
}

func TestIs_MatchesCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", ErrUserNotFound())

	if !Is(err, "user_not_found") {
		t.Fatalf("expected code match")
	}
	if Is(err, "something_else") {
		t.Fatalf("unexpected code match")
	}
	if Is(errors.New("plain"), "user_not_found") {
		t.Fatalf("plain error should not match")
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(ErrEmailAlreadyExists()) != KindConflict {
		t.Fatalf("expected conflict kind")
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatalf("non-domain errors should be internal")
	}
}

func TestConstructors_Meta(t *testing.T) {
	if ErrInvalidRole("root").Meta["role"] != "root" {
		t.Fatalf("expected role meta")
	}
	if ErrRateLimited("login").Meta["scope"] != "login" {
		t.Fatalf("expected scope meta")
	}
	if ErrInsufficientRole(RoleAdmin).Meta["required"] != "admin" {
		t.Fatalf("expected required meta")
	}
}
