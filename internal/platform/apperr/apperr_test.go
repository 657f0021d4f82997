package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{NotFound("doctor", 7), "not_found", http.StatusNotFound},
		{ErrInvalidRange, "invalid_range", http.StatusBadRequest},
		{ErrPastDate, "past_date", http.StatusBadRequest},
		{ErrInvalidDate, "invalid_date", http.StatusBadRequest},
		{ErrOverlap, "overlap", http.StatusBadRequest},
		{ErrMismatch, "mismatch", http.StatusBadRequest},
		{Validationf("bad"), "validation", http.StatusBadRequest},
		{Conflictf("taken"), "conflict", http.StatusConflict},
		{ErrAlreadyCanceled, "already_canceled", http.StatusConflict},
		{InvalidTransitionf("nope"), "invalid_transition", http.StatusConflict},
		{errors.New("boom"), "internal", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		code, status := Classify(tc.err)
		if code != tc.code || status != tc.status {
			t.Errorf("Classify(%v) = (%s, %d), want (%s, %d)", tc.err, code, status, tc.code, tc.status)
		}
	}
}

func TestClassify_Wrapped(t *testing.T) {
	err := fmt.Errorf("book appointment: %w", Conflictf("slot taken"))
	if !errors.Is(err, ErrConflict) {
		t.Fatal("expected wrapped error to match ErrConflict")
	}
	if HTTPStatus(err) != http.StatusConflict {
		t.Errorf("expected 409, got %d", HTTPStatus(err))
	}
}

func TestNotFound_Message(t *testing.T) {
	err := NotFound("patient", "abc")
	if err.Error() != "patient not found with id: abc" {
		t.Errorf("unexpected message: %s", err.Error())
	}
	if !Is(err) {
		t.Error("expected domain error")
	}
	if Is(errors.New("x")) {
		t.Error("plain error must not be a domain error")
	}
}
