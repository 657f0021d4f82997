package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medbook/medbook/internal/platform/apperr"
)

func renderError(t *testing.T, err error) (int, ErrorBody) {
	t.Helper()
	c, rec := newContext(http.MethodGet, "/")
	ErrorHandler(zerolog.Nop())(err, c)

	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return rec.Code, body
}

func TestErrorHandler_DomainErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{apperr.NotFound("doctor", 7), http.StatusNotFound, "not_found"},
		{apperr.Newf(apperr.ErrOverlap, "overlaps"), http.StatusBadRequest, "overlap"},
		{apperr.Newf(apperr.ErrPastDate, "past"), http.StatusBadRequest, "past_date"},
		{apperr.Conflictf("taken"), http.StatusConflict, "conflict"},
		{apperr.Newf(apperr.ErrAlreadyCanceled, "again"), http.StatusConflict, "already_canceled"},
		{fmt.Errorf("book: %w", apperr.Conflictf("taken")), http.StatusConflict, "conflict"},
	}
	for _, tt := range tests {
		status, body := renderError(t, tt.err)
		if status != tt.status || body.Error != tt.code {
			t.Errorf("%v: got %d %s, want %d %s", tt.err, status, body.Error, tt.status, tt.code)
		}
		if body.Message != tt.err.Error() {
			t.Errorf("expected message %q, got %q", tt.err.Error(), body.Message)
		}
	}
}

func TestErrorHandler_MasksInternalErrors(t *testing.T) {
	status, body := renderError(t, errors.New("pq: password authentication failed"))
	if status != http.StatusInternalServerError || body.Error != "internal" {
		t.Fatalf("got %d %+v", status, body)
	}
	if body.Message != "internal server error" {
		t.Errorf("internal detail leaked: %s", body.Message)
	}
}

func TestErrorHandler_EchoErrors(t *testing.T) {
	status, body := renderError(t, echo.NewHTTPError(http.StatusBadRequest, "invalid id"))
	if status != http.StatusBadRequest || body.Error != "validation" || body.Message != "invalid id" {
		t.Errorf("got %d %+v", status, body)
	}

	status, body = renderError(t, echo.ErrNotFound)
	if status != http.StatusNotFound || body.Error != "not_found" {
		t.Errorf("got %d %+v", status, body)
	}

	status, body = renderError(t, echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded"))
	if status != http.StatusTooManyRequests || body.Error != "rate_limited" {
		t.Errorf("got %d %+v", status, body)
	}
}

func TestErrorHandler_SkipsCommittedResponse(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/")
	_ = c.String(http.StatusOK, "partial")
	ErrorHandler(zerolog.Nop())(apperr.Conflictf("late"), c)
	if rec.Code != http.StatusOK || rec.Body.String() != "partial" {
		t.Errorf("committed response was rewritten: %d %s", rec.Code, rec.Body.String())
	}
}
