package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	apperrors "github.com/morningpages/streakd/internal/platform/errors"
)

func TestErrorIs_MatchesByCode(t *testing.T) {
	err := apperrors.New(apperrors.CodeNotFound, "projection missing")
	if !stderrors.Is(err, apperrors.New(apperrors.CodeNotFound, "other message")) {
		t.Fatal("expected errors with the same code to match")
	}
	if stderrors.Is(err, apperrors.New(apperrors.CodeProjectionStale, "stale")) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestWrap_UnwrapsToCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := apperrors.Wrap(apperrors.CodeStoreFailed, "save projection", cause)
	if !stderrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable via errors.Is")
	}
}

func TestCodeOf_WalksWrappedChain(t *testing.T) {
	inner := apperrors.New(apperrors.CodeProjectionStale, "stale write")
	outer := fmt.Errorf("compute user: %w", inner)
	if got := apperrors.CodeOf(outer); got != apperrors.CodeProjectionStale {
		t.Fatalf("expected PROJECTION_STALE, got %s", got)
	}
	if got := apperrors.CodeOf(stderrors.New("plain")); got != apperrors.CodeUnknown {
		t.Fatalf("expected UNKNOWN for plain error, got %s", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code apperrors.Code
		want int
	}{
		{apperrors.CodeUserIDRequired, http.StatusBadRequest},
		{apperrors.CodeNotFound, http.StatusNotFound},
		{apperrors.CodeProjectionStale, http.StatusConflict},
		{apperrors.CodeEventSeqGap, http.StatusUnprocessableEntity},
		{apperrors.CodeUnknown, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		if got := tc.code.HTTPStatus(); got != tc.want {
			t.Fatalf("%s: expected status %d, got %d", tc.code, tc.want, got)
		}
	}
}
