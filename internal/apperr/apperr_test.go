package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_IsMatchesOnlyItsKind(t *testing.T) {
	upstream := errors.New("503 from upstream")
	err := Generation("prediction.Generate", upstream)

	if !errors.Is(err, ErrGeneration) {
		t.Error("expected errors.Is(err, ErrGeneration)")
	}
	if errors.Is(err, ErrAuth) || errors.Is(err, ErrPersistence) {
		t.Error("generation error should not match other kinds")
	}
	if !errors.Is(err, upstream) {
		t.Error("expected the cause to remain reachable")
	}
}

func TestWrap_KeepsExistingKind(t *testing.T) {
	inner := Persistence("store.AppendMessage", errors.New("disk full"))
	outer := Generation("chat.SendMessage", fmt.Errorf("append reply: %w", inner))

	if KindOf(outer) != KindPersistence {
		t.Errorf("KindOf = %q, want %q", KindOf(outer), KindPersistence)
	}
}

func TestKindOf_Unclassified(t *testing.T) {
	if k := KindOf(errors.New("plain")); k != "" {
		t.Errorf("KindOf = %q, want empty", k)
	}
	if k := KindOf(nil); k != "" {
		t.Errorf("KindOf(nil) = %q, want empty", k)
	}
}

func TestFieldErrors(t *testing.T) {
	fe := FieldErrors{"name": "too short", "birthCity": "too short"}
	err := Validation("intake", fe)

	if !errors.Is(err, ErrValidation) {
		t.Error("expected validation kind")
	}
	got := Fields(err)
	if len(got) != 2 || got["name"] != "too short" {
		t.Errorf("Fields = %v, want both entries", got)
	}
	if fe.Error() != "birthCity: too short; name: too short" {
		t.Errorf("Error() = %q, want sorted entries", fe.Error())
	}
}
