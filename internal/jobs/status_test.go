package jobs

import (
	"errors"
	"testing"
)

func TestParseStatus(t *testing.T) {
	cases := map[string]Status{
		"created":     StatusCreated,
		"queued":      StatusQueued,
		"started":     StatusStarted,
		"in_progress": StatusInProgress,
		"finished":    StatusFinished,
		"failed":      StatusFailed,
	}
	for wire, want := range cases {
		got, err := ParseStatus(wire)
		if err != nil {
			t.Fatalf("ParseStatus(%q) returned error: %v", wire, err)
		}
		if got != want {
			t.Fatalf("ParseStatus(%q) = %q, want %q", wire, got, want)
		}
		if got.String() != wire {
			t.Fatalf("round trip of %q gave %q", wire, got.String())
		}
	}
}

func TestParseStatusRejectsUnknown(t *testing.T) {
	for _, wire := range []string{"", "FINISHED", "done", "in-progress", "running"} {
		_, err := ParseStatus(wire)
		if err == nil {
			t.Fatalf("ParseStatus(%q) accepted an unknown value", wire)
		}
		var unknown *UnknownStatusError
		if !errors.As(err, &unknown) {
			t.Fatalf("ParseStatus(%q) returned %T, want *UnknownStatusError", wire, err)
		}
		if unknown.Value != wire {
			t.Fatalf("error carries %q, want %q", unknown.Value, wire)
		}
	}
}

func TestValidateRejectsFabricatedStatus(t *testing.T) {
	if err := Status("exploded").Validate(); err == nil {
		t.Fatal("Validate accepted a status outside the enum")
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []Status{StatusCreated, StatusQueued, StatusStarted, StatusInProgress} {
		if s.Terminal() {
			t.Fatalf("%q reported terminal", s)
		}
	}
	for _, s := range []Status{StatusFinished, StatusFailed} {
		if !s.Terminal() {
			t.Fatalf("%q reported non-terminal", s)
		}
	}
}
