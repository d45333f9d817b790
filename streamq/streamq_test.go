package streamq

import (
	"errors"
	"fmt"
	"testing"
)

func TestTerminalWrapping(t *testing.T) {
	base := errors.New("boom")
	te := Terminal(base)
	if !IsTerminal(te) {
		t.Fatal("expected terminal")
	}
	if !errors.Is(te, base) {
		t.Fatal("expected unwrap to base error")
	}
	if IsTerminal(base) {
		t.Fatal("plain error must not be terminal")
	}
	// wrapped terminal stays terminal
	if !IsTerminal(fmt.Errorf("outer: %w", te)) {
		t.Fatal("wrapped terminal lost")
	}
}

func TestTerminalNil(t *testing.T) {
	te := Terminal(nil)
	if !IsTerminal(te) {
		t.Fatal("Terminal(nil) must still be terminal")
	}
	if te.Error() != "terminal" {
		t.Fatalf("unexpected message %q", te.Error())
	}
}
