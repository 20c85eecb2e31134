package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/filebus-org/go-filebus/pkg/bus"
)

func TestExitCodes(t *testing.T) {
	ranCommand = true
	tests := []struct {
		err  error
		want int
	}{
		{nil, exitOK},
		{errors.New("boom"), exitError},
		{fmt.Errorf("q: %w", bus.ErrDirNotFound), exitDirNotFound},
		{fmt.Errorf("e: %w", bus.ErrNotFound), exitNotFound},
		{fmt.Errorf("p: %w", bus.ErrInvalidArgs), exitBadArgs},
		{fmt.Errorf("n: %w", bus.ErrInvalidName), exitBadArgs},
		{fmt.Errorf("d: %w", bus.ErrDeduplicated), exitDeduped},
		{fmt.Errorf("a: %w", bus.ErrAlreadyAcked), exitAlreadyAcked},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{
		"publish": false, "check": false, "read": false,
		"ack": false, "ack-all": false, "status": false, "prune": false,
	}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}
