package main

import (
	"testing"

	"github.com/agentutil/membox/internal/memory"
)

func TestTruncateString(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly-10", 10, "exactly-10"},
		{"this one is too long", 10, "this on..."},
		{"記憶記憶記憶記憶", 6, "記憶記..."},
	}
	for _, tt := range tests {
		if got := truncateString(tt.in, tt.maxLen); got != tt.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("one\ntwo"); got != "one" {
		t.Errorf("firstLine() = %q, want %q", got, "one")
	}
	if got := firstLine("single"); got != "single" {
		t.Errorf("firstLine() = %q, want %q", got, "single")
	}
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		kind memory.ErrorKind
		want int
	}{
		{memory.KindValidation, ExitDataError},
		{memory.KindSecurity, ExitDataError},
		{memory.KindLockTimeout, ExitLockTimeout},
		{memory.KindStorage, ExitError},
		{memory.KindDatabase, ExitError},
	}
	for _, tt := range tests {
		err := memory.Ef(tt.kind, "op", "boom")
		if got := exitCodeFor(err); got != tt.want {
			t.Errorf("exitCodeFor(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}
