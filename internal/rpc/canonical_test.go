package rpc

import (
	"strings"
	"testing"
)

func TestCanonicalBuilderEncodesEachTypeOnce(t *testing.T) {
	got := newCanonicalBuilder().
		Str("name", "agent").
		Int("count", 7).
		Bool("flag_true", true).
		Bool("flag_false", false).
		F32Bits("threshold", 85.0).
		Repeated("tags", []string{"a", "b"}).
		Build()

	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	want := []string{
		"name=YWdlbnQ=",
		"count=7",
		"flag_true=1",
		"flag_false=0",
		"threshold_f32bits=1118437376",
		"tags_count=2",
		"tags_0=YQ==",
		"tags_1=Yg==",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d: %v", len(lines), len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestCanonicalBuilderEmptyStringEncodesAsEmptyBase64(t *testing.T) {
	got := newCanonicalBuilder().Str("blocked_reason", "").Build()
	if got != "blocked_reason=\n" {
		t.Errorf("got %q, want %q", got, "blocked_reason=\n")
	}
}

func TestCanonicalBuilderIsDeterministic(t *testing.T) {
	build := func() string {
		return newCanonicalBuilder().Str("a", "x").Int("b", 1).Bool("c", true).Build()
	}
	first := build()
	for i := 0; i < 5; i++ {
		if got := build(); got != first {
			t.Fatalf("non-deterministic output: %q vs %q", got, first)
		}
	}
}
