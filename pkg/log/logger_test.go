package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func newBufferLogger(t *testing.T, level Level, opts ...LoggerOption) (Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	all := append([]LoggerOption{
		WithLevel(level),
		WithFormatter(&TextFormatter{DisableTimestamp: true}),
		WithOutput(&ConsoleOutput{Writer: buf}),
	}, opts...)
	return NewLogger(all...), buf
}

func TestLevelGate(t *testing.T) {
	l, buf := newBufferLogger(t, WarnLevel)
	l.Info("hidden")
	l.Warn("shown", Str("queue", "jobs"))
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info should be filtered: %q", out)
	}
	if !strings.Contains(out, "WARN  shown queue=jobs") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestWithFieldsAndError(t *testing.T) {
	l, buf := newBufferLogger(t, DebugLevel)
	l.With(Component("poller")).WithError(errors.New("boom")).Debug("failed")
	out := buf.String()
	for _, want := range []string{"component=poller", "error=boom", "DEBUG failed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}

func TestRedaction(t *testing.T) {
	l, buf := newBufferLogger(t, InfoLevel, WithRedaction("password"))
	l.Info("login", Str("password", "hunter2"))
	if strings.Contains(buf.String(), "hunter2") {
		t.Fatalf("value not redacted: %q", buf.String())
	}
}

func TestSampling(t *testing.T) {
	l, buf := newBufferLogger(t, InfoLevel, WithSampling(1, 3))
	for i := 0; i < 7; i++ {
		l.Info("tick")
	}
	// n=0 passes the initial budget, then n=1 and n=4 pass the 1-in-3 sampler
	if got := strings.Count(buf.String(), "tick"); got != 3 {
		t.Fatalf("want 3 sampled lines, got %d", got)
	}
}

type failingOutput struct{}

func (failingOutput) Write(*Entry, []byte) error { return errors.New("disk full") }
func (failingOutput) Close() error               { return nil }

func TestOutputFailureIsSwallowed(t *testing.T) {
	l := NewLogger(WithOutput(failingOutput{}))
	l.Error("still fine")
}

func TestApplyConfig(t *testing.T) {
	if _, err := ApplyConfig(&Config{Level: "verbose"}); err == nil {
		t.Fatalf("expected bad level error")
	}
	if _, err := ApplyConfig(&Config{Format: "xml"}); err == nil {
		t.Fatalf("expected bad format error")
	}
	l, err := ApplyConfig(&Config{Level: "debug", Format: "json", Outputs: []string{"null"}})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if l.GetLevel() != DebugLevel {
		t.Fatalf("level not applied")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DebugLevel},
		{"", InfoLevel},
		{"warning", WarnLevel},
		{"ERROR", ErrorLevel},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil || got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestCallerPointsAtCallSite(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewLogger(
		WithFormatter(&TextFormatter{DisableTimestamp: true, ShowCaller: true}),
		WithOutput(&ConsoleOutput{Writer: buf}),
	)
	l.With(Component("poller")).Info("claimed")
	if !strings.Contains(buf.String(), "caller=") || !strings.Contains(buf.String(), "logger_test.go:") {
		t.Fatalf("caller should name the test file: %q", buf.String())
	}
}

func TestWithDoesNotLeakToParent(t *testing.T) {
	l, buf := newBufferLogger(t, InfoLevel)
	_ = l.With(Str("queue", "jobs"))
	l.Info("plain")
	if strings.Contains(buf.String(), "queue=") {
		t.Fatalf("parent picked up child fields: %q", buf.String())
	}
}
