package log

import "testing"

func TestLevelFromDebugEnv(t *testing.T) {
	cases := map[string]Level{
		"Trace":       DebugLevel,
		"Log":         InfoLevel,
		"Warning":     WarnLevel,
		"Error":       ErrorLevel,
		"unexpected":  InfoLevel,
		"":            InfoLevel,
	}
	for input, want := range cases {
		if got := LevelFromDebugEnv(input); got != want {
			t.Errorf("LevelFromDebugEnv(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestTraceOnOffByArea(t *testing.T) {
	TraceOff()
	if Tracing("storage") {
		t.Fatal("expected no area traced by default")
	}

	TraceOn("storage")
	if !Tracing("storage") {
		t.Fatal("expected storage to be traced")
	}
	if Tracing("query") {
		t.Fatal("expected query to remain untraced")
	}

	TraceOff("storage")
	if Tracing("storage") {
		t.Fatal("expected storage tracing to be cleared")
	}
}

func TestTraceOnGlobalCoversAnyArea(t *testing.T) {
	TraceOff()
	TraceOn()
	if !Tracing("anything") {
		t.Fatal("expected global trace to cover any area")
	}
	TraceOff()
	if Tracing("anything") {
		t.Fatal("expected global trace off to clear all areas")
	}
}
