package corelog

import (
	"strings"
	"testing"
)

type recordingSink struct {
	lines []string
}

func (s *recordingSink) Print(args ...interface{}) {
	s.lines = append(s.lines, args[0].(string))
}

func TestParseLevelIsCaseInsensitive(t *testing.T) {
	if ParseLevel("Debug") != LevelDebug {
		t.Errorf("got %v, expected LevelDebug", ParseLevel("Debug"))
	}
	if ParseLevel("nonsense") != LevelUnknown {
		t.Errorf("got %v, expected LevelUnknown for an unrecognized name", ParseLevel("nonsense"))
	}
}

func TestLevelStringRoundTrip(t *testing.T) {
	for level := LevelUnknown; level <= LevelTrace; level++ {
		if ParseLevel(level.String()) != level {
			t.Errorf("level %d did not round trip through String/ParseLevel", level)
		}
	}
}

func TestLogSuppressesBelowConfiguredLevel(t *testing.T) {
	sink := &recordingSink{}
	logger := Wrap(sink, "svc", LevelWarning)

	logger.ILog("should not appear")
	if len(sink.lines) != 0 {
		t.Fatalf("expected info-level log to be suppressed at warning level, got %v", sink.lines)
	}

	logger.WLog("should appear")
	if len(sink.lines) != 1 || !strings.Contains(sink.lines[0], "should appear") {
		t.Fatalf("expected warning-level log to be emitted, got %v", sink.lines)
	}
}

func TestLogErrorEmitsWhenEnabledAndReturnsError(t *testing.T) {
	sink := &recordingSink{}
	logger := Wrap(sink, "svc", LevelError)
	err := logger.LogError(LevelError, "disk full")
	if len(sink.lines) != 1 {
		t.Fatalf("expected the error-level line to be emitted, got %v", sink.lines)
	}
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("got error %v, expected it to contain the logged message", err)
	}
}

func TestLogErrorSuppressedStillReturnsError(t *testing.T) {
	sink := &recordingSink{}
	logger := Wrap(sink, "svc", LevelError)
	err := logger.LogError(LevelDebug, "below threshold")
	if len(sink.lines) != 0 {
		t.Fatalf("expected the debug-level line to be suppressed, got %v", sink.lines)
	}
	if err == nil || !strings.Contains(err.Error(), "below threshold") {
		t.Errorf("got error %v, expected LogError to still return the message as an error", err)
	}
}

func TestForkAppendsPrefix(t *testing.T) {
	sink := &recordingSink{}
	root := Wrap(sink, "bridge", LevelInfo)
	child := root.Fork("channel-%d", 3)

	if child.Prefix() != "bridge: channel-3" {
		t.Errorf("got prefix %q, expected %q", child.Prefix(), "bridge: channel-3")
	}
	if child.GetLevel() != LevelInfo {
		t.Error("expected Fork to inherit the parent's level")
	}
}

func TestForkFromEmptyPrefix(t *testing.T) {
	sink := &recordingSink{}
	root := Wrap(sink, "", LevelInfo)
	child := root.Fork("worker")

	if child.Prefix() != "worker" {
		t.Errorf("got prefix %q, expected %q", child.Prefix(), "worker")
	}
}

func TestErrorCarriesPrefixWithoutLogging(t *testing.T) {
	sink := &recordingSink{}
	logger := Wrap(sink, "proxy", LevelInfo)

	err := logger.Errorf("bad opcode %d", 7)
	if err == nil || !strings.Contains(err.Error(), "proxy: bad opcode 7") {
		t.Errorf("got error %v, expected it to contain the logger's prefix", err)
	}
	if len(sink.lines) != 0 {
		t.Errorf("expected Errorf not to emit a log line, got %v", sink.lines)
	}
}

func TestSetLevelChangesSuppression(t *testing.T) {
	sink := &recordingSink{}
	logger := Wrap(sink, "svc", LevelError)

	logger.DLog("hidden")
	if len(sink.lines) != 0 {
		t.Fatalf("expected debug log to be hidden at error level, got %v", sink.lines)
	}

	logger.SetLevel(LevelDebug)
	logger.DLog("visible")
	if len(sink.lines) != 1 {
		t.Fatalf("expected debug log to be visible after raising the level, got %v", sink.lines)
	}
}
