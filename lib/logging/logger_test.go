package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/lni/dragonboat/v4/logger"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]logger.LogLevel{
		"debug":   logger.DEBUG,
		"INFO":    logger.INFO,
		"warn":    logger.WARNING,
		"warning": logger.WARNING,
		"error":   logger.ERROR,
	}
	for in, want := range tests {
		got, err := ParseLogLevel(in)
		if err != nil {
			t.Errorf("ParseLogLevel(%q) failed: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseLogLevel("loud"); err == nil {
		t.Errorf("Expected error for invalid level")
	}
}

func TestLoggerFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	prev := output
	output = &buf
	defer func() { output = prev }()

	l := CreateLogger("lockmgr")
	l.Debugf("hidden %d", 1)
	l.Infof("entry %q created", "REPORT.CSV")
	l.SetLevel(logger.ERROR)
	l.Warningf("hidden too")
	l.Errorf("boom")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Messages below the level were written:\n%s", out)
	}
	if !strings.Contains(out, `INFO  | lockmgr    | entry "REPORT.CSV" created`) {
		t.Errorf("Unexpected info line:\n%s", out)
	}
	if !strings.Contains(out, "ERROR | lockmgr    | boom") {
		t.Errorf("Unexpected error line:\n%s", out)
	}
}

func TestPanicf(t *testing.T) {
	l := CreateLogger("lockmgr")
	defer func() {
		if r := recover(); r != "bad 1" {
			t.Errorf("Expected panic %q, got %v", "bad 1", r)
		}
	}()
	l.Panicf("bad %d", 1)
}
