package util

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		if len(line) > Wrap {
			t.Errorf("Line longer than %d characters: %q", Wrap, line)
		}
	}

	if got := WrapString("short text"); got != "short text" {
		t.Errorf("Expected short text unchanged, got %q", got)
	}
}

func TestGetManagerOptions(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cmd := &cobra.Command{Use: "test"}
	SetupManagerFlags(cmd)
	if err := cmd.PersistentFlags().Parse([]string{"--manager-name=files", "--detect-reentrancy"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
		t.Fatalf("BindPFlags failed: %v", err)
	}

	opts := GetManagerOptions(nil)
	if opts.Name != "files" {
		t.Errorf("Expected name files, got %q", opts.Name)
	}
	if !opts.DetectReentrancy {
		t.Errorf("Expected DetectReentrancy")
	}
	if opts.IgnoreCancellation {
		t.Errorf("Expected IgnoreCancellation to be off by default")
	}
}

func TestGetManagerOptionsFromEnv(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	t.Setenv("NAMEDLOCK_IGNORE_CANCELLATION", "true")
	InitConfig()

	if !GetManagerOptions(nil).IgnoreCancellation {
		t.Errorf("Expected IgnoreCancellation from environment")
	}
}
