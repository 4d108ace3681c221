package util

import (
	"strings"

	"github.com/ValentinKolb/namedlock/lib/lockmgr"
	"github.com/ValentinKolb/namedlock/lib/logging"
	"github.com/VictoriaMetrics/metrics"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Logger is the logger shared by all commands
var Logger = logger.GetLogger("cmd")

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupManagerFlags adds the lock manager flags to a command
func SetupManagerFlags(cmd *cobra.Command) {
	key := "log-level"
	cmd.PersistentFlags().String(key, "info", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	key = "manager-name"
	cmd.PersistentFlags().String(key, "default", WrapString("Name of the lock manager (used as label in logs and metrics)"))

	key = "detect-reentrancy"
	cmd.PersistentFlags().Bool(key, false, WrapString("Fail fast with an error instead of deadlocking when a call chain acquires a name it already holds"))

	key = "ignore-cancellation"
	cmd.PersistentFlags().Bool(key, false, WrapString("DEVELOPMENT ONLY: waits ignore cancellation and timeouts (keeps locks from timing out while debugging)"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("namedlock")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// InitLogging sets up the loggers with the configured level
func InitLogging() error {
	return logging.InitLoggers(viper.GetString("log-level"))
}

// GetManagerOptions reads the lock manager options from viper.
// set may be nil, in which case the manager uses a private metrics set.
func GetManagerOptions(set *metrics.Set) *lockmgr.Options {
	opts := &lockmgr.Options{
		Name:               viper.GetString("manager-name"),
		DetectReentrancy:   viper.GetBool("detect-reentrancy"),
		IgnoreCancellation: viper.GetBool("ignore-cancellation"),
		Metrics:            set,
	}
	Logger.Debugf("lock manager options: %s", opts.String())
	return opts
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
