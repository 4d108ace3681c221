package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/namedlock/cmd/lock"
	"github.com/ValentinKolb/namedlock/cmd/perf"
	"github.com/ValentinKolb/namedlock/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "namedlock",
		Short: "in-process named lock manager",
		Long: fmt.Sprintf(`namedlock (v%s)

Mutual exclusion keyed by an arbitrary, case-insensitive name for goroutines
of one process. This tool runs scenarios and benchmarks against the lock
manager library. Configuration can be set via command line flags or
environment variables in the format NAMEDLOCK_<flag> (e.g. NAMEDLOCK_LOG_LEVEL=debug).`, Version),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := util.BindCommandFlags(cmd); err != nil {
				return err
			}
			return util.InitLogging()
		},
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of namedlock",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "namedlock v%s\n", Version)
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(lock.LockCommands)
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	util.SetupManagerFlags(RootCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
