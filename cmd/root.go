package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/nibble/cmd/check"
	"github.com/ValentinKolb/nibble/cmd/perf"
	"github.com/ValentinKolb/nibble/cmd/sim"
	"github.com/ValentinKolb/nibble/cmd/util"
	"github.com/ValentinKolb/nibble/lib/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "nibble",
		Short: "embedded radix-16 trie index",
		Long: fmt.Sprintf(`nibble (v%s)

An embedded index from 64 bit keys to 64 bit values, built as a
path-compressed radix-16 trie in a single relocatable arena, with a
sharded engine and an entity registry on top.`, Version),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := viper.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			return common.InitLoggers(viper.GetString("log-level"))
		},
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of nibble",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("nibble v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(check.CheckCmd)
	RootCmd.AddCommand(sim.SimCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "log-level"
	RootCmd.PersistentFlags().String(key, "warn", util.WrapString("Level at which logs will be output (debug, info, warn, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
