package main

import (
	"fmt"
	"os"

	"github.com/Video-FX-Bot/VFXB-App-Frontend-sub001/internal/errutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "vfxbmedia",
	Short: "Media resource manager for the VFXB editor",
	Long:  `vfxbmedia exercises the editor's media loaders and caches from the command line: progressive downloads, ranged chunk preloads and resource accounting.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if _, printErr := fmt.Fprintln(os.Stderr, err); printErr != nil {
			errutil.ReportError(printErr, "Failed to print error to stderr")
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	viper.SetEnvPrefix("VFXB")
	viper.AutomaticEnv()
}

// bindFlags mirrors the named flags into viper.
func bindFlags(flags *pflag.FlagSet, names ...string) {
	for _, name := range names {
		errutil.LogMsg(viper.BindPFlag(name, flags.Lookup(name)), "Failed to bind flag", "flag", name)
	}
}
