package main

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var version = "0.1.0-dev"

// globalOptions holds the flags shared by every subcommand.
type globalOptions struct {
	configPath string
	verbose    bool
	json       bool
}

var globalOpts globalOptions

var cmdRoot = &cobra.Command{
	Use:   "yeetyoinkd",
	Short: "Transient file relay daemon",
	Long: `
yeetyoinkd accepts short-lived file uploads ("yeet"), buffers them to local
temporary storage while hashing their contents, and serves them back
("yoink") or fans them out to pluggable distribution backends until their
lease expires.
`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	DisableAutoGenTag: true,

	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		level := zerolog.InfoLevel
		if globalOpts.verbose {
			level = zerolog.DebugLevel
		}
		zerolog.SetGlobalLevel(level)
		if !globalOpts.json {
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: cmdRoot.ErrOrStderr()})
		}
		return nil
	},
}

func init() {
	var flags *pflag.FlagSet = cmdRoot.PersistentFlags()
	flags.StringVarP(&globalOpts.configPath, "config", "c", "yeetyoink.yaml", "path to the configuration file")
	flags.BoolVarP(&globalOpts.verbose, "verbose", "v", false, "enable debug-level logging")
	flags.BoolVar(&globalOpts.json, "json", false, "log in JSON instead of console format")

	cmdRoot.AddCommand(cmdServe, cmdVersion)
}
