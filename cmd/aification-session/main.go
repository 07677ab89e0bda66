package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "aification-session",
		Short:        "AIFICATION session shell",
		Long:         "aification-session signs in to the AIFICATION backend and keeps the local session in step with other processes sharing the same token storage.",
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.Version = version
	root.SetVersionTemplate(fmt.Sprintf("aification-session version %s\n", version))

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Path to a YAML config file")
	flags.StringVar(&a.apiBase, "api-base", "", "Backend base URL (overrides config and AIFICATION_API_BASE)")
	flags.StringVar(&a.backend, "storage", "", "Token storage backend: memory | file | redis")
	flags.BoolVar(&a.verbose, "verbose", false, "Enable debug logging")

	root.AddCommand(
		newLoginCmd(a),
		newSignupCmd(a),
		newGoogleCmd(a),
		newWhoamiCmd(a),
		newLogoutCmd(a),
		newWatchCmd(a),
		newResumeCmd(a),
	)
	return root
}
