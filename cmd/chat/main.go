// Command chat operates on shared channel files: append-only message
// logs that independent processes write with advisory locking and read
// without any coordination.
//
// Exit codes:
//
//	0  success
//	1  general error
//	2  channel not found / already exists
//	3  timeout (poll wait or lock acquisition)
//	4  invalid arguments
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/filebus-org/go-filebus/pkg/channel"
	"github.com/filebus-org/go-filebus/pkg/lockfile"
	"github.com/filebus-org/go-filebus/util"
)

const (
	exitOK       = 0
	exitError    = 1
	exitNotFound = 2
	exitTimeout  = 3
	exitBadArgs  = 4
)

var errBadArgs = errors.New("invalid arguments")

// ranCommand distinguishes argument/usage failures (RunE never
// entered) from runtime failures of a command body.
var ranCommand bool

var rootCmd = &cobra.Command{
	Use:           "chat",
	Short:         "File-based multi-writer chat with atomic locking",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ranCommand = true
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			util.SetLevel(util.LogLevelDebug)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, channel.ErrNotFound), errors.Is(err, channel.ErrExists):
		return exitNotFound
	case errors.Is(err, channel.ErrTimeout), errors.Is(err, lockfile.ErrTimeout):
		return exitTimeout
	case errors.Is(err, errBadArgs):
		return exitBadArgs
	case !ranCommand:
		return exitBadArgs
	default:
		return exitError
	}
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}
