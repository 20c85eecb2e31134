// Command bus operates on a directory-backed priority event queue:
// publish, list, read, acknowledge, and prune individual event files.
//
// Exit codes:
//
//	0  success
//	1  general error
//	2  events directory not found
//	3  event file not found
//	4  invalid arguments
//	5  deduplication (event dropped)
//	6  event already acknowledged by another party
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/filebus-org/go-filebus/pkg/bus"
	"github.com/filebus-org/go-filebus/util"
)

const (
	exitOK           = 0
	exitError        = 1
	exitDirNotFound  = 2
	exitNotFound     = 3
	exitBadArgs      = 4
	exitDeduped      = 5
	exitAlreadyAcked = 6
)

var ranCommand bool

var rootCmd = &cobra.Command{
	Use:           "bus",
	Short:         "File-based priority event queue",
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
	case errors.Is(err, bus.ErrDirNotFound):
		return exitDirNotFound
	case errors.Is(err, bus.ErrNotFound):
		return exitNotFound
	case errors.Is(err, bus.ErrDeduplicated):
		return exitDeduped
	case errors.Is(err, bus.ErrAlreadyAcked):
		return exitAlreadyAcked
	case errors.Is(err, bus.ErrInvalidArgs), errors.Is(err, bus.ErrInvalidName):
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
