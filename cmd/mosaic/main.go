// Command mosaic records meeting attendance on a device and reconciles it
// with the attendance server. See "mosaic --help".
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/BigJazzz/mosaic/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// ExitErrors were already reported through the output formatter.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
