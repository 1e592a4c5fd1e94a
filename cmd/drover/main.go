// drover is the CLI for driving Jules agent sessions and fleets.
package main

import (
	"os"

	"github.com/droverhq/drover/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
