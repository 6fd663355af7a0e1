// Command threadscrub removes a user's threads from a hash-anonymized
// JSONL corpus.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/threadscrub/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		if !cli.Reported(err) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
