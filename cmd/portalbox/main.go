// Command portalbox is the agent's entrypoint: a thin wrapper around the
// cobra command tree in internal/cli, matching the teacher's main.go
// pattern of keeping main() itself to dispatch-and-exit-code only.
package main

import (
	"fmt"
	"os"

	"github.com/portalbox-app/portalbox/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
