// main package of nsmctl.
package main

import (
	"context"
	"os"

	"github.com/edgelesssys/nitro-nsm/internal/process"
	"github.com/edgelesssys/nitro-nsm/nsmctl/cmd"
)

func main() {
	if err := execute(); err != nil {
		os.Exit(1)
	}
}

func execute() error {
	ctx, cancel := process.SignalContext(context.Background(), os.Interrupt)
	defer cancel()

	return cmd.New().ExecuteContext(ctx)
}
