// main package of the nsm-agent.
package main

import (
	"context"
	"os"

	"github.com/edgelesssys/nitro-nsm/internal/process"
)

func main() {
	if err := execute(); err != nil {
		os.Exit(1)
	}
}

func execute() error {
	ctx, cancel := process.SignalContext(context.Background(), os.Interrupt)
	defer cancel()

	return newRootCmd().ExecuteContext(ctx)
}
