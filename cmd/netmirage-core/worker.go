package main

import (
	"os"

	"github.com/netmirage/netmirage-core/internal/pipeline"
	"github.com/netmirage/netmirage-core/internal/worker"
)

// runWorker wires a worker Body's decode/encode functions to this
// process's stdin/stdout and runs its order loop until Terminate or EOF.
func runWorker() {
	dec, enc := pipeline.NewWorkerCodec(os.Stdin, os.Stdout)
	body := worker.New(dec, enc)
	if err := body.Run(); err != nil {
		os.Exit(1)
	}
}
