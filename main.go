// Idiomatic entrypoint for the Cobra CLI; all handling lives in cmd/root.go.

package main

import (
	"github.com/gridlab/gridsim/cmd"
)

func main() {
	cmd.Execute()
}
