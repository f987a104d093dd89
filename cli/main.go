package main

import (
	"os"

	"github.com/telhawk-systems/edi-stack/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
