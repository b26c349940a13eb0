package main

import (
	"fmt"
	"os"

	"github.com/lectern-ai/lectern/cmd/lectern/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
