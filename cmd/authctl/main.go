package main

import (
	"os"

	"go.pilab.hu/authflow/cmd/authctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
