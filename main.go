package main

import (
	"os"

	"github.com/chemcloud-org/chemcloud/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
