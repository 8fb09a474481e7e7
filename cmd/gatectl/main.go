package main

import (
	"os"

	"github.com/avvvet/gate-services/cmd/gatectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
