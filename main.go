package main

import (
	"os"

	"github.com/herdwatch/herdwatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
