package main

import (
	"os"

	"costtrack/cmd/costtrack/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
