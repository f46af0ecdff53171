package main

import (
	"os"

	"github.com/kisun-bit/undelpart/cmd/undelpart/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
